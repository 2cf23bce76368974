package bytecode

// Instr is one decoded instruction. Not every opcode uses every operand;
// see opcodes.go's mnemonic table for which fields a given Op reads.
type Instr struct {
	Op   Op
	IntA int
	IntB int
	Str  string
}

// ConstKind identifies a constant pool entry's payload type.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstChar
	ConstStr
)

// Const is one constant pool entry.
type Const struct {
	Kind ConstKind
	I    int32
	C    rune
	S    string
}

// FieldKind mirrors the three binding kinds a struct layout field may
// declare: mutable, immutable, or reactive.
type FieldKind uint8

const (
	FieldMut FieldKind = iota
	FieldImm
	FieldReactive
)

// FieldDecl is one field of a struct layout: its name, binding kind, and
// (for Reactive fields, and optionally Mut/Imm fields with a default)
// initializer expression index.
type FieldDecl struct {
	Name    string
	Kind    FieldKind
	InitRef int
	HasInit bool
}

// StructLayout is a record type's closed field list: a record always has
// exactly these fields, in this order, and no others can ever be added.
type StructLayout struct {
	Name   string
	Fields []FieldDecl
}

// FieldIndex returns the index of name in the layout, or -1 if the layout
// has no such field.
func (s StructLayout) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Function is one function table entry: its instruction stream plus the
// frame shape the VM needs to set up a call (arity, local-slot count).
type Function struct {
	Name   string
	Arity  int
	Locals int
	Code   []Instr
}

// Expression is a standalone instruction stream for a reactive expression,
// evaluated on demand by pkg/reactive rather than called like a Function.
type Expression struct {
	Code []Instr
}

// Program is the fully loaded, structurally validated image produced by
// Parse: everything the VM needs to run, or everything a module needs to
// execute its top-level statements once.
type Program struct {
	Consts      []Const
	Structs     []StructLayout
	Funcs       []Function
	Exprs       []Expression
	EntryFunc   int
	HasEntry    bool
	ModuleStmts []Instr // top-level statements for a module image (no entry point)
}
