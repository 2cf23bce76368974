package bytecode

import (
	"strings"
	"testing"
)

const sampleImage = `RXB1
.const
0 int 1
1 str "hello"
.endconst
.struct 0 Example
0 y mut
1 x mut
2 sum reactive 0
.endstruct
.func 0 main 0 1
  PUSH_CONST 0
  DECL_MUT total
  LOAD total
  PRINTLN
  RET
.endfunc
.expr 0
  LOAD x
  LOAD y
  ADD
.endexpr
.entry 0
`

func TestParseValidImage(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleImage))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Consts) != 2 || p.Consts[0].Kind != ConstInt || p.Consts[0].I != 1 {
		t.Fatalf("unexpected consts: %+v", p.Consts)
	}
	if p.Consts[1].S != "hello" {
		t.Fatalf("unexpected string const: %+v", p.Consts[1])
	}
	if len(p.Structs) != 1 || p.Structs[0].Name != "Example" {
		t.Fatalf("unexpected structs: %+v", p.Structs)
	}
	if idx := p.Structs[0].FieldIndex("sum"); idx != 2 {
		t.Fatalf("FieldIndex(sum) = %d, want 2", idx)
	}
	if !p.HasEntry || p.EntryFunc != 0 {
		t.Fatalf("expected entry function 0")
	}
	if len(p.Funcs) != 1 || p.Funcs[0].Arity != 0 || p.Funcs[0].Locals != 1 {
		t.Fatalf("unexpected funcs: %+v", p.Funcs)
	}
	if len(p.Exprs) != 1 || len(p.Exprs[0].Code) != 3 {
		t.Fatalf("unexpected exprs: %+v", p.Exprs)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	if _, err := Parse(strings.NewReader("NOPE\n")); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestParseRejectsOutOfRangeConstReference(t *testing.T) {
	img := `RXB1
.func 0 main 0 0
  PUSH_CONST 5
  RET
.endfunc
.entry 0
`
	if _, err := Parse(strings.NewReader(img)); err == nil {
		t.Fatal("expected a LoaderError for an out-of-range constant reference")
	}
}

func TestParseRejectsMissingEntryAndModule(t *testing.T) {
	img := `RXB1
.func 0 main 0 0
  RET
.endfunc
`
	if _, err := Parse(strings.NewReader(img)); err == nil {
		t.Fatal("expected a LoaderError when neither .entry nor .module is present")
	}
}

func TestDisassembleRoundTripsOperands(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleImage))
	if err != nil {
		t.Fatal(err)
	}
	out := Disassemble(p.Funcs[0].Code)
	if !strings.Contains(out, "DECL_MUT total") {
		t.Errorf("disassembly missing DECL_MUT operand:\n%s", out)
	}
	if !strings.Contains(out, "PUSH_CONST 0") {
		t.Errorf("disassembly missing PUSH_CONST operand:\n%s", out)
	}
}
