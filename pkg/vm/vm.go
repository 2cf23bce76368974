package vm

import (
	"io"

	"github.com/chazu/reactor/pkg/builtins"
	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/clock"
	"github.com/chazu/reactor/pkg/diagnostics"
	"github.com/chazu/reactor/pkg/env"
	"github.com/chazu/reactor/pkg/loc"
	"github.com/chazu/reactor/pkg/reactive"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// traceFrame is one entry of the VM's own call-stack trace, kept in step
// with Go's real call stack so a failing run can report a function name
// and bytecode instruction position for each active frame without
// unwinding anything: it is read, not reconstructed, when an error
// reaches RunEntry.
type traceFrame struct {
	name string
	pc   int
}

// VM is the stack-machine interpreter. A single VM owns the heap, the
// global clock, and one shared *env.Environment for the entire
// run; function calls reparent that environment's scope chain temporarily
// (env.PushCallScope/Mark/Restore) rather than allocating a new
// Environment per call.
type VM struct {
	program *bytecode.Program
	heap    *value.Heap
	clk     *clock.Clock
	env     *env.Environment
	engine  *reactive.Engine
	natives map[string]builtins.Native
	out     io.Writer

	// captures holds the environment snapshot taken at ::= time for a
	// scope-variable or array-element reactive slot (the captured
	// environment is the lexical scope at ::= time). Record-field
	// reactive slots need no entry here: their lookup root is rebuilt fresh
	// from the record's own fields on every read (env.NewRecordScope).
	captures map[loc.Location]*env.Environment

	trace    []*traceFrame
	reporter *diagnostics.Reporter

	// allocsSinceGC counts ALLOC_ARRAY/ALLOC_RECORD instructions since the
	// last cycle scan; collectCycles resets it once the count reaches
	// gcInterval.
	allocsSinceGC int

	// runDepth counts nested invocations of run still live on Go's own call
	// stack (function calls, and reactive/module execution nested inside
	// them). collectCycles only scans at runDepth 1: an enclosing run's
	// operand stack is not reachable from here, so a scan while one is
	// suspended above this frame could free a value only that outer stack
	// still points to.
	runDepth int
}

// gcInterval is how many array/record allocations run between mark-sweep
// cycle scans: frequent enough that a long-running loop doesn't build up
// an unbounded amount of garbage between scans, infrequent enough that the
// scan's heap walk isn't on the hot path of every single allocation.
const gcInterval = 256

// New builds a VM ready to run program, writing print/println output to out.
func New(program *bytecode.Program, out io.Writer) *VM {
	clk := clock.New()
	heap := value.NewHeap()
	vm := &VM{
		program:  program,
		heap:     heap,
		clk:      clk,
		env:      env.New(clk),
		engine:   reactive.New(clk),
		natives:  builtins.Natives(heap),
		out:      out,
		captures: make(map[loc.Location]*env.Environment),
		reporter: diagnostics.NewReporter(out),
	}
	vm.engine.SetEvaluator(vm)
	return vm
}

// Heap exposes the VM's heap, for hosts (e.g. the module loader) that need
// to inspect state across module executions sharing a VM.
func (vm *VM) Heap() *value.Heap { return vm.heap }

// Env exposes the VM's shared environment, so a module loader can run
// several module images' top-level statements into one accumulating
// global scope: imports are not namespaced, so all top-level names merge.
func (vm *VM) Env() *env.Environment { return vm.env }

// RunEntry executes the program's entry function with no arguments (`main`
// takes none). It is the top-level driver: on error it renders a stack
// trace to out before returning, printing the message followed by a stack
// trace (the caller is responsible for exiting with a non-zero status,
// typically a thin cmd/ wrapper outside this package's scope).
func (vm *VM) RunEntry() (value.Value, error) {
	if !vm.program.HasEntry {
		return value.Value{}, rxerr.New(rxerr.LoaderError, "program has no entry function")
	}
	fn := vm.program.Funcs[vm.program.EntryFunc]
	v, err := vm.callFunction(fn, nil)
	if err != nil {
		vm.renderTrace(err)
	}
	return v, err
}

// RunModuleStmts executes the VM's own program image's top-level
// statements (a module image, no entry point) against the VM's current
// global environment. The module loader does not call this: it links each
// imported image through LinkModule, which runs that image's statements.
func (vm *VM) RunModuleStmts() error {
	_, err := vm.execute(vm.program.ModuleStmts, vm.env)
	return err
}

func (vm *VM) renderTrace(err error) {
	frames := make([]diagnostics.Frame, len(vm.trace))
	for i, f := range vm.trace {
		frames[i] = diagnostics.Frame{Name: f.name, PC: f.pc}
	}
	vm.reporter.Render(err, frames)
}

// callFunction invokes fn with args already evaluated left-to-right. It
// reparents the shared environment at the root scope (so fn sees globals
// but none of the caller's locals), seeds a fresh operand stack with args
// in the same left-to-right order, and restores the caller's scope on
// return. The function's own bytecode is expected to pop its parameters
// off that stack via DECL_IMM/DECL_MUT in reverse (last parameter first),
// since args[] arrives with the last argument on top — a convention this
// implementation documents since no compiler exists here to enforce one.
//
// The trace frame pushed here is deliberately popped only on success, not
// via defer: an error unwinds back up through every enclosing
// callFunction's own Go call frame, and if each one popped unconditionally
// the trace would already be empty by the time RunEntry read it. Leaving a
// failing frame in place lets the whole chain of still-unwinding calls
// accumulate into exactly the active-frame stack trace callers need.
func (vm *VM) callFunction(fn bytecode.Function, args []value.Value) (value.Value, error) {
	mark := vm.env.Mark()
	vm.env.PushCallScope()
	vm.trace = append(vm.trace, &traceFrame{name: fn.Name})

	stack := append(make([]value.Value, 0, len(args)+4), args...)
	v, err := vm.run(fn.Code, vm.env, stack)
	vm.env.Restore(mark)

	if err == nil {
		vm.trace = vm.trace[:len(vm.trace)-1]
	}
	return v, err
}

// Eval implements reactive.Evaluator: it runs a reactive expression's
// instruction stream to completion against the environment the caller
// already built for it (req.Env is always a concrete *env.Environment,
// since the VM is the only thing that ever constructs an EvalRequest).
func (vm *VM) Eval(req reactive.EvalRequest) (value.Value, error) {
	e, ok := req.Env.(*env.Environment)
	if !ok {
		return value.Value{}, rxerr.New(rxerr.TypeMismatch, "internal: reactive evaluation request carries no environment")
	}
	if req.ExprID < 0 || req.ExprID >= len(vm.program.Exprs) {
		return value.Value{}, rxerr.New(rxerr.LoaderError, "reactive expression %d out of range", req.ExprID)
	}
	expr := vm.program.Exprs[req.ExprID]
	return vm.execute(expr.Code, e)
}

// execute runs code from pc 0 to completion using a throwaway stack, for
// contexts (module statements, reactive expressions) that are not a
// function call.
func (vm *VM) execute(code []bytecode.Instr, e *env.Environment) (value.Value, error) {
	return vm.run(code, e, nil)
}

// readSlot resolves a slot's current value, evaluating it through the
// reactive engine if it is a Reactive slot. capturedEnv is the environment
// to evaluate against if so; it is ignored for Mut/Imm slots.
func (vm *VM) readSlot(l loc.Location, slot *value.Slot, capturedEnv *env.Environment) (value.Value, error) {
	if slot.Kind() == value.SlotReactive {
		return vm.engine.Read(l, reactive.EvalRequest{ExprID: slot.ExprID(), Env: capturedEnv})
	}
	vm.engine.TrackRead(l)
	return slot.Value(), nil
}

// recordFieldEnv builds the restricted "fields only" lookup environment a
// record-field reactive expression evaluates against: fresh every read,
// never a point-in-time capture, since it must see the
// record's current field values rather than whatever they were at ::= time.
func (vm *VM) recordFieldEnv(obj *value.HeapObject, heapID value.ID) *env.Environment {
	var names []string
	if obj.LayoutID >= 0 && obj.LayoutID < len(vm.program.Structs) {
		layout := vm.program.Structs[obj.LayoutID]
		names = make([]string, len(layout.Fields))
		for i, fd := range layout.Fields {
			names[i] = fd.Name
		}
	}
	return env.NewRecordScope(vm.clk, heapID, names, obj.Slots)
}

// allocRecord implements ALLOC_RECORD layout_id: allocates the record, then
// runs each field's initializer in turn. Mut/Imm fields with an initializer
// evaluate it immediately, against e (the construction site's own scope,
// not the record's — the record doesn't exist as a lookup scope until
// after its fields are populated); Reactive fields are never evaluated
// here, only registered, since their lookup root is the record itself,
// rebuilt fresh on every future read.
func (vm *VM) allocRecord(layoutIdx int, e *env.Environment) (value.Value, error) {
	layout := vm.program.Structs[layoutIdx]
	id := vm.heap.AllocRecord(layoutIdx, len(layout.Fields))
	for i, fd := range layout.Fields {
		switch fd.Kind {
		case bytecode.FieldReactive:
			if err := vm.heap.SetFieldReactive(vm.clk, id, i, fd.InitRef); err != nil {
				return value.Value{}, err
			}
		case bytecode.FieldImm:
			v, err := vm.fieldInit(fd, e)
			if err != nil {
				return value.Value{}, err
			}
			if err := vm.heap.SetFieldImm(vm.clk, id, i, v); err != nil {
				return value.Value{}, err
			}
		default:
			v, err := vm.fieldInit(fd, e)
			if err != nil {
				return value.Value{}, err
			}
			if err := vm.heap.SetFieldMut(vm.clk, id, i, v); err != nil {
				return value.Value{}, err
			}
		}
	}
	return value.HeapRef(id), nil
}

// LinkModule merges prog's constant/struct/function/expression tables into
// the VM's own tables, offsetting every instruction that addresses one of
// those tables by the length of the existing table before the merge, then
// runs the module's top-level statements (similarly offset) against the
// VM's shared environment. This is how imports stay unnamespaced — every
// top-level name from a linked module merges directly into the caller's
// own names — across two otherwise independent bytecode images: a
// module's functions, structs, and reactive
// expressions become first-class members of the one running program,
// rather than living in some separate table the VM has to know how to
// dispatch into. The module loader (pkg/module) is responsible for calling
// this at most once per resolved path.
func (vm *VM) LinkModule(prog *bytecode.Program) error {
	constOff := len(vm.program.Consts)
	structOff := len(vm.program.Structs)
	funcOff := len(vm.program.Funcs)
	exprOff := len(vm.program.Exprs)

	vm.program.Consts = append(vm.program.Consts, prog.Consts...)

	for _, s := range prog.Structs {
		fields := make([]bytecode.FieldDecl, len(s.Fields))
		copy(fields, s.Fields)
		for i, fd := range fields {
			if fd.HasInit {
				fields[i].InitRef += exprOff
			}
		}
		vm.program.Structs = append(vm.program.Structs, bytecode.StructLayout{Name: s.Name, Fields: fields})
	}

	for _, fn := range prog.Funcs {
		vm.program.Funcs = append(vm.program.Funcs, bytecode.Function{
			Name:   fn.Name,
			Arity:  fn.Arity,
			Locals: fn.Locals,
			Code:   offsetCode(fn.Code, constOff, funcOff, structOff, exprOff),
		})
	}

	for _, ex := range prog.Exprs {
		vm.program.Exprs = append(vm.program.Exprs, bytecode.Expression{
			Code: offsetCode(ex.Code, constOff, funcOff, structOff, exprOff),
		})
	}

	stmts := offsetCode(prog.ModuleStmts, constOff, funcOff, structOff, exprOff)
	_, err := vm.execute(stmts, vm.env)
	return err
}

// offsetCode rewrites every instruction in code that addresses the
// constant, function, struct-layout, or expression table by the given
// offsets, leaving jump targets (which are indices local to this same code
// block) untouched.
func offsetCode(code []bytecode.Instr, constOff, funcOff, structOff, exprOff int) []bytecode.Instr {
	out := make([]bytecode.Instr, len(code))
	for i, in := range code {
		out[i] = in
		switch in.Op {
		case bytecode.OpPushConst, bytecode.OpError:
			out[i].IntA += constOff
		case bytecode.OpCall:
			out[i].IntA += funcOff
		case bytecode.OpAllocRecord:
			out[i].IntA += structOff
		case bytecode.OpDeclReactive, bytecode.OpArraySetReactive:
			out[i].IntA += exprOff
		case bytecode.OpFieldSetReactive:
			out[i].IntB += exprOff
		}
	}
	return out
}

func (vm *VM) fieldInit(fd bytecode.FieldDecl, e *env.Environment) (value.Value, error) {
	if !fd.HasInit {
		return value.Int(0), nil
	}
	return vm.execute(vm.program.Exprs[fd.InitRef].Code, e)
}

// collectCycles runs a heap cycle scan rooted at every live binding this
// VM knows about: its own current scope chain, every environment captured
// by a scope-variable or array-element reactive binding (vm.captures), the
// reactive engine's own cache (a cached array/record result is live even
// once nothing in scope points at it directly), and stack, the in-flight
// operand stack of the call doing the allocating — a value just pushed by
// ALLOC_ARRAY/ALLOC_RECORD is not yet reachable through any scope, so it
// must be rooted explicitly or a scan landing between the push and the
// STORE/DECL_* that gives it a home would collect it as garbage. Only
// scans at runDepth 1, skipping while a nested call/reactive evaluation is
// in progress, since an enclosing run's own operand stack is not visible
// here to root. Called periodically from the instruction loop rather than
// after every allocation.
func (vm *VM) collectCycles(stack []value.Value) {
	vm.allocsSinceGC++
	if vm.allocsSinceGC < gcInterval || vm.runDepth > 1 {
		return
	}
	vm.allocsSinceGC = 0

	ids := make([]value.ID, 0, len(stack))
	for _, v := range stack {
		if v.IsHeapRef() {
			ids = append(ids, v.AsHeapRef())
		}
	}

	sets := make([]value.RootSet, 0, len(vm.captures)+2)
	sets = append(sets, vm.env, vm.engine)
	for _, captured := range vm.captures {
		sets = append(sets, captured)
	}
	vm.heap.CollectCycles(ids, sets...)
}

func (vm *VM) toInt(v value.Value) (int32, error) {
	if v.IsHeapRef() {
		obj, err := vm.heap.Get(v.AsHeapRef())
		if err != nil {
			return 0, err
		}
		return int32(obj.Len()), nil
	}
	return value.ToInt(v)
}
