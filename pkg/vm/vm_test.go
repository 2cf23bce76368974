package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

func intConst(i int32) bytecode.Const { return bytecode.Const{Kind: bytecode.ConstInt, I: i} }
func strConst(s string) bytecode.Const { return bytecode.Const{Kind: bytecode.ConstStr, S: s} }

// ============ Stack & Arithmetic ============

func TestArithmeticEntryFunction(t *testing.T) {
	prog := &bytecode.Program{
		Consts:   []bytecode.Const{intConst(2), intConst(3)},
		HasEntry: true,
		Funcs: []bytecode.Function{
			{Name: "main", Code: []bytecode.Instr{
				{Op: bytecode.OpPushConst, IntA: 0},
				{Op: bytecode.OpPushConst, IntA: 1},
				{Op: bytecode.OpAdd},
				{Op: bytecode.OpRetVal},
			}},
		},
	}
	v, err := New(prog, &bytes.Buffer{}).RunEntry()
	if err != nil {
		t.Fatalf("RunEntry failed: %v", err)
	}
	if !v.IsInt() || v.AsInt() != 5 {
		t.Errorf("expected 5, got %v", v)
	}
}

func TestDivisionByZero(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(5), intConst(0)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpDiv},
		{Op: bytecode.OpRetVal},
	}
	_, err := vm.execute(code, vm.env)
	e, ok := rxerr.As(err)
	if !ok || e.Kind != rxerr.DivisionByZero {
		t.Fatalf("expected DivisionByZero, got %v", err)
	}
}

func TestBreakAndContinueAreUnconditionalJumps(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(999), intConst(1)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpBreak, IntA: 3},
		{Op: bytecode.OpPushConst, IntA: 0}, // skipped
		{Op: bytecode.OpPop},                // skipped
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpRetVal},
	}
	v, err := vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsInt() != 1 {
		t.Errorf("BREAK should have jumped past the skipped instructions, got %v", v)
	}

	code = []bytecode.Instr{
		{Op: bytecode.OpContinue, IntA: 3},
		{Op: bytecode.OpPushConst, IntA: 0}, // skipped
		{Op: bytecode.OpPop},                // skipped
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpRetVal},
	}
	v, err = vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsInt() != 1 {
		t.Errorf("CONTINUE should have jumped past the skipped instructions, got %v", v)
	}
}

// ============ Environment opcodes ============

func TestDeclAndStoreLeaveValueOnStackForChaining(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(10), intConst(20)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpDeclMut, Str: "x"},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpStore, Str: "x"},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpLoad, Str: "x"},
		{Op: bytecode.OpRetVal},
	}
	v, err := vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsInt() != 20 {
		t.Errorf("STORE should have overwritten x, got %v", v)
	}
}

func TestImmRebindingIsRejected(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(1), intConst(2)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpDeclImm, Str: "y"},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpStore, Str: "y"},
		{Op: bytecode.OpRetVal},
	}
	_, err := vm.execute(code, vm.env)
	e, ok := rxerr.As(err)
	if !ok || e.Kind != rxerr.ImmutableWrite {
		t.Fatalf("expected ImmutableWrite, got %v", err)
	}
}

// ============ Arrays ============

func TestArrayOutOfBounds(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(2), intConst(5)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpAllocArray},
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpArrayGet},
		{Op: bytecode.OpRetVal},
	}
	_, err := vm.execute(code, vm.env)
	e, ok := rxerr.As(err)
	if !ok || e.Kind != rxerr.OutOfBounds {
		t.Fatalf("expected OutOfBounds, got %v", err)
	}
}

func TestAsIntCoercesArrayToLength(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(4)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpAllocArray},
		{Op: bytecode.OpAsInt},
		{Op: bytecode.OpRetVal},
	}
	v, err := vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsInt() != 4 {
		t.Errorf("expected array length 4, got %v", v)
	}
}

// ============ Reactive evaluation ============

func TestReactiveSlotRecomputesAfterDependencyChanges(t *testing.T) {
	prog := &bytecode.Program{
		Consts: []bytecode.Const{intConst(1)},
		Exprs: []bytecode.Expression{
			{Code: []bytecode.Instr{
				{Op: bytecode.OpLoad, Str: "a"},
				{Op: bytecode.OpPushConst, IntA: 0},
				{Op: bytecode.OpAdd},
			}},
		},
	}
	vm := New(prog, &bytes.Buffer{})
	vm.env.DeclareMut("a", value.Int(5))
	l := vm.env.AssignReactive("b", 0)
	vm.captures[l] = vm.env.Capture()

	slot, l, ok := vm.env.Lookup("b")
	if !ok {
		t.Fatal("b should be bound")
	}
	v1, err := vm.readSlot(l, slot, vm.captures[l])
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if v1.AsInt() != 6 {
		t.Errorf("expected 6, got %v", v1)
	}

	if _, err := vm.env.AssignMut("a", value.Int(10)); err != nil {
		t.Fatalf("AssignMut failed: %v", err)
	}
	v2, err := vm.readSlot(l, slot, vm.captures[l])
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if v2.AsInt() != 11 {
		t.Errorf("expected reactive slot to pick up the new value of a, got %v", v2)
	}
}

func TestReactiveSlotWithNoDependenciesIsNeverCached(t *testing.T) {
	prog := &bytecode.Program{
		Consts: []bytecode.Const{intConst(0)},
		Exprs: []bytecode.Expression{
			{Code: []bytecode.Instr{
				{Op: bytecode.OpPushConst, IntA: 0},
				{Op: bytecode.OpAllocArray},
			}},
		},
	}
	vm := New(prog, &bytes.Buffer{})
	l := vm.env.AssignReactive("r", 0)
	vm.captures[l] = vm.env.Capture()
	slot, l, _ := vm.env.Lookup("r")

	v1, err := vm.readSlot(l, slot, vm.captures[l])
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	v2, err := vm.readSlot(l, slot, vm.captures[l])
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if v1.AsHeapRef() == v2.AsHeapRef() {
		t.Error("a reactive expression with no tracked dependencies must re-evaluate on every read, not reuse a cached allocation")
	}
}

func TestRecordFieldReactiveRebuildsScopeFromCurrentFields(t *testing.T) {
	prog := &bytecode.Program{
		Consts: []bytecode.Const{intConst(1)},
		Structs: []bytecode.StructLayout{
			{Name: "Pair", Fields: []bytecode.FieldDecl{
				{Name: "x", Kind: bytecode.FieldMut},
				{Name: "y", Kind: bytecode.FieldReactive, InitRef: 0},
			}},
		},
		Exprs: []bytecode.Expression{
			{Code: []bytecode.Instr{
				{Op: bytecode.OpLoad, Str: "x"},
				{Op: bytecode.OpPushConst, IntA: 0},
				{Op: bytecode.OpAdd},
			}},
		},
	}
	vm := New(prog, &bytes.Buffer{})
	recVal, err := vm.allocRecord(0, vm.env)
	if err != nil {
		t.Fatalf("allocRecord failed: %v", err)
	}
	id := recVal.AsHeapRef()

	readY := []bytecode.Instr{{Op: bytecode.OpFieldGet, IntA: 1}}
	v1, err := vm.run(readY, vm.env, []value.Value{recVal})
	if err != nil {
		t.Fatalf("first FIELD_GET failed: %v", err)
	}
	if v1.AsInt() != 1 {
		t.Errorf("expected 0+1=1, got %v", v1)
	}

	if err := vm.heap.SetFieldMut(vm.clk, id, 0, value.Int(9)); err != nil {
		t.Fatalf("SetFieldMut failed: %v", err)
	}
	v2, err := vm.run(readY, vm.env, []value.Value{recVal})
	if err != nil {
		t.Fatalf("second FIELD_GET failed: %v", err)
	}
	if v2.AsInt() != 10 {
		t.Errorf("expected field change to be visible (9+1=10), got %v", v2)
	}
}

// ============ Calls ============

func TestCallArgumentsArriveLeftToRight(t *testing.T) {
	prog := &bytecode.Program{
		Consts: []bytecode.Const{intConst(7), intConst(3)},
		Funcs: []bytecode.Function{
			{Name: "sub", Arity: 2, Code: []bytecode.Instr{
				// args[] arrives last-argument-on-top; declare the last
				// parameter first so the pops land on the right names.
				{Op: bytecode.OpDeclImm, Str: "b"},
				{Op: bytecode.OpPop},
				{Op: bytecode.OpDeclImm, Str: "a"},
				{Op: bytecode.OpPop},
				{Op: bytecode.OpLoad, Str: "a"},
				{Op: bytecode.OpLoad, Str: "b"},
				{Op: bytecode.OpSub},
				{Op: bytecode.OpRetVal},
			}},
		},
	}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpPushConst, IntA: 1},
		{Op: bytecode.OpCall, IntA: 0, IntB: 2},
		{Op: bytecode.OpRetVal},
	}
	v, err := vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsInt() != 4 {
		t.Errorf("expected sub(7, 3) == 4, got %v", v)
	}
}

func TestStackTraceReportsInnermostFrameFirst(t *testing.T) {
	prog := &bytecode.Program{
		Consts: []bytecode.Const{strConst("boom")},
		HasEntry: true,
		Funcs: []bytecode.Function{
			{Name: "inner", Code: []bytecode.Instr{{Op: bytecode.OpError, IntA: 0}}},
			{Name: "outer", Code: []bytecode.Instr{
				{Op: bytecode.OpCall, IntA: 0, IntB: 0},
				{Op: bytecode.OpRetVal},
			}},
			{Name: "main", Code: []bytecode.Instr{
				{Op: bytecode.OpCall, IntA: 1, IntB: 0},
				{Op: bytecode.OpRetVal},
			}},
		},
		EntryFunc: 2,
	}
	var buf bytes.Buffer
	vm := New(prog, &buf)
	_, err := vm.RunEntry()
	if err == nil {
		t.Fatal("expected an error")
	}
	out := buf.String()
	innerAt := strings.Index(out, "at inner:")
	outerAt := strings.Index(out, "at outer:")
	mainAt := strings.Index(out, "at main:")
	if innerAt == -1 || outerAt == -1 || mainAt == -1 {
		t.Fatalf("expected all three frames in trace, got:\n%s", out)
	}
	if !(innerAt < outerAt && outerAt < mainAt) {
		t.Errorf("expected innermost-first ordering (inner, outer, main), got:\n%s", out)
	}
}

// ============ Builtins ============

func TestPrintDoesNotRepushAndOmitsNewline(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(42)}}
	var buf bytes.Buffer
	vm := New(prog, &buf)
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpPrint},
	}
	v, err := vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !v.IsUnit() {
		t.Errorf("PRINT should leave the stack empty (falls through to Unit), got %v", v)
	}
	if buf.String() != "42" {
		t.Errorf("expected bare \"42\" with no newline, got %q", buf.String())
	}
}

func TestAssertFailsOnZero(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(0)}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpAssert},
	}
	_, err := vm.execute(code, vm.env)
	e, ok := rxerr.As(err)
	if !ok || e.Kind != rxerr.AssertFailed {
		t.Fatalf("expected AssertFailed, got %v", err)
	}
}

func TestPeriodicCycleCollectionReclaimsDiscardedArrays(t *testing.T) {
	const allocs = 300
	prog := &bytecode.Program{Consts: []bytecode.Const{intConst(0), intConst(1)}}
	vm := New(prog, &bytes.Buffer{})

	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpDeclMut, Str: "a"},
		{Op: bytecode.OpPop},
	}
	for i := 0; i < allocs; i++ {
		code = append(code,
			bytecode.Instr{Op: bytecode.OpPushConst, IntA: 1},
			bytecode.Instr{Op: bytecode.OpAllocArray},
			bytecode.Instr{Op: bytecode.OpStore, Str: "a"},
			bytecode.Instr{Op: bytecode.OpPop},
		)
	}

	if _, err := vm.execute(code, vm.env); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if live := vm.heap.Live(); live >= allocs {
		t.Fatalf("expected periodic cycle collection to reclaim discarded arrays, Live() = %d", live)
	}
}

func TestAssertCoercesCharZeroLikeABooleanCondition(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{{Kind: bytecode.ConstChar, C: 0}}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpAssert},
	}
	_, err := vm.execute(code, vm.env)
	e, ok := rxerr.As(err)
	if !ok || e.Kind != rxerr.AssertFailed {
		t.Fatalf("expected AssertFailed for a Char(0) operand, got %v", err)
	}
}

func TestCallNativeDispatchesFileExists(t *testing.T) {
	prog := &bytecode.Program{Consts: []bytecode.Const{strConst("/no/such/path/reactor-test")}}
	vm := New(prog, &bytes.Buffer{})
	code := []bytecode.Instr{
		{Op: bytecode.OpPushConst, IntA: 0},
		{Op: bytecode.OpCallNative, Str: "file_exists", IntA: 1},
		{Op: bytecode.OpRetVal},
	}
	v, err := vm.execute(code, vm.env)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v.AsInt() != 0 {
		t.Errorf("expected file_exists on a missing path to report 0, got %v", v)
	}
}
