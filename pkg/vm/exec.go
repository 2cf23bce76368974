package vm

import (
	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/env"
	"github.com/chazu/reactor/pkg/loc"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// run is the single interpreter loop every call, module execution, and
// reactive evaluation funnels through. e is the environment DECL_*/LOAD/
// STORE/scope opcodes act on; stack is the operand stack for this
// invocation only — each call gets its own, since the VM recurses through
// Go's own call stack (callFunction) rather than maintaining an explicit
// frame array.
func (vm *VM) run(code []bytecode.Instr, e *env.Environment, stack []value.Value) (value.Value, error) {
	vm.runDepth++
	defer func() { vm.runDepth-- }()

	pop := func() value.Value {
		n := len(stack) - 1
		v := stack[n]
		stack = stack[:n]
		return v
	}
	push := func(v value.Value) { stack = append(stack, v) }

	pc := 0
	for pc < len(code) {
		in := code[pc]
		if len(vm.trace) > 0 {
			vm.trace[len(vm.trace)-1].pc = pc
		}
		next := pc + 1

		switch in.Op {
		case bytecode.OpNoop:

		case bytecode.OpPushConst:
			push(constValue(vm.program.Consts[in.IntA], vm.heap))
		case bytecode.OpDup:
			push(stack[len(stack)-1])
		case bytecode.OpPop:
			pop()
		case bytecode.OpSwap:
			n := len(stack)
			stack[n-1], stack[n-2] = stack[n-2], stack[n-1]

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			b := pop()
			a := pop()
			ai, err := vm.toInt(a)
			if err != nil {
				return value.Value{}, err
			}
			bi, err := vm.toInt(b)
			if err != nil {
				return value.Value{}, err
			}
			v, err := arith(in.Op, ai, bi)
			if err != nil {
				return value.Value{}, err
			}
			push(v)

		case bytecode.OpNeg:
			a := pop()
			ai, err := vm.toInt(a)
			if err != nil {
				return value.Value{}, err
			}
			push(value.Int(-ai))

		case bytecode.OpEq:
			b, a := pop(), pop()
			push(value.Bool(value.Equal(a, b)))
		case bytecode.OpNe:
			b, a := pop(), pop()
			push(value.Bool(!value.Equal(a, b)))

		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			b := pop()
			a := pop()
			ai, err := vm.toInt(a)
			if err != nil {
				return value.Value{}, err
			}
			bi, err := vm.toInt(b)
			if err != nil {
				return value.Value{}, err
			}
			push(value.Bool(compare(in.Op, ai, bi)))

		case bytecode.OpAnd:
			b := pop()
			a := pop()
			ai, err := vm.toInt(a)
			if err != nil {
				return value.Value{}, err
			}
			bi, err := vm.toInt(b)
			if err != nil {
				return value.Value{}, err
			}
			push(value.Bool(value.Truthy(ai) && value.Truthy(bi)))
		case bytecode.OpOr:
			b := pop()
			a := pop()
			ai, err := vm.toInt(a)
			if err != nil {
				return value.Value{}, err
			}
			bi, err := vm.toInt(b)
			if err != nil {
				return value.Value{}, err
			}
			push(value.Bool(value.Truthy(ai) || value.Truthy(bi)))
		case bytecode.OpNot:
			a := pop()
			ai, err := vm.toInt(a)
			if err != nil {
				return value.Value{}, err
			}
			push(value.Bool(!value.Truthy(ai)))

		case bytecode.OpCastInt:
			v, err := value.CastInt(pop())
			if err != nil {
				return value.Value{}, err
			}
			push(v)
		case bytecode.OpCastChar:
			v, err := value.CastChar(pop())
			if err != nil {
				return value.Value{}, err
			}
			push(v)
		case bytecode.OpAsInt:
			n, err := vm.toInt(pop())
			if err != nil {
				return value.Value{}, err
			}
			push(value.Int(n))

		case bytecode.OpJmp:
			next = in.IntA
		case bytecode.OpJmpIfFalse:
			ai, err := vm.toInt(pop())
			if err != nil {
				return value.Value{}, err
			}
			if !value.Truthy(ai) {
				next = in.IntA
			}
		case bytecode.OpBreak, bytecode.OpContinue:
			// The compiler is expected to have already emitted any
			// LEAVE_SCOPE/LEAVE_ITER_SCOPE the jump skips past, so these
			// behave exactly like JMP at this level.
			next = in.IntA

		case bytecode.OpCall:
			fn := vm.program.Funcs[in.IntA]
			argc := in.IntB
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			v, err := vm.callFunction(fn, args)
			if err != nil {
				return value.Value{}, err
			}
			push(v)
		case bytecode.OpRet:
			return value.Unit, nil
		case bytecode.OpRetVal:
			return pop(), nil

		case bytecode.OpDeclMut:
			v := pop()
			e.DeclareMut(in.Str, v)
			push(v)
		case bytecode.OpDeclImm:
			v := pop()
			e.DeclareImm(in.Str, v)
			push(v)
		case bytecode.OpDeclReactive:
			l := e.AssignReactive(in.Str, in.IntA)
			vm.engine.Invalidate(l)
			vm.captures[l] = e.Capture()
			push(value.Unit)
		case bytecode.OpLoad:
			slot, l, ok := e.Lookup(in.Str)
			if !ok {
				return value.Value{}, rxerr.New(rxerr.UndefinedName, "undefined name %q", in.Str)
			}
			v, err := vm.readSlot(l, slot, vm.captures[l])
			if err != nil {
				return value.Value{}, err
			}
			push(v)
		case bytecode.OpStore:
			v := pop()
			if _, err := e.AssignMut(in.Str, v); err != nil {
				return value.Value{}, err
			}
			push(v)

		case bytecode.OpEnterScope:
			e.PushScope()
		case bytecode.OpLeaveScope:
			if err := e.PopScope(); err != nil {
				return value.Value{}, err
			}
		case bytecode.OpEnterIterScope:
			e.PushIterScope()
		case bytecode.OpLeaveIterScope:
			if err := e.PopScope(); err != nil {
				return value.Value{}, err
			}

		case bytecode.OpAllocArray:
			n, err := vm.toInt(pop())
			if err != nil {
				return value.Value{}, err
			}
			push(value.HeapRef(vm.heap.AllocArray(int(n))))
			vm.collectCycles(stack)

		case bytecode.OpArrayGet:
			idxVal := pop()
			arrVal := pop()
			idx, err := vm.toInt(idxVal)
			if err != nil {
				return value.Value{}, err
			}
			if !arrVal.IsHeapRef() {
				return value.Value{}, rxerr.New(rxerr.TypeMismatch, "expected an array")
			}
			obj, err := vm.heap.Get(arrVal.AsHeapRef())
			if err != nil {
				return value.Value{}, err
			}
			slot, err := obj.ElementSlot(int(idx))
			if err != nil {
				return value.Value{}, err
			}
			l := loc.InArray(uint32(arrVal.AsHeapRef()), int(idx))
			v, err := vm.readSlot(l, slot, vm.captures[l])
			if err != nil {
				return value.Value{}, err
			}
			push(v)

		case bytecode.OpArraySetMut:
			v := pop()
			idxVal := pop()
			arrVal := pop()
			idx, err := vm.toInt(idxVal)
			if err != nil {
				return value.Value{}, err
			}
			if !arrVal.IsHeapRef() {
				return value.Value{}, rxerr.New(rxerr.TypeMismatch, "expected an array")
			}
			if err := vm.heap.SetElementMut(vm.clk, arrVal.AsHeapRef(), int(idx), v); err != nil {
				return value.Value{}, err
			}
			push(v)

		case bytecode.OpArraySetReactive:
			idxVal := pop()
			arrVal := pop()
			idx, err := vm.toInt(idxVal)
			if err != nil {
				return value.Value{}, err
			}
			if !arrVal.IsHeapRef() {
				return value.Value{}, rxerr.New(rxerr.TypeMismatch, "expected an array")
			}
			if err := vm.heap.SetElementReactive(vm.clk, arrVal.AsHeapRef(), int(idx), in.IntA); err != nil {
				return value.Value{}, err
			}
			l := loc.InArray(uint32(arrVal.AsHeapRef()), int(idx))
			vm.engine.Invalidate(l)
			vm.captures[l] = e.Capture()
			push(value.Unit)

		case bytecode.OpAllocRecord:
			v, err := vm.allocRecord(in.IntA, e)
			if err != nil {
				return value.Value{}, err
			}
			push(v)
			vm.collectCycles(stack)

		case bytecode.OpFieldGet:
			recVal := pop()
			if !recVal.IsHeapRef() {
				return value.Value{}, rxerr.New(rxerr.TypeMismatch, "expected a record")
			}
			obj, err := vm.heap.Get(recVal.AsHeapRef())
			if err != nil {
				return value.Value{}, err
			}
			slot, err := obj.FieldSlot(in.IntA)
			if err != nil {
				return value.Value{}, err
			}
			l := loc.InRecord(uint32(recVal.AsHeapRef()), in.IntA)
			var capturedEnv *env.Environment
			if slot.Kind() == value.SlotReactive {
				capturedEnv = vm.recordFieldEnv(obj, recVal.AsHeapRef())
			}
			v, err := vm.readSlot(l, slot, capturedEnv)
			if err != nil {
				return value.Value{}, err
			}
			push(v)

		case bytecode.OpFieldSetMut:
			v := pop()
			recVal := pop()
			if !recVal.IsHeapRef() {
				return value.Value{}, rxerr.New(rxerr.TypeMismatch, "expected a record")
			}
			if err := vm.heap.SetFieldMut(vm.clk, recVal.AsHeapRef(), in.IntA, v); err != nil {
				return value.Value{}, err
			}
			push(v)

		case bytecode.OpFieldSetReactive:
			recVal := pop()
			if !recVal.IsHeapRef() {
				return value.Value{}, rxerr.New(rxerr.TypeMismatch, "expected a record")
			}
			if err := vm.heap.SetFieldReactive(vm.clk, recVal.AsHeapRef(), in.IntA, in.IntB); err != nil {
				return value.Value{}, err
			}
			vm.engine.Invalidate(loc.InRecord(uint32(recVal.AsHeapRef()), in.IntA))
			push(value.Unit)

		case bytecode.OpPrint:
			vm.print(pop(), false)
		case bytecode.OpPrintln:
			vm.print(pop(), true)
		case bytecode.OpAssert:
			v := pop()
			if err := vm.assert(v); err != nil {
				return value.Value{}, err
			}
		case bytecode.OpError:
			c := vm.program.Consts[in.IntA]
			return value.Value{}, rxerr.New(rxerr.UserError, "%s", c.S)
		case bytecode.OpCallNative:
			native, ok := vm.natives[in.Str]
			if !ok {
				return value.Value{}, rxerr.New(rxerr.UndefinedName, "undefined native %q", in.Str)
			}
			argc := in.IntA
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			v, err := native(args)
			if err != nil {
				return value.Value{}, err
			}
			push(v)

		default:
			return value.Value{}, rxerr.New(rxerr.LoaderError, "unimplemented opcode %s", in.Op)
		}

		pc = next
	}

	if len(stack) > 0 {
		return stack[len(stack)-1], nil
	}
	return value.Unit, nil
}
