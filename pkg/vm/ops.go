package vm

import (
	"github.com/chazu/reactor/pkg/builtins"
	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// constValue materializes a constant-pool entry as a runtime Value. String
// constants are realized as a heap Char array each time they are pushed,
// matching the language's value semantics for arrays (mutable, compared by
// reference) rather than interning one shared array per constant.
func constValue(c bytecode.Const, h *value.Heap) value.Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return value.Int(c.I)
	case bytecode.ConstChar:
		return value.Char(uint32(c.C))
	case bytecode.ConstStr:
		return value.HeapRef(builtins.MakeString(h, c.S))
	default:
		return value.Unit
	}
}

// arith evaluates the four-function arithmetic opcodes plus MOD.
func arith(op bytecode.Op, a, b int32) (value.Value, error) {
	switch op {
	case bytecode.OpAdd:
		return value.Int(a + b), nil
	case bytecode.OpSub:
		return value.Int(a - b), nil
	case bytecode.OpMul:
		return value.Int(a * b), nil
	case bytecode.OpDiv:
		if b == 0 {
			return value.Value{}, rxerr.New(rxerr.DivisionByZero, "division by zero")
		}
		return value.Int(a / b), nil
	case bytecode.OpMod:
		if b == 0 {
			return value.Value{}, rxerr.New(rxerr.DivisionByZero, "modulo by zero")
		}
		return value.Int(a % b), nil
	default:
		return value.Value{}, rxerr.New(rxerr.LoaderError, "not an arithmetic opcode: %s", op)
	}
}

func compare(op bytecode.Op, a, b int32) bool {
	switch op {
	case bytecode.OpLt:
		return a < b
	case bytecode.OpLe:
		return a <= b
	case bytecode.OpGt:
		return a > b
	case bytecode.OpGe:
		return a >= b
	default:
		return false
	}
}

// print implements PRINT/PRINTLN: format v and write it to the VM's
// configured output.
func (vm *VM) print(v value.Value, newline bool) {
	if newline {
		builtins.Println(vm.out, v, vm.heap, vm.program.Structs)
		return
	}
	builtins.Print(vm.out, v, vm.heap, vm.program.Structs)
}

// assert coerces v the same way OpAnd/OpOr/OpNot/OpJmpIfFalse coerce their
// operands (Char widens to Int, an array coerces to its length) before
// testing it, so `assert` sees the same truthiness as an `if`/`while`
// condition built from the identical expression would.
func (vm *VM) assert(v value.Value) error {
	i, err := vm.toInt(v)
	if err != nil {
		return err
	}
	return builtins.Assert(value.Int(i))
}
