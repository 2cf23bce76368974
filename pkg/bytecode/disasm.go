package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders code as one mnemonic-plus-operands line per
// instruction, prefixed with its program counter.
func Disassemble(code []Instr) string {
	var b strings.Builder
	for pc, in := range code {
		fmt.Fprintf(&b, "%04d  %s", pc, in.Op)
		switch in.Op {
		case OpPushConst, OpJmp, OpJmpIfFalse, OpArraySetReactive, OpAllocRecord,
			OpFieldGet, OpFieldSetMut, OpBreak, OpContinue, OpError:
			fmt.Fprintf(&b, " %d", in.IntA)
		case OpCall, OpFieldSetReactive:
			fmt.Fprintf(&b, " %d %d", in.IntA, in.IntB)
		case OpDeclMut, OpDeclImm, OpLoad, OpStore:
			fmt.Fprintf(&b, " %s", in.Str)
		case OpDeclReactive, OpCallNative:
			fmt.Fprintf(&b, " %s %d", in.Str, in.IntA)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
