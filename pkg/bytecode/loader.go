package bytecode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/reactor/pkg/rxerr"
)

// magic is the required first line of every RXB1 image.
const magic = "RXB1"

// Parse reads a complete RXB1 text image and produces a structurally
// validated Program. Line-oriented grammar, one section per top-level
// directive:
//
//	RXB1
//	.const
//	<idx> int <n>
//	<idx> char <codepoint>
//	<idx> str "<escaped text>"
//	.endconst
//	.struct <idx> <Name>
//	<fieldidx> <name> mut|imm|reactive [<expr_idx>]
//	.endstruct
//	.func <idx> <name> <arity> <locals>
//	  <MNEMONIC> [operands...]
//	.endfunc
//	.expr <idx>
//	  <MNEMONIC> [operands...]
//	.endexpr
//	.entry <func_idx>
//	.module
//	  <MNEMONIC> [operands...]
//	.endmodule
//
// A program image has exactly one of .entry or .module; .module marks a
// file with no entry point whose instructions are a module's import-time
// top-level statements, run once by the loader when the module is linked.
func Parse(r io.Reader) (*Program, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, rxerr.New(rxerr.LoaderError, "empty bytecode image")
	}
	if strings.TrimSpace(sc.Text()) != magic {
		return nil, rxerr.New(rxerr.LoaderError, "bad magic: expected %q", magic)
	}

	p := &Program{}
	lineNo := 1

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case line == ".const":
			if err := parseConstSection(sc, &lineNo, p); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, ".struct"):
			if err := parseStructSection(sc, &lineNo, line, p); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, ".func"):
			if err := parseFuncSection(sc, &lineNo, line, p); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, ".expr"):
			if err := parseExprSection(sc, &lineNo, line, p); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, ".entry"):
			idx, err := parseEntryDirective(line)
			if err != nil {
				return nil, err
			}
			p.HasEntry = true
			p.EntryFunc = idx
		case line == ".module":
			code, err := parseCodeBlock(sc, &lineNo, ".endmodule")
			if err != nil {
				return nil, err
			}
			p.ModuleStmts = code
		default:
			return nil, rxerr.New(rxerr.LoaderError, "line %d: unrecognized section %q", lineNo, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, rxerr.New(rxerr.LoaderError, "reading bytecode image: %v", err)
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func parseConstSection(sc *bufio.Scanner, lineNo *int, p *Program) error {
	for sc.Scan() {
		*lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == ".endconst" {
			return nil
		}
		if line == "" {
			continue
		}
		fields := splitRecord(line)
		if len(fields) < 3 {
			return rxerr.New(rxerr.LoaderError, "line %d: malformed const record", *lineNo)
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			return rxerr.New(rxerr.LoaderError, "line %d: bad const index: %v", *lineNo, err)
		}
		var c Const
		switch fields[1] {
		case "int":
			n, err := strconv.ParseInt(fields[2], 10, 32)
			if err != nil {
				return rxerr.New(rxerr.LoaderError, "line %d: bad int constant: %v", *lineNo, err)
			}
			c = Const{Kind: ConstInt, I: int32(n)}
		case "char":
			n, err := strconv.ParseInt(fields[2], 10, 32)
			if err != nil {
				return rxerr.New(rxerr.LoaderError, "line %d: bad char constant: %v", *lineNo, err)
			}
			c = Const{Kind: ConstChar, C: rune(n)}
		case "str":
			s, err := unquote(strings.Join(fields[2:], " "))
			if err != nil {
				return rxerr.New(rxerr.LoaderError, "line %d: bad string constant: %v", *lineNo, err)
			}
			c = Const{Kind: ConstStr, S: s}
		default:
			return rxerr.New(rxerr.LoaderError, "line %d: unknown const kind %q", *lineNo, fields[1])
		}
		p.Consts = growTo(p.Consts, idx+1)
		p.Consts[idx] = c
	}
	return rxerr.New(rxerr.LoaderError, "unterminated .const section")
}

func parseStructSection(sc *bufio.Scanner, lineNo *int, header string, p *Program) error {
	parts := splitRecord(header)
	if len(parts) < 3 {
		return rxerr.New(rxerr.LoaderError, "line %d: malformed .struct header", *lineNo)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return rxerr.New(rxerr.LoaderError, "line %d: bad struct index: %v", *lineNo, err)
	}
	layout := StructLayout{Name: parts[2]}

	for sc.Scan() {
		*lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == ".endstruct" {
			p.Structs = growTo(p.Structs, idx+1)
			p.Structs[idx] = layout
			return nil
		}
		if line == "" {
			continue
		}
		fields := splitRecord(line)
		if len(fields) < 3 {
			return rxerr.New(rxerr.LoaderError, "line %d: malformed field record", *lineNo)
		}
		fd := FieldDecl{Name: fields[1]}
		switch fields[2] {
		case "mut":
			fd.Kind = FieldMut
		case "imm":
			fd.Kind = FieldImm
		case "reactive":
			fd.Kind = FieldReactive
		default:
			return rxerr.New(rxerr.LoaderError, "line %d: unknown field kind %q", *lineNo, fields[2])
		}
		if len(fields) > 3 {
			n, err := strconv.Atoi(fields[3])
			if err != nil {
				return rxerr.New(rxerr.LoaderError, "line %d: bad init expr index: %v", *lineNo, err)
			}
			fd.InitRef = n
			fd.HasInit = true
		}
		layout.Fields = append(layout.Fields, fd)
	}
	return rxerr.New(rxerr.LoaderError, "unterminated .struct section")
}

func parseFuncSection(sc *bufio.Scanner, lineNo *int, header string, p *Program) error {
	parts := splitRecord(header)
	if len(parts) < 5 {
		return rxerr.New(rxerr.LoaderError, "line %d: malformed .func header", *lineNo)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return rxerr.New(rxerr.LoaderError, "line %d: bad func index: %v", *lineNo, err)
	}
	arity, err := strconv.Atoi(parts[3])
	if err != nil {
		return rxerr.New(rxerr.LoaderError, "line %d: bad arity: %v", *lineNo, err)
	}
	locals, err := strconv.Atoi(parts[4])
	if err != nil {
		return rxerr.New(rxerr.LoaderError, "line %d: bad locals count: %v", *lineNo, err)
	}

	code, err := parseCodeBlock(sc, lineNo, ".endfunc")
	if err != nil {
		return err
	}
	p.Funcs = growTo(p.Funcs, idx+1)
	p.Funcs[idx] = Function{Name: parts[2], Arity: arity, Locals: locals, Code: code}
	return nil
}

func parseExprSection(sc *bufio.Scanner, lineNo *int, header string, p *Program) error {
	parts := splitRecord(header)
	if len(parts) < 2 {
		return rxerr.New(rxerr.LoaderError, "line %d: malformed .expr header", *lineNo)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return rxerr.New(rxerr.LoaderError, "line %d: bad expr index: %v", *lineNo, err)
	}
	code, err := parseCodeBlock(sc, lineNo, ".endexpr")
	if err != nil {
		return err
	}
	p.Exprs = growTo(p.Exprs, idx+1)
	p.Exprs[idx] = Expression{Code: code}
	return nil
}

func parseEntryDirective(line string) (int, error) {
	parts := splitRecord(line)
	if len(parts) < 2 {
		return 0, rxerr.New(rxerr.LoaderError, "malformed .entry directive")
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, rxerr.New(rxerr.LoaderError, "bad entry function index: %v", err)
	}
	return idx, nil
}

// parseCodeBlock reads instruction lines until a line exactly matching
// terminator is seen.
func parseCodeBlock(sc *bufio.Scanner, lineNo *int, terminator string) ([]Instr, error) {
	var code []Instr
	for sc.Scan() {
		*lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == terminator {
			return code, nil
		}
		if line == "" {
			continue
		}
		in, err := parseInstr(line)
		if err != nil {
			return nil, rxerr.New(rxerr.LoaderError, "line %d: %v", *lineNo, err)
		}
		code = append(code, in)
	}
	return nil, rxerr.New(rxerr.LoaderError, "unterminated code block, expected %s", terminator)
}

func parseInstr(line string) (Instr, error) {
	fields := splitRecord(line)
	mnemonic := fields[0]
	op, ok := lookupOp(mnemonic)
	if !ok {
		return Instr{}, fmt.Errorf("unknown opcode %q", mnemonic)
	}
	operands := fields[1:]

	atoi := func(i int) (int, error) {
		if i >= len(operands) {
			return 0, fmt.Errorf("%s: missing operand %d", mnemonic, i)
		}
		n, err := strconv.Atoi(operands[i])
		if err != nil {
			return 0, fmt.Errorf("%s: bad integer operand: %v", mnemonic, err)
		}
		return n, nil
	}
	str := func(i int) (string, error) {
		if i >= len(operands) {
			return "", fmt.Errorf("%s: missing operand %d", mnemonic, i)
		}
		return operands[i], nil
	}

	var in Instr
	in.Op = op
	var err error
	switch op {
	case OpPushConst, OpJmp, OpJmpIfFalse, OpArraySetReactive, OpAllocRecord,
		OpFieldGet, OpFieldSetMut, OpBreak, OpContinue, OpError:
		in.IntA, err = atoi(0)
	case OpCall:
		in.IntA, err = atoi(0)
		if err == nil {
			in.IntB, err = atoi(1)
		}
	case OpDeclMut, OpDeclImm, OpLoad, OpStore:
		in.Str, err = str(0)
	case OpDeclReactive:
		in.Str, err = str(0)
		if err == nil {
			in.IntA, err = atoi(1)
		}
	case OpFieldSetReactive:
		in.IntA, err = atoi(0)
		if err == nil {
			in.IntB, err = atoi(1)
		}
	case OpCallNative:
		in.Str, err = str(0)
		if err == nil {
			in.IntA, err = atoi(1)
		}
	default:
		// No-operand opcodes: DUP, POP, SWAP, arithmetic/logic, casts,
		// RET/RET_VAL, scope bracketing, ALLOC_ARRAY, ARRAY_GET,
		// ARRAY_SET_MUT, PRINT/PRINTLN/ASSERT, AS_INT.
	}
	if err != nil {
		return Instr{}, err
	}
	return in, nil
}

// splitRecord tokenizes a line on whitespace, preserving a trailing
// double-quoted token (for string constants) as one field.
func splitRecord(line string) []string {
	var out []string
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == '"' {
			out = append(out, line[i:])
			break
		}
		j := i
		for j < len(line) && line[j] != ' ' {
			j++
		}
		out = append(out, line[i:j])
		i = j
	}
	return out
}

func unquote(s string) (string, error) {
	return strconv.Unquote(s)
}

func growTo[T any](s []T, n int) []T {
	for len(s) < n {
		var zero T
		s = append(s, zero)
	}
	return s
}
