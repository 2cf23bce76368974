package bytecode

import "github.com/chazu/reactor/pkg/rxerr"

// validate checks the structural invariants a parsed image must satisfy:
// every referenced constant/expression/function/struct index exists,
// exactly one of .entry/.module is present, and no instruction references
// an out-of-range index.
func validate(p *Program) error {
	if p.HasEntry == (len(p.ModuleStmts) > 0) {
		return rxerr.New(rxerr.LoaderError, "image must have exactly one of .entry or .module")
	}
	if p.HasEntry && (p.EntryFunc < 0 || p.EntryFunc >= len(p.Funcs)) {
		return rxerr.New(rxerr.LoaderError, "entry function index %d out of range", p.EntryFunc)
	}
	for i, f := range p.Funcs {
		if err := validateCode(p, f.Code); err != nil {
			return rxerr.New(rxerr.LoaderError, "function %d (%s): %v", i, f.Name, err)
		}
	}
	for i, e := range p.Exprs {
		if err := validateCode(p, e.Code); err != nil {
			return rxerr.New(rxerr.LoaderError, "expression %d: %v", i, err)
		}
	}
	if err := validateCode(p, p.ModuleStmts); err != nil {
		return rxerr.New(rxerr.LoaderError, "module statements: %v", err)
	}
	for i, s := range p.Structs {
		for _, fd := range s.Fields {
			if fd.HasInit && (fd.InitRef < 0 || fd.InitRef >= len(p.Exprs)) {
				return rxerr.New(rxerr.LoaderError, "struct %d (%s) field %q: init expr %d out of range", i, s.Name, fd.Name, fd.InitRef)
			}
		}
	}
	return nil
}

func validateCode(p *Program, code []Instr) error {
	for pc, in := range code {
		switch in.Op {
		case OpPushConst, OpError:
			if in.IntA < 0 || in.IntA >= len(p.Consts) {
				return rxerr.New(rxerr.LoaderError, "pc %d: %s references out-of-range const %d", pc, in.Op, in.IntA)
			}
		case OpCall:
			if in.IntA < 0 || in.IntA >= len(p.Funcs) {
				return rxerr.New(rxerr.LoaderError, "pc %d: CALL references out-of-range function %d", pc, in.IntA)
			}
		case OpDeclReactive:
			if in.IntA < 0 || in.IntA >= len(p.Exprs) {
				return rxerr.New(rxerr.LoaderError, "pc %d: DECL_REACTIVE references out-of-range expr %d", pc, in.IntA)
			}
		case OpArraySetReactive:
			if in.IntA < 0 || in.IntA >= len(p.Exprs) {
				return rxerr.New(rxerr.LoaderError, "pc %d: ARRAY_SET_REACTIVE references out-of-range expr %d", pc, in.IntA)
			}
		case OpFieldSetReactive:
			if in.IntB < 0 || in.IntB >= len(p.Exprs) {
				return rxerr.New(rxerr.LoaderError, "pc %d: FIELD_SET_REACTIVE references out-of-range expr %d", pc, in.IntB)
			}
		case OpAllocRecord:
			if in.IntA < 0 || in.IntA >= len(p.Structs) {
				return rxerr.New(rxerr.LoaderError, "pc %d: ALLOC_RECORD references out-of-range struct %d", pc, in.IntA)
			}
		case OpJmp, OpJmpIfFalse:
			if in.IntA < 0 || in.IntA > len(code) {
				return rxerr.New(rxerr.LoaderError, "pc %d: jump target %d out of range", pc, in.IntA)
			}
		}
	}
	return nil
}
