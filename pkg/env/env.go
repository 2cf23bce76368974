package env

import (
	"github.com/chazu/reactor/pkg/clock"
	"github.com/chazu/reactor/pkg/loc"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// binding pairs a slot with the location it lives at, so a lookup returns
// both without the caller having to reconstruct the location from scope
// bookkeeping.
type binding struct {
	slot     *value.Slot
	location loc.Location
}

// Scope is one link in the environment chain. iteration marks a scope
// pushed by ENTER_ITER_SCOPE: Mut and Reactive declarations skip past it
// to the long-lived scope beneath, while Imm declarations always land in
// the current scope, whatever it is.
type Scope struct {
	id        int
	parent    *Scope
	iteration bool
	names     map[string]*binding
}

// Environment is the scope chain, rooted at a single top-level scope
// created by New. idgen is a pointer, not a plain int, so that a
// Capture (a second Environment value sharing the same scope-id space) can
// never allocate an id already used by the environment it was captured
// from — see Capture's doc comment for why this matters.
type Environment struct {
	clk     *clock.Clock
	current *Scope
	idgen   *int
}

// New creates an environment with a single root scope.
func New(clk *clock.Clock) *Environment {
	return &Environment{clk: clk, current: &Scope{names: map[string]*binding{}}, idgen: new(int)}
}

// PushScope opens a new ordinary (non-iteration) block scope nested in the
// current one, as for an if branch. Function call frames use PushCallScope.
func (e *Environment) PushScope() {
	*e.idgen++
	e.current = &Scope{id: *e.idgen, parent: e.current, names: map[string]*binding{}}
}

// PushIterScope opens a new per-iteration scope. Loop bodies push one of
// these before each pass and pop it after, so := bindings inside the body
// do not leak between iterations.
func (e *Environment) PushIterScope() {
	*e.idgen++
	e.current = &Scope{id: *e.idgen, parent: e.current, iteration: true, names: map[string]*binding{}}
}

// Capture returns a new Environment value pointing at e's current scope,
// sharing e's clock and scope-id generator but free to push/pop its own
// scopes independently of e. This is how a reactive binding's captured
// environment (the lexical scope at ::= time) is recorded: the captured
// *Scope pointer stays valid (and its bindings live) even after e
// itself moves on to other scopes, because Go's garbage collector keeps it
// reachable via the Environment value stored against the reactive slot's
// location. Sharing idgen, rather than each Environment counting
// independently from zero, is what keeps a scope pushed during later
// reactive re-evaluation from reusing an id already live elsewhere in the
// program — two different scopes with the same id would alias unrelated
// locations in the dependency fingerprint table.
func (e *Environment) Capture() *Environment {
	return &Environment{clk: e.clk, current: e.current, idgen: e.idgen}
}

// PopScope closes the current scope, returning to its parent.
func (e *Environment) PopScope() error {
	if e.current.parent == nil {
		return rxerr.New(rxerr.LoaderError, "cannot pop the root scope")
	}
	e.current = e.current.parent
	return nil
}

// ScopeMark is an opaque saved scope position, for restoring the chain
// after a function call whose frame was parented at the root scope rather
// than at the caller's current scope.
type ScopeMark struct{ scope *Scope }

// Mark saves the current scope so a later call can restore it.
func (e *Environment) Mark() ScopeMark { return ScopeMark{e.current} }

// Restore returns to a previously marked scope, discarding any scopes
// pushed since. Used by the VM after a function call returns, since the
// call's own frame was parented at the root scope (via PushCallScope),
// not at the caller's scope chain.
func (e *Environment) Restore(m ScopeMark) { e.current = m.scope }

func (e *Environment) root() *Scope {
	s := e.current
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// PushCallScope opens a new scope parented at the root (global) scope,
// regardless of the caller's current scope — a function body sees the
// global scope and its own parameters/locals, not the caller's locals.
func (e *Environment) PushCallScope() {
	*e.idgen++
	e.current = &Scope{id: *e.idgen, parent: e.root(), names: map[string]*binding{}}
}

// longLived returns the nearest enclosing scope that is not an iteration
// scope: the target for Mut/Reactive declarations, since these persist
// across loop iterations while := bindings do not.
func (e *Environment) longLived() *Scope {
	s := e.current
	for s.iteration {
		s = s.parent
	}
	return s
}

func (e *Environment) find(name string) *binding {
	for s := e.current; s != nil; s = s.parent {
		if b, ok := s.names[name]; ok {
			return b
		}
	}
	return nil
}

// Lookup resolves name against the scope chain, innermost first.
func (e *Environment) Lookup(name string) (*value.Slot, loc.Location, bool) {
	if b := e.find(name); b != nil {
		return b.slot, b.location, true
	}
	return nil, loc.Location{}, false
}

// Roots appends every heap id directly reachable from this environment's
// Mut/Imm bindings to dst, implementing value.RootSet. Reactive bindings
// hold no value of their own to walk; their cached results are rooted
// separately by the reactive engine.
func (e *Environment) Roots(dst []value.ID) []value.ID {
	for s := e.current; s != nil; s = s.parent {
		for _, b := range s.names {
			if b.slot.Kind() == value.SlotReactive {
				continue
			}
			if v := b.slot.Value(); v.IsHeapRef() {
				dst = append(dst, v.AsHeapRef())
			}
		}
	}
	return dst
}

func (e *Environment) declareIn(scope *Scope, name string, s value.Slot) loc.Location {
	l := loc.InScope(scope.id, name)
	scope.names[name] = &binding{slot: &s, location: l}
	e.clk.Bump(l)
	return l
}

// DeclareMut introduces a fresh Mut binding in the long-lived scope.
func (e *Environment) DeclareMut(name string, v value.Value) loc.Location {
	return e.declareIn(e.longLived(), name, value.MutSlot(v))
}

// DeclareImm introduces a fresh Imm binding in the current scope. Unlike
// Mut/Reactive, this always targets the current scope (even an iteration
// scope) so := gets a new location every pass through a loop body.
func (e *Environment) DeclareImm(name string, v value.Value) loc.Location {
	return e.declareIn(e.current, name, value.ImmSlot(v))
}

// DeclareReactive introduces a fresh Reactive binding in the long-lived
// scope, evaluating exprID lazily on first read.
func (e *Environment) DeclareReactive(name string, exprID int) loc.Location {
	return e.declareIn(e.longLived(), name, value.ReactiveSlot(exprID))
}

// AssignMut implements the "=" lookup policy: if name is already bound
// anywhere in the chain, write through that binding
// (rejecting the write with ImmutableWrite if it is Imm or Reactive);
// otherwise declare a fresh Mut binding in the long-lived scope.
func (e *Environment) AssignMut(name string, v value.Value) (loc.Location, error) {
	if b := e.find(name); b != nil {
		if err := b.slot.Write(v); err != nil {
			return b.location, err
		}
		e.clk.Bump(b.location)
		return b.location, nil
	}
	return e.DeclareMut(name, v), nil
}

// AssignReactive implements the "::=" lookup policy: if name is already
// bound, rebind that location to a fresh reactive slot evaluating exprID,
// replacing whatever kind of binding was there before; otherwise declare
// a fresh Reactive binding in the long-lived scope.
func (e *Environment) AssignReactive(name string, exprID int) loc.Location {
	if b := e.find(name); b != nil {
		*b.slot = value.ReactiveSlot(exprID)
		e.clk.Bump(b.location)
		return b.location
	}
	return e.DeclareReactive(name, exprID)
}

// NewRecordScope builds a throwaway one-scope environment whose bindings
// alias the given record's own slots directly: reading or writing through
// it reads/writes the same storage as the heap object, and locations
// report as record-field locations so the reactive engine's dependency
// tracking sees the true address rather than a copy. This is how a
// record-field reactive expression's restricted "fields only" lookup
// scope is built.
func NewRecordScope(clk *clock.Clock, heapID value.ID, fieldNames []string, slots []value.Slot) *Environment {
	names := make(map[string]*binding, len(fieldNames))
	for i, n := range fieldNames {
		names[n] = &binding{slot: &slots[i], location: loc.InRecord(uint32(heapID), i)}
	}
	return &Environment{clk: clk, current: &Scope{names: names}, idgen: new(int)}
}
