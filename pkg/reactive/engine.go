package reactive

import (
	"github.com/chazu/reactor/pkg/clock"
	"github.com/chazu/reactor/pkg/loc"
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// EvalRequest carries everything an Evaluator needs to run one reactive
// expression: which expression, and the environment it resolves bare
// identifiers against. Callers build the environment appropriately before
// calling Read — the captured lexical scope for a scope-bound reactive
// binding, or an env.NewRecordScope for a record-field reactive binding.
type EvalRequest struct {
	ExprID int
	Env    Resolver
}

// Resolver is the subset of *env.Environment the reactive engine needs.
// It is an interface (rather than a direct *env.Environment dependency) so
// this package never imports env, avoiding a cycle with anything env
// itself depends on.
type Resolver interface {
	Lookup(name string) (*value.Slot, loc.Location, bool)
}

// Evaluator runs one reactive expression to completion, producing its
// value. Implemented by the VM, which is the only thing that knows how to
// execute an expr_id's instruction stream.
type Evaluator interface {
	Eval(req EvalRequest) (value.Value, error)
}

type cacheEntry struct {
	value value.Value
	deps  map[loc.Location]uint64
}

// frame accumulates the locations read during one in-flight evaluation.
type frame struct {
	deps map[loc.Location]uint64
}

// Engine is the reactive runtime: cache, cycle guard, and dependency
// tracker, all keyed by the Location a reactive slot lives at.
type Engine struct {
	clk        *clock.Clock
	eval       Evaluator
	cache      map[loc.Location]*cacheEntry
	evaluating map[loc.Location]bool
	stack      []*frame
}

// New creates an engine bound to clk. SetEvaluator must be called before
// the first Read.
func New(clk *clock.Clock) *Engine {
	return &Engine{
		clk:        clk,
		cache:      make(map[loc.Location]*cacheEntry),
		evaluating: make(map[loc.Location]bool),
	}
}

// SetEvaluator wires the VM as the expression evaluator. Split from New
// because the VM typically constructs its Engine before it can supply
// itself as the Evaluator.
func (e *Engine) SetEvaluator(ev Evaluator) { e.eval = ev }

// TrackRead records a read of l against every evaluation currently in
// flight. The VM calls this on every Mut/Imm slot read (env lookups, array
// element reads, record field reads) so that any reactive evaluation
// enclosing that read — directly, or transitively through nested reactive
// reads — picks up l as one of its dependencies.
func (e *Engine) TrackRead(l loc.Location) {
	if len(e.stack) == 0 {
		return
	}
	v := e.clk.Version(l)
	for _, f := range e.stack {
		f.deps[l] = v
	}
}

// Read resolves the reactive slot at location l, evaluating req lazily on
// a cache miss and reusing the cached value when every tracked dependency's
// clock version still matches.
//
// A slot whose last evaluation read zero locations is never cached: with
// no dependency to watch, there is no way to tell a stale value from a
// fresh one, so the engine re-evaluates on every read rather than return a
// value that can silently go wrong. This matches the reference
// implementation's behavior of always re-evaluating a reactive expression,
// and is what makes a mutation to a heap object a reactive call just
// produced invisible on the next read: the next read rebuilds the object
// from scratch rather than returning the one that was mutated.
func (e *Engine) Read(l loc.Location, req EvalRequest) (value.Value, error) {
	if e.evaluating[l] {
		return value.Value{}, rxerr.New(rxerr.ReactiveCycle, "reactive expression depends on its own value")
	}

	if entry, ok := e.cache[l]; ok && e.fingerprintMatches(entry.deps) {
		for loc2, ver := range entry.deps {
			e.propagate(loc2, ver)
		}
		return entry.value, nil
	}

	e.evaluating[l] = true
	e.stack = append(e.stack, &frame{deps: make(map[loc.Location]uint64)})

	val, err := e.eval.Eval(req)

	f := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	delete(e.evaluating, l)

	if err != nil {
		delete(e.cache, l)
		return value.Value{}, err
	}

	if len(f.deps) == 0 {
		delete(e.cache, l)
	} else {
		e.cache[l] = &cacheEntry{value: val, deps: f.deps}
	}
	return val, nil
}

// propagate merges a single dependency at its already-confirmed version
// into every evaluation currently in flight, same as TrackRead but without
// re-reading the clock (used when replaying a cache hit's fingerprint).
func (e *Engine) propagate(l loc.Location, ver uint64) {
	for _, f := range e.stack {
		f.deps[l] = ver
	}
}

func (e *Engine) fingerprintMatches(deps map[loc.Location]uint64) bool {
	for l, ver := range deps {
		if e.clk.Version(l) != ver {
			return false
		}
	}
	return true
}

// Invalidate drops any cached value for l, forcing the next Read to
// re-evaluate. Used when a reactive binding itself is rebound (::=
// replacing the expression at an existing location).
func (e *Engine) Invalidate(l loc.Location) {
	delete(e.cache, l)
}

// Roots appends every heap id held by a cached reactive value to dst,
// implementing value.RootSet: a cached array/record result keeps its heap
// object alive even though nothing in the live scope chain points at it
// directly.
func (e *Engine) Roots(dst []value.ID) []value.ID {
	for _, entry := range e.cache {
		if entry.value.IsHeapRef() {
			dst = append(dst, entry.value.AsHeapRef())
		}
	}
	return dst
}
