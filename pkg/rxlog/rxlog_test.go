package rxlog

import (
	"testing"

	"github.com/chazu/reactor/pkg/rxerr"
)

func TestNewRunAssignsStableDistinctIDs(t *testing.T) {
	Configure(0)

	a := NewRun()
	b := NewRun()

	if a.RunID() == "" {
		t.Fatal("expected a non-empty run id")
	}
	if a.RunID() == b.RunID() {
		t.Fatal("expected two runs to receive distinct ids")
	}
	if a.RunID() != a.RunID() {
		t.Fatal("expected RunID to be stable across calls")
	}
}

func TestRunLoggingMethodsDoNotPanic(t *testing.T) {
	Configure(0)

	r := NewRun()
	r.Started("/modules")
	r.ModuleLoaded("a.b.c")
	r.CacheHit("/modules/a/b/c.rxb")
	r.CacheMiss("/modules/a/b/c.rxb")
	r.Failed(rxerr.New(rxerr.ReactiveCycle, "a depends on b depends on a"))
	r.Finished()
}
