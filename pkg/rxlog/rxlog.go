// Package rxlog wires structured, leveled logging around a VM run: module
// loads, cache hits/misses, and run start/end, each tagged with a run id so
// several "reactive run" invocations sharing one cache file can be told
// apart in logs.
package rxlog

import (
	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/reactor/pkg/rxerr"
)

// Configure registers the simple commonlog backend at the given verbosity
// (0 disables logging, higher is chattier), matching the backend the
// teacher's LSP server registers via its own blank import of
// commonlog/simple.
func Configure(verbosity int) {
	commonlog.Configure(verbosity, nil)
}

// Run is a logger scoped to one VM invocation, tagged with a run id.
type Run struct {
	log   commonlog.Logger
	runID string
}

// NewRun creates a Run logger with a fresh run id.
func NewRun() *Run {
	return &Run{
		log:   commonlog.GetLogger("reactor"),
		runID: uuid.NewString(),
	}
}

// RunID returns the run's tag, stable for the lifetime of this Run.
func (r *Run) RunID() string { return r.runID }

// Started logs the beginning of a run against the given module root.
func (r *Run) Started(moduleRoot string) {
	r.log.Infof("run %s starting, module root %q", r.runID, moduleRoot)
}

// ModuleLoaded logs a successful module link.
func (r *Run) ModuleLoaded(importPath string) {
	r.log.Debugf("run %s: linked module %q", r.runID, importPath)
}

// CacheHit logs that a parsed program was served from the compiled-program
// cache instead of being re-parsed.
func (r *Run) CacheHit(path string) {
	r.log.Debugf("run %s: cache hit for %q", r.runID, path)
}

// CacheMiss logs that a module had to be parsed from source.
func (r *Run) CacheMiss(path string) {
	r.log.Debugf("run %s: cache miss for %q", r.runID, path)
}

// Failed logs a run-terminating error, with the error kind rendered as a
// snake_case structured-log field.
func (r *Run) Failed(err error) {
	if e, ok := rxerr.As(err); ok {
		r.log.Errorf("run %s failed: kind=%s message=%s", r.runID, strcase.ToSnake(string(e.Kind)), e.Message)
		return
	}
	r.log.Errorf("run %s failed: %v", r.runID, err)
}

// Finished logs a successful run's completion.
func (r *Run) Finished() {
	r.log.Infof("run %s finished", r.runID)
}
