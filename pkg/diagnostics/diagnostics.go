// Package diagnostics formats stack traces and error-kind output: the
// message first, then the active call frames innermost first, colorized
// when the destination is a terminal.
package diagnostics

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/chazu/reactor/pkg/rxerr"
)

// Frame is one active call frame at the point of failure: a function name
// and the bytecode instruction position within it.
type Frame struct {
	Name string
	PC   int
}

// Reporter renders a failing run's error and trace to a writer, colorized
// when that writer is a terminal.
type Reporter struct {
	out     io.Writer
	color   bool
	profile termenv.Profile
}

// NewReporter builds a Reporter for out, auto-detecting color support when
// out is an *os.File connected to a terminal.
func NewReporter(out io.Writer) *Reporter {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{out: out, color: color, profile: termenv.ColorProfile()}
}

// Render writes err's message followed by the given frames, innermost
// (frames[len-1]) first.
func (r *Reporter) Render(err error, frames []Frame) {
	fmt.Fprintln(r.out, r.styleMessage(err))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		fmt.Fprintln(r.out, r.styleFrame(f))
	}
}

func (r *Reporter) styleMessage(err error) string {
	msg := err.Error()
	if !r.color {
		return msg
	}
	return termenv.String(msg).Foreground(r.profile.Color("9")).Bold().String()
}

func (r *Reporter) styleFrame(f Frame) string {
	line := fmt.Sprintf("  at %s:%d", f.Name, f.PC)
	if !r.color {
		return line
	}
	return termenv.String(line).Foreground(r.profile.Color("8")).String()
}

// KindOf reports the rxerr.Kind of err, for callers that want to branch on
// it without importing rxerr themselves (e.g. a summary that counts
// failures by kind).
func KindOf(err error) (rxerr.Kind, bool) {
	e, ok := rxerr.As(err)
	if !ok {
		return "", false
	}
	return e.Kind, true
}

// RunSummary renders an end-of-run summary line for Trace mode: elapsed
// duration and heap object count, both human-scaled. started is the run's
// start time; the elapsed duration is rendered the same way go-humanize
// renders any past instant ("3 seconds ago"), since a run's age and its
// duration are the same quantity measured from "now".
func RunSummary(started time.Time, heapObjects int) string {
	return fmt.Sprintf("run finished, started %s, %s heap objects allocated",
		humanize.Time(started),
		humanize.Comma(int64(heapObjects)))
}
