package diagnostics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/chazu/reactor/pkg/rxerr"
)

func TestRenderWritesMessageThenInnermostFrameFirst(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	err := rxerr.New(rxerr.ReactiveCycle, "a depends on b depends on a")
	frames := []Frame{
		{Name: "main", PC: 4},
		{Name: "outer", PC: 2},
		{Name: "inner", PC: 0},
	}
	r.Render(err, frames)

	out := buf.String()
	if !strings.Contains(out, "a depends on b depends on a") {
		t.Fatalf("expected error message in output, got:\n%s", out)
	}
	innerAt := strings.Index(out, "inner:0")
	outerAt := strings.Index(out, "outer:2")
	mainAt := strings.Index(out, "main:4")
	if innerAt == -1 || outerAt == -1 || mainAt == -1 {
		t.Fatalf("expected all three frames, got:\n%s", out)
	}
	if !(innerAt < outerAt && outerAt < mainAt) {
		t.Errorf("expected innermost-first ordering, got:\n%s", out)
	}
}

func TestRenderIsUncoloredForNonTerminalWriter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	if r.color {
		t.Fatal("expected color detection to be false for a bytes.Buffer destination")
	}
	r.Render(rxerr.New(rxerr.AssertFailed, "boom"), nil)
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected no ANSI escapes when writing to a non-terminal, got:\n%q", buf.String())
	}
}

func TestKindOfExtractsRxerrKind(t *testing.T) {
	kind, ok := KindOf(rxerr.New(rxerr.OutOfBounds, "index 5 out of range"))
	if !ok || kind != rxerr.OutOfBounds {
		t.Fatalf("expected OutOfBounds, got %v (ok=%v)", kind, ok)
	}

	if _, ok := KindOf(nil); ok {
		t.Fatal("expected a nil error to report ok=false")
	}
}

func TestRunSummaryFormatsHeapObjectCount(t *testing.T) {
	summary := RunSummary(time.Now().Add(-3*time.Second), 12345)
	if !strings.Contains(summary, "12,345") {
		t.Errorf("expected comma-grouped heap object count, got: %q", summary)
	}
}
