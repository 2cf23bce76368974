package builtins

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/value"
)

func TestFormatCharArrayAsString(t *testing.T) {
	h := value.NewHeap()
	id := MakeString(h, "hi")
	var buf bytes.Buffer
	Print(&buf, value.HeapRef(id), h, nil)
	if buf.String() != "hi" {
		t.Errorf("Print = %q, want %q", buf.String(), "hi")
	}
}

func TestFormatPlainArrayAsLength(t *testing.T) {
	h := value.NewHeap()
	id := h.AllocArray(4)
	if got := Format(value.HeapRef(id), h, nil); got != "4" {
		t.Errorf("Format = %q, want %q", got, "4")
	}
}

func TestFormatRecordAsStableName(t *testing.T) {
	h := value.NewHeap()
	id := h.AllocRecord(0, 2)
	structs := []bytecode.StructLayout{{Name: "Example"}}
	if got := Format(value.HeapRef(id), h, structs); got != "<record Example>" {
		t.Errorf("Format = %q, want %q", got, "<record Example>")
	}
}

func TestAssertFailsOnZero(t *testing.T) {
	if err := Assert(value.Int(0)); err == nil {
		t.Error("expected AssertFailed for 0")
	}
	if err := Assert(value.Int(1)); err != nil {
		t.Errorf("unexpected error for nonzero: %v", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	h := value.NewHeap()
	natives := Natives(h)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	pathVal := value.HeapRef(MakeString(h, path))
	contentsVal := value.HeapRef(MakeString(h, "hello"))

	if _, err := natives["file_write"]([]value.Value{pathVal, contentsVal}); err != nil {
		t.Fatal(err)
	}
	exists, err := natives["file_exists"]([]value.Value{pathVal})
	if err != nil || exists.AsInt() != 1 {
		t.Fatalf("file_exists = %v, %v", exists, err)
	}
	read, err := natives["file_read"]([]value.Value{pathVal})
	if err != nil {
		t.Fatal(err)
	}
	got, ok := StringOf(h, read.AsHeapRef())
	if !ok || got != "hello" {
		t.Fatalf("file_read = %q, %v", got, ok)
	}
	removed, err := natives["file_remove"]([]value.Value{pathVal})
	if err != nil || removed.AsInt() != 1 {
		t.Fatalf("file_remove = %v, %v", removed, err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("file should no longer exist")
	}
}
