package builtins

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/chazu/reactor/pkg/bytecode"
	"github.com/chazu/reactor/pkg/value"
)

// StringOf reads a heap array of Char as a Go string, normalized to NFC so
// that two source files using different composed/decomposed
// representations of the same text print identically. ok is false if id
// does not address an all-Char array.
func StringOf(h *value.Heap, id value.ID) (string, bool) {
	obj, err := h.Get(id)
	if err != nil || obj.Kind != value.KindArray {
		return "", false
	}
	var b strings.Builder
	for _, slot := range obj.Slots {
		if slot.Kind() == value.SlotReactive || !slot.Value().IsChar() {
			return "", false
		}
		b.WriteRune(rune(slot.Value().AsChar()))
	}
	return norm.NFC.String(b.String()), true
}

// MakeString allocates a fixed-size Char array holding s's runes, the heap
// representation the language uses for strings.
func MakeString(h *value.Heap, s string) value.ID {
	runes := []rune(s)
	id := h.AllocArray(len(runes))
	obj, _ := h.Get(id)
	for i, r := range runes {
		obj.Slots[i] = value.MutSlot(value.Char(uint32(r)))
	}
	return id
}

// Format renders v for print/println: Char as a single character, a heap
// array of Char as a string, any other array as its length, a record as a
// stable "<record LayoutName>" form, Unit/Int as their integer form.
func Format(v value.Value, h *value.Heap, structs []bytecode.StructLayout) string {
	switch v.Kind() {
	case value.KindChar:
		return string(rune(v.AsChar()))
	case value.KindHeapRef:
		obj, err := h.Get(v.AsHeapRef())
		if err != nil {
			return "0"
		}
		if obj.Kind == value.KindArray {
			if s, ok := StringOf(h, v.AsHeapRef()); ok {
				return s
			}
			return fmt.Sprintf("%d", obj.Len())
		}
		name := "?"
		if obj.LayoutID >= 0 && obj.LayoutID < len(structs) {
			name = structs[obj.LayoutID].Name
		}
		return fmt.Sprintf("<record %s>", name)
	default:
		return v.String()
	}
}

// Print writes v's formatted form to w with no trailing newline.
func Print(w io.Writer, v value.Value, h *value.Heap, structs []bytecode.StructLayout) {
	fmt.Fprint(w, Format(v, h, structs))
}

// Println writes v's formatted form to w followed by a newline.
func Println(w io.Writer, v value.Value, h *value.Heap, structs []bytecode.StructLayout) {
	fmt.Fprintln(w, Format(v, h, structs))
}
