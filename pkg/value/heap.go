package value

import (
	"github.com/chazu/reactor/pkg/clock"
	"github.com/chazu/reactor/pkg/loc"
	"github.com/chazu/reactor/pkg/rxerr"
)

// ObjectKind identifies which heap-object variant an object is.
type ObjectKind uint8

const (
	// KindArray is a fixed-size, zero-initialized array of slots.
	KindArray ObjectKind = iota
	// KindRecord is a closed set of fields fixed by a struct layout.
	KindRecord
)

// Slot is the universal storage cell: environment bindings, array
// elements, and record fields are all slots. Binding is a tagged variant
// with three cases so reads/writes dispatch on a tag rather than through
// interface polymorphism.
type Slot struct {
	kind SlotKind

	// Mut / Imm payload.
	value Value

	// Reactive payload: evaluated lazily by the reactive engine, which
	// owns the cache and dependency-version bookkeeping via the Location
	// that addresses this slot (the captured environment is kept by the
	// VM, keyed by the same Location). The heap/env packages only store the
	// expression id and a reference the reactive engine can key on;
	// Reactive caching state itself lives in the reactive engine's table,
	// not inlined here, so a Slot stays a small value type.
	exprID int
}

// SlotKind distinguishes the three binding disciplines: mutable,
// immutable, and reactive.
type SlotKind uint8

const (
	SlotMut SlotKind = iota
	SlotImm
	SlotReactive
)

// MutSlot creates a plain mutable slot.
func MutSlot(v Value) Slot { return Slot{kind: SlotMut, value: v} }

// ImmSlot creates a write-once immutable slot.
func ImmSlot(v Value) Slot { return Slot{kind: SlotImm, value: v} }

// ReactiveSlot creates a slot whose value is the lazy evaluation of exprID.
// The slot stores only the expression id (its Value is Unit); evaluated
// results are cached by the reactive engine, keyed by the slot's Location.
func ReactiveSlot(exprID int) Slot { return Slot{kind: SlotReactive, exprID: exprID} }

// Kind reports the slot's binding discipline.
func (s Slot) Kind() SlotKind { return s.kind }

// ExprID returns the reactive expression id. Callers must check Kind first.
func (s Slot) ExprID() int { return s.exprID }

// Value returns the stored value for Mut/Imm slots. Callers must check
// Kind first; reactive slots have no directly stored value.
func (s Slot) Value() Value { return s.value }

// Write updates a Mut slot in place, or rejects a write to an Imm/Reactive
// slot with ImmutableWrite.
func (s *Slot) Write(v Value) error {
	switch s.kind {
	case SlotMut:
		s.value = v
		return nil
	case SlotImm:
		return rxerr.New(rxerr.ImmutableWrite, "cannot assign to an immutable (:=) binding")
	default:
		return rxerr.New(rxerr.ImmutableWrite, "cannot directly assign to a reactive (::=) binding")
	}
}

// HeapObject is a heap-allocated Array or Record.
type HeapObject struct {
	Kind     ObjectKind
	LayoutID int    // struct layout id, valid only for KindRecord
	Slots    []Slot // elements (Array) or fields (Record), in order
}

// Heap is a dense table of heap objects addressed by stable ids. Allocation
// appends and returns a fresh id; slots remain nil once an id is freed so
// stale references fail loudly rather than aliasing a reused slot.
type Heap struct {
	objects []*HeapObject
}

// NewHeap creates an empty heap.
func NewHeap() *Heap { return &Heap{} }

// AllocArray allocates a fixed-size, zero-initialized array and returns its id.
func (h *Heap) AllocArray(length int) ID {
	slots := make([]Slot, length)
	for i := range slots {
		slots[i] = MutSlot(Int(0))
	}
	obj := &HeapObject{Kind: KindArray, Slots: slots}
	h.objects = append(h.objects, obj)
	return ID(len(h.objects) - 1)
}

// AllocRecord allocates a record with the given layout's field count, all
// fields zero-initialized; callers (the VM, following the layout's
// initializer expressions) populate fields via SetFieldMut/SetFieldImm/
// SetFieldReactive.
func (h *Heap) AllocRecord(layoutID int, fieldCount int) ID {
	slots := make([]Slot, fieldCount)
	for i := range slots {
		slots[i] = MutSlot(Int(0))
	}
	obj := &HeapObject{Kind: KindRecord, LayoutID: layoutID, Slots: slots}
	h.objects = append(h.objects, obj)
	return ID(len(h.objects) - 1)
}

// Get returns the heap object for id, or an OutOfBounds-flavored error if
// id does not address a live object. An invalid heap id here indicates a
// loader/VM bug rather than a user-reachable array bounds violation, but
// it is reported the same way since both are "no such storage location".
func (h *Heap) Get(id ID) (*HeapObject, error) {
	if int(id) < 0 || int(id) >= len(h.objects) || h.objects[id] == nil {
		return nil, rxerr.New(rxerr.OutOfBounds, "invalid heap reference %d", id)
	}
	return h.objects[id], nil
}

// Len returns the object's element/field count. Used for arrays-as-integers
// coercion (an array used in integer context evaluates to its length).
func (o *HeapObject) Len() int { return len(o.Slots) }

// ElementSlot returns a pointer to the array element at i. Out-of-range
// indices raise OutOfBounds rather than growing or wrapping.
func (o *HeapObject) ElementSlot(i int) (*Slot, error) {
	if o.Kind != KindArray {
		return nil, rxerr.New(rxerr.TypeMismatch, "not an array")
	}
	if i < 0 || i >= len(o.Slots) {
		return nil, rxerr.New(rxerr.OutOfBounds, "array index %d out of bounds [0, %d)", i, len(o.Slots))
	}
	return &o.Slots[i], nil
}

// FieldSlot returns a pointer to the record field at idx. A field index
// that does not exist in the layout is an UndeclaredField error; the
// caller (the VM, using the struct layout table) is responsible for
// resolving field names to indices before calling this, so an
// out-of-range idx here always means "no such field."
func (o *HeapObject) FieldSlot(idx int) (*Slot, error) {
	if o.Kind != KindRecord {
		return nil, rxerr.New(rxerr.TypeMismatch, "not a record")
	}
	if idx < 0 || idx >= len(o.Slots) {
		return nil, rxerr.New(rxerr.UndeclaredField, "field index %d not in layout", idx)
	}
	return &o.Slots[idx], nil
}

// SetElementMut writes v to array element i as a Mut slot and bumps the
// global version clock for that location.
func (h *Heap) SetElementMut(clk *clock.Clock, id ID, i int, v Value) error {
	obj, err := h.Get(id)
	if err != nil {
		return err
	}
	slot, err := obj.ElementSlot(i)
	if err != nil {
		return err
	}
	*slot = MutSlot(v)
	clk.Bump(loc.InArray(uint32(id), i))
	return nil
}

// SetElementImm writes v to array element i as a write-once Imm slot and
// bumps the clock for that location.
func (h *Heap) SetElementImm(clk *clock.Clock, id ID, i int, v Value) error {
	obj, err := h.Get(id)
	if err != nil {
		return err
	}
	slot, err := obj.ElementSlot(i)
	if err != nil {
		return err
	}
	*slot = ImmSlot(v)
	clk.Bump(loc.InArray(uint32(id), i))
	return nil
}

// SetElementReactive rebinds array element i to a reactive slot evaluating
// exprID, replacing whatever was there before. Rebinding ::= on an array
// element replaces only the expression bound at that location; sibling
// elements are unaffected.
func (h *Heap) SetElementReactive(clk *clock.Clock, id ID, i int, exprID int) error {
	obj, err := h.Get(id)
	if err != nil {
		return err
	}
	slot, err := obj.ElementSlot(i)
	if err != nil {
		return err
	}
	*slot = ReactiveSlot(exprID)
	clk.Bump(loc.InArray(uint32(id), i))
	return nil
}

// SetFieldMut writes v to record field idx as a Mut slot and bumps the clock.
func (h *Heap) SetFieldMut(clk *clock.Clock, id ID, idx int, v Value) error {
	obj, err := h.Get(id)
	if err != nil {
		return err
	}
	slot, err := obj.FieldSlot(idx)
	if err != nil {
		return err
	}
	*slot = MutSlot(v)
	clk.Bump(loc.InRecord(uint32(id), idx))
	return nil
}

// SetFieldImm writes v to record field idx as a write-once Imm slot and
// bumps the clock. Used for a struct layout field declared `:=`, whose
// initializer runs once at ALLOC_RECORD time.
func (h *Heap) SetFieldImm(clk *clock.Clock, id ID, idx int, v Value) error {
	obj, err := h.Get(id)
	if err != nil {
		return err
	}
	slot, err := obj.FieldSlot(idx)
	if err != nil {
		return err
	}
	*slot = ImmSlot(v)
	clk.Bump(loc.InRecord(uint32(id), idx))
	return nil
}

// SetFieldReactive rebinds record field idx to a reactive slot evaluating exprID.
func (h *Heap) SetFieldReactive(clk *clock.Clock, id ID, idx int, exprID int) error {
	obj, err := h.Get(id)
	if err != nil {
		return err
	}
	slot, err := obj.FieldSlot(idx)
	if err != nil {
		return err
	}
	*slot = ReactiveSlot(exprID)
	clk.Bump(loc.InRecord(uint32(id), idx))
	return nil
}
