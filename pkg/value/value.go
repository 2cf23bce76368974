package value

import "fmt"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindUnit is the value returned by a function with no explicit return.
	KindUnit Kind = iota
	// KindInt is a 32-bit signed integer.
	KindInt
	// KindChar is a Unicode scalar value.
	KindChar
	// KindHeapRef is an opaque reference to a heap object.
	KindHeapRef
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "Unit"
	case KindInt:
		return "Int"
	case KindChar:
		return "Char"
	case KindHeapRef:
		return "HeapRef"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is the universal runtime value: a tagged sum of Int(i32), Char(u32),
// HeapRef(id), and Unit. Arithmetic and logic operate on Int; Char coerces
// to Int implicitly in arithmetic contexts and explicitly via casts.
type Value struct {
	kind Kind
	i    int32  // payload for KindInt
	c    uint32 // payload for KindChar
	ref  ID     // payload for KindHeapRef
}

// ID is an opaque, stable heap object identifier.
type ID uint32

// Unit is the single Unit value, printed as "0".
var Unit = Value{kind: KindUnit}

// Int constructs an Int value.
func Int(i int32) Value { return Value{kind: KindInt, i: i} }

// Char constructs a Char value from a raw (already-validated) scalar.
func Char(c uint32) Value { return Value{kind: KindChar, c: c} }

// HeapRef constructs a HeapRef value addressing the given heap id.
func HeapRef(id ID) Value { return Value{kind: KindHeapRef, ref: id} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsInt reports whether v holds an Int.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsChar reports whether v holds a Char.
func (v Value) IsChar() bool { return v.kind == KindChar }

// IsHeapRef reports whether v holds a HeapRef.
func (v Value) IsHeapRef() bool { return v.kind == KindHeapRef }

// IsUnit reports whether v holds Unit.
func (v Value) IsUnit() bool { return v.kind == KindUnit }

// AsInt returns the raw int32 payload. Callers must check IsInt first.
func (v Value) AsInt() int32 { return v.i }

// AsChar returns the raw uint32 scalar payload. Callers must check IsChar first.
func (v Value) AsChar() uint32 { return v.c }

// AsHeapRef returns the heap id payload. Callers must check IsHeapRef first.
func (v Value) AsHeapRef() ID { return v.ref }

// Truthy implements the language's boolean semantics: 0 is false, any other
// integer is true. Non-integer values (after the caller has coerced Char to
// Int, or resolved an array to its length) are never asked for truthiness
// directly; ToInt should be used first.
func Truthy(i int32) bool { return i != 0 }

// Bool returns the canonical Int encoding of a boolean result: 1 for true, 0
// for false.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// Equal implements value equality: Int/Char compare by numeric value (after
// coercion), HeapRef by reference identity, Unit equals only Unit.
func Equal(a, b Value) bool {
	an, aIsNum := numericValue(a)
	bn, bIsNum := numericValue(b)
	if aIsNum && bIsNum {
		return an == bn
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindHeapRef:
		return a.ref == b.ref
	case KindUnit:
		return true
	default:
		return false
	}
}

func numericValue(v Value) (int64, bool) {
	switch v.kind {
	case KindInt:
		return int64(v.i), true
	case KindChar:
		return int64(v.c), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindUnit:
		return "0"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindChar:
		return fmt.Sprintf("Char(%U)", v.c)
	case KindHeapRef:
		return fmt.Sprintf("HeapRef(%d)", v.ref)
	default:
		return "?"
	}
}
