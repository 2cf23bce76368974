package value

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/chazu/reactor/pkg/rxerr"
)

// maxScalar is the highest Unicode code point: (char) casts raise
// TypeMismatch outside [0, 0x10FFFF] or on a UTF-16 surrogate half, rather
// than silently saturating or wrapping.
const maxScalar = utf8.MaxRune

// ToInt coerces v to an Int for arithmetic/logic context. A Char coerces
// implicitly; any other non-Int kind is a TypeMismatch (array-as-integer
// coercion is handled one level up, by the VM, since it requires access to
// the heap).
func ToInt(v Value) (int32, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindChar:
		return int32(v.c), nil
	default:
		return 0, rxerr.New(rxerr.TypeMismatch, "expected Int or Char, got %s", v.kind)
	}
}

// CastInt implements the explicit (int) cast: Char and Int both produce an
// Int; anything else is a TypeMismatch.
func CastInt(v Value) (Value, error) {
	i, err := ToInt(v)
	if err != nil {
		return Value{}, err
	}
	return Int(i), nil
}

// CastChar implements the explicit (char) cast. The operand must be an Int
// (or Char, which is a no-op) whose numeric value is a valid Unicode scalar
// value: in [0, 0x10FFFF] and not a UTF-16 surrogate half.
func CastChar(v Value) (Value, error) {
	switch v.kind {
	case KindChar:
		return v, nil
	case KindInt:
		if v.i < 0 || v.i > maxScalar || utf16.IsSurrogate(rune(v.i)) {
			return Value{}, rxerr.New(rxerr.TypeMismatch, "%d is not a valid Unicode scalar value", v.i)
		}
		return Char(uint32(v.i)), nil
	default:
		return Value{}, rxerr.New(rxerr.TypeMismatch, "expected Int or Char, got %s", v.kind)
	}
}

// ValidScalar reports whether c is representable as a Char: a valid Unicode
// code point that is not a surrogate half.
func ValidScalar(c uint32) bool {
	return c <= maxScalar && !utf16.IsSurrogate(rune(c)) && utf8.ValidRune(rune(c))
}
