// Package value defines the tagged value representation and the heap of
// arrays and records that every other package in Reactor builds on.
//
// A Value is a tagged sum with four variants: Int, Char, HeapRef, and Unit.
// Unlike a NaN-boxed float (the representation Maggie's vm.Value uses to
// pack floats, small integers, object pointers, symbols, and block ids into
// one machine word), Value here is a plain Go struct: the value universe is
// small and has no floating point, so a tag byte plus one 32-bit payload
// field per variant (int32, uint32 scalar, heap id) is simpler.
package value
