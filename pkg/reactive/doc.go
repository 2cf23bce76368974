// Package reactive implements a dependency-tracked, pull-based evaluation
// engine. A reactive slot's expression is evaluated lazily, on first read,
// by calling back into a supplied Evaluator; the set of storage
// locations that evaluation actually reads is recorded as the slot's
// dependency fingerprint, and a later read is satisfied from cache as long
// as every one of those locations' clock versions is unchanged.
//
// A slot whose evaluation reads no location at all — most commonly a
// reactive binding whose expression is a call that only touches its
// arguments, never a Mut/Imm binding or heap slot — has no way to detect
// staleness and is therefore never cached; see the zero-dependency note
// on Engine.Read.
package reactive
