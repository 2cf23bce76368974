// Package vm implements the stack-machine interpreter: opcode dispatch
// over bytecode.Instr streams, function calls, and heap/array/
// record mutation. Reactive reads are delegated to pkg/reactive, with the
// VM itself supplying the pkg/reactive.Evaluator implementation so a
// reactive expression's instruction stream runs through the same dispatch
// loop as ordinary code.
package vm
