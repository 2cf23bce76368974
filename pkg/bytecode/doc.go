// Package bytecode parses the RXB1 text format into an in-memory Program
// image: a constant pool, a struct-layout table, a
// function table, an expression table (reactive expressions stored as
// standalone instruction streams for on-demand evaluation), and an entry
// point. The loader only materializes and structurally validates the
// image — every referenced constant/expression/function index must
// exist, and every instruction must decode — it does not interpret
// instructions; that is pkg/vm's job.
package bytecode
