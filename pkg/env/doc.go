// Package env implements the scoped environment: an ordered chain of
// scopes, each mapping name to a slot, with the three binding
// kinds (Mut, Imm, Reactive) and the iteration-scope bracketing loops need
// so that mutable/reactive bindings created in a loop body persist across
// iterations while immutable captures (:=) are fresh every pass.
package env
