// Package builtins implements the host-exposed functions: print/println
// value formatting, assert/error, and the filesystem primitives available
// to CALL_NATIVE. A failed filesystem call returns a sentinel failure
// value rather than panicking, so it is ordinary control flow in the
// reactive language rather than a VM-level error.
package builtins
