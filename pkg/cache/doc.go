// Package cache memoizes parsed bytecode.Program images in a bbolt
// database keyed by source path and modification time, so repeated
// `reactive run` invocations against an unchanged .rxb file skip
// re-parsing it. The cache only ever stores an already-validated Program;
// it never replaces pkg/bytecode's text loader as the source of truth,
// and a cache miss or corrupt entry always falls back to re-parsing.
package cache
