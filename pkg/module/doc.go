// Package module implements import resolution and a load-once registry:
// "import a.b.c" resolves to a bytecode image under a configured module
// root and is executed at most once per run, however many places reach it.
package module
