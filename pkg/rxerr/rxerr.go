// Package rxerr defines the runtime's error kinds. Every error that
// reaches the VM's top level is a *rxerr.Error; none are catchable from
// source, so the type carries only enough structure for the diagnostics
// package to render a stack trace and exit non-zero.
package rxerr

import "fmt"

// Kind identifies which of the documented runtime error categories
// produced an Error.
type Kind string

const (
	TypeMismatch    Kind = "TypeMismatch"
	OutOfBounds     Kind = "OutOfBounds"
	UndeclaredField Kind = "UndeclaredField"
	UndefinedName   Kind = "UndefinedName"
	ReactiveCycle   Kind = "ReactiveCycle"
	AssertFailed    Kind = "AssertFailed"
	UserError       Kind = "UserError"
	ImmutableWrite  Kind = "ImmutableWrite"
	LoaderError     Kind = "LoaderError"
	DivisionByZero  Kind = "DivisionByZero"
)

// Error is a classified runtime failure. It is never recovered from
// within a running program; it propagates to the VM's top level.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
