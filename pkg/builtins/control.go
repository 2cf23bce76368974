package builtins

import (
	"github.com/chazu/reactor/pkg/rxerr"
	"github.com/chazu/reactor/pkg/value"
)

// Assert implements `assert expr`: fails with AssertFailed when v is the
// integer 0 (the language's canonical false).
func Assert(v value.Value) error {
	if v.IsInt() && v.AsInt() == 0 {
		return rxerr.New(rxerr.AssertFailed, "assertion failed")
	}
	if v.IsUnit() {
		return rxerr.New(rxerr.AssertFailed, "assertion failed")
	}
	return nil
}

// Error implements `error "msg"`: unconditionally fails with UserError.
func Error(msg string) error {
	return rxerr.New(rxerr.UserError, "%s", msg)
}
