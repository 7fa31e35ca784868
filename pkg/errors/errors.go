// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with a Wrap() method to wrap errors without resorting
// to fmt.Errorf("%w", err).
//
// Errors are declared as sentinels. A sentinel may extend another one,
// so callers may test either for the precise error or for its kind:
//
//	ErrRefNotFound = errors.ErrNotFound.Extend("ref not found")
//
//	errors.Is(ErrRefNotFound.Wrap(err), errors.ErrNotFound) // true
package errors

import (
	stderr "errors"

	"go.uber.org/zap"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// The main difference with github.com/pkg/errors is that we are wrapping
// errors from errors, not from text.
//
// Wrapping never mutates the receiver: sentinels may be safely shared.
type Error struct {
	msg    string
	parent *Error
	err    error
}

// Error message
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Extend declares a new sentinel error of the same kind as e
func (e *Error) Extend(msg string) *Error {
	return &Error{msg: msg, parent: e}
}

// Wrap a nested error. The result retains the identity of e.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, parent: e, err: err}
}

// WrapMessage wraps a nested error built from a formatted message
func (e *Error) WrapMessage(format string, args ...interface{}) *Error {
	return e.Wrap(&Error{msg: sprintf(format, args...)})
}

// WrapWithLog wraps a nested error and logs the result at the error level
func (e *Error) WrapWithLog(logger *zap.Logger, err error, fields ...zap.Field) *Error {
	wrapped := e.Wrap(err)
	if logger != nil {
		logger.Error(e.msg, append(fields, zap.Error(err))...)
	}
	return wrapped
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	for p := e; p != nil; p = p.parent {
		if p == target {
			return true
		}
	}
	return false
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.As)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
