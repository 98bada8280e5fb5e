// Package apperr defines the error taxonomy shared by services, the function
// dispatcher and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeAlreadyTerminal      Code = "already_terminal"
	CodeConfirmationRequired Code = "confirmation_required"
	CodeUpstreamUnavailable  Code = "upstream_unavailable"
	CodeValidation           Code = "validation"
	CodeInternal             Code = "internal"
)

// Error is a classified error carrying a human-readable message.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap classifies err under code. A nil err returns nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func AlreadyTerminal(format string, args ...any) *Error {
	return New(CodeAlreadyTerminal, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func Upstream(format string, args ...any) *Error {
	return New(CodeUpstreamUnavailable, fmt.Sprintf(format, args...))
}

func Internal(format string, args ...any) *Error {
	return New(CodeInternal, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first classified error in err's chain,
// or CodeInternal when none is present.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Message returns a client-safe message for err. Unclassified errors are
// reported generically so internals never reach the client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}
