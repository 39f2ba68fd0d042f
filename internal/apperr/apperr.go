// Package apperr defines the error taxonomy shared by the tournament services
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeInvalidState      Code = "invalid_state"
	CodeAlreadyRegistered Code = "already_registered"
	CodeFull              Code = "full"
	CodeConfig            Code = "config_error"
	CodeExecution         Code = "execution_error"
)

// Error carries a code, an internal message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidState      = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrAlreadyRegistered = &Error{Code: CodeAlreadyRegistered, Message: "already registered"}
	ErrFull              = &Error{Code: CodeFull, Message: "full"}
	ErrConfig            = &Error{Code: CodeConfig, Message: "config error"}
	ErrExecution         = &Error{Code: CodeExecution, Message: "execution error"}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
