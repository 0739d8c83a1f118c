// Package domainerrors carries the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; transports translate the Code into
// a status and a stable, minimal external shape.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. The string value is the external error
// identifier written by the HTTP layer.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthenticated"
	CodeForbidden    Code = "role_denied"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeRateLimited  Code = "rate_limited"
	CodeUnavailable  Code = "upstream_unavailable"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Error is a domain error with a code, a caller-safe message and an optional
// wrapped cause that is only ever logged.
type Error struct {
	Code    Code
	Message string
	Err     error
	// RetryAfter is the number of seconds a caller should wait before retrying.
	// Only set for CodeRateLimited.
	RetryAfter int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewRateLimited creates a rate limit rejection carrying a retry-after hint.
func NewRateLimited(message string, retryAfter int) *Error {
	return &Error{Code: CodeRateLimited, Message: message, RetryAfter: retryAfter}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of the outermost domain error, or CodeInternal when
// err carries none.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// RetryAfterOf returns the retry-after hint in seconds, or zero.
func RetryAfterOf(err error) int {
	if de, ok := As(err); ok {
		return de.RetryAfter
	}
	return 0
}
