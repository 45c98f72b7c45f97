// Package apierr defines the error taxonomy shared by the Tracker and Tool
// Supervisor HTTP surfaces, mirroring the teacher's error_mapper shape.
package apierr

import "fmt"

// Code is the taxonomy's stable string discriminant, also the JSON "error"
// field value returned to clients.
type Code string

const (
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeUpstream   Code = "upstream_error"
	CodeInternal   Code = "internal_error"
)

// Error is the common shape every apierr type implements.
type Error struct {
	Code    Code
	Message string
	// Cause, when set, is wrapped for errors.Is/errors.As callers.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// BadRequest builds a validation-failure error.
func BadRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds an unknown-id error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a collaborator-call failure (non-2xx, timeout, empty
// required field).
func Upstream(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeUpstream, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Internal wraps an unexpected failure.
func Internal(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Truncate clips s to n characters, used for failure_reason (<=500 chars
// per the data model).
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
