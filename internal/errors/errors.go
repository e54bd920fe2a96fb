package errors

import (
	stderrors "errors"
	"fmt"
)

// APIError is a categorized failure that is safe to show to clients.
// Cause is kept for logging and never serialized.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Status  int       `json:"-"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message, Status: code.StatusCode()}
}

// Unauthenticated creates an UNAUTHENTICATED error
func Unauthenticated(message string) *APIError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(ErrUnauthenticated, message)
}

// InvalidArgument creates an INVALID_ARGUMENT error
func InvalidArgument(message string) *APIError {
	return newError(ErrInvalidArgument, message)
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return newError(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// Forbidden creates a FORBIDDEN error
func Forbidden(message string) *APIError {
	return newError(ErrForbidden, message)
}

// Conflict creates a CONFLICT error
func Conflict(message string) *APIError {
	return newError(ErrConflict, message)
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return newError(ErrRateLimited, message)
}

// Unavailable wraps a downstream failure. The cause is logged, the message is generic.
func Unavailable(service string, cause error) *APIError {
	e := newError(ErrUnavailable, fmt.Sprintf("%s is temporarily unavailable", service))
	e.Cause = cause
	return e
}

// Internal wraps an unexpected failure
func Internal(cause error) *APIError {
	e := newError(ErrInternal, "Something went wrong")
	e.Cause = cause
	return e
}

// Wrap attaches cause to a new error of the given code
func Wrap(code ErrorCode, message string, cause error) *APIError {
	e := newError(code, message)
	e.Cause = cause
	return e
}

// As extracts an *APIError from err, if any
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode reports whether err is an *APIError with the given code
func HasCode(err error, code ErrorCode) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == code
}
