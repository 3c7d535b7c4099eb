package apperror

import (
	"errors"
	"fmt"
)

// Sentinel categories. Handlers map these to HTTP statuses with errors.Is;
// services stay ignorant of HTTP.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUpstream        = errors.New("upstream failure")
)

// Error carries a category sentinel plus a human-readable message safe to
// return to clients.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthenticated reports a missing or invalid caller credential.
func Unauthenticated(message string) *Error {
	return &Error{Err: ErrUnauthenticated, Message: message}
}

// Forbidden reports an authenticated caller lacking rights to the target.
func Forbidden(message string) *Error {
	return &Error{Err: ErrForbidden, Message: message}
}

// NotFound reports an absent entity.
func NotFound(resource, id string) *Error {
	return &Error{Err: ErrNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// InvalidInput reports missing or malformed required fields.
func InvalidInput(message string) *Error {
	return &Error{Err: ErrInvalidInput, Message: message}
}

// Upstream reports a failed call to an external collaborator (identity
// provider, object store, mail relay).
func Upstream(message string, cause error) *Error {
	return &Error{Err: fmt.Errorf("%w: %w", ErrUpstream, cause), Message: message}
}
