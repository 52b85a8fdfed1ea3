// Package apperror classifies failures returned by the core. It never formats
// messages for display; the presentation layer maps each kind to a response.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrAuth         = errors.New("authentication failed")
	ErrAuthRequired = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

type AppError struct {
	Err     error  // one of the sentinels above
	Message string // diagnostic text
	Field   string // optional: offending form field
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// AuthFailed is returned for every failed login, whatever the cause, so callers
// cannot tell an unknown username from a wrong password.
func AuthFailed() *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: "invalid username or password",
	}
}

func AuthRequired() *AppError {
	return &AppError{
		Err:     ErrAuthRequired,
		Message: "login required",
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Kind returns the sentinel err wraps, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrAuth, ErrAuthRequired, ErrForbidden, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
