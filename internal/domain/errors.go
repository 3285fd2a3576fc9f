package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a request does not fit the current state
	// or violates a field constraint.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthenticated is returned when an operation needs a signed-in user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrStorage is wrapped by every StorageError.
	ErrStorage = errors.New("storage failure")

	// ErrBusy is returned when the same operation is already in flight.
	ErrBusy = errors.New("operation already in progress")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record with the same key exists.
	ErrConflict = errors.New("already exists")

	// ErrInvalidCredentials is returned on a failed sign-in.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// InputError describes which field of a request was rejected.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error { return ErrInvalidInput }

// NewInputError returns an InputError for field.
func NewInputError(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// StorageError reports a failed persistence call.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrStorage):
		return "storage_unavailable"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
