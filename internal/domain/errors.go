package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrCapacity is returned when a client's licence limit would be exceeded.
	ErrCapacity = errors.New("licence capacity exceeded")
	// ErrAuth is returned for role or tenant-scope violations.
	ErrAuth = errors.New("access denied")
	// ErrRole is returned when the caller's role forbids the operation. It wraps ErrAuth.
	ErrRole = fmt.Errorf("%w: role not permitted", ErrAuth)
	// ErrState is returned when an operation is invalid for the current lifecycle state.
	ErrState = errors.New("invalid state")
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrImmutable is returned when editing a question frozen by prior grading activity.
	ErrImmutable = errors.New("question is immutable")
	// ErrIncomplete is returned when a final aggregate is requested before grading finished.
	ErrIncomplete = errors.New("grading incomplete")
	// ErrVersionConflict is returned by repositories when a conditional write lost a race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists is returned by repositories when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// FieldError points a validation failure at a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is the error value returned by every core operation. Kind is one of
// the sentinel errors above, so callers test it with errors.Is.
type Error struct {
	Kind   error
	Reason string
	Fields []FieldError
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError builds an Error of the given kind with a formatted reason.
func NewError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// NewValidationError builds an ErrValidation carrying field errors.
func NewValidationError(fields ...FieldError) error {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return &Error{Kind: ErrValidation, Reason: strings.Join(parts, "; "), Fields: fields}
}

// Fields returns the field errors attached to err, if any.
func Fields(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// KindOf reports which taxonomy kind err belongs to, or nil for unexpected errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrCapacity, ErrRole, ErrAuth, ErrState, ErrNotFound, ErrImmutable, ErrIncomplete} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
