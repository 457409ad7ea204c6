package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. ErrNoFace and ErrNoEncoding are first-class domain
// outcomes, distinct from transient failures; callers branch on them with
// errors.Is.
var (
	ErrMissingSourcePath = errors.New("missing source path")
	ErrMissingImageID    = errors.New("missing image id")
	ErrNoFace            = errors.New("no face detected")
	ErrNoEncoding        = errors.New("no face encoding produced")
	ErrAmbiguousQuery    = errors.New("query image contains multiple faces")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
