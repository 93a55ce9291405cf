package crud

import (
	"errors"
	"fmt"
	"strings"
)

// Common engine error types
var (
	// ErrRecordNotFound is returned when a single-record read matches nothing and no default is set
	ErrRecordNotFound = errors.New("record not found")

	// ErrAmbiguousResult is returned when a single-record read matches more than one record
	ErrAmbiguousResult = errors.New("more than one record found")

	// ErrValidationFailed is returned when validation fails
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidRecord is returned when a relationship field holds something other than records
	ErrInvalidRecord = errors.New("invalid record")
)

// ValidationError carries the errors reported by an entity validator
type ValidationError struct {
	Table  string
	Errors []error
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return fmt.Sprintf("validation failed for %s", ve.Table)
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed for %s: %v", ve.Table, ve.Errors[0])
	}
	msgs := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed for %s: %d errors: %s", ve.Table, len(ve.Errors), strings.Join(msgs, "; "))
}

// Is reports whether target is ErrValidationFailed
func (ve *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unwrap exposes the individual validator errors
func (ve *ValidationError) Unwrap() []error {
	return ve.Errors
}

// IsNotFound returns true if the error is ErrRecordNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsAmbiguous returns true if the error is ErrAmbiguousResult
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguousResult)
}

// IsValidationFailed returns true if the error is a validation error
func IsValidationFailed(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
