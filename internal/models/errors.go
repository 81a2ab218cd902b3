package models

import (
	"errors"
	"fmt"
)

// ValidationError signals bad job parameters; it is returned synchronously
// and never results in a persisted job row.
type ValidationError struct {
	Reason string
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// IsValidationError reports whether err (or its cause chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
