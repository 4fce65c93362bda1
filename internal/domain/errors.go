package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrOracleUnavailable = errors.New("extraction oracle unavailable")
	ErrMissingSourceText = errors.New("source report text missing")
	ErrSchemaMissing     = errors.New("findings schema missing")
)

// ValidationError reports a field that failed boundary validation, typically
// an oracle response value outside its closed enumeration.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}
