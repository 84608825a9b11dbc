package domain

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is the result of Account.Validate. An empty list means valid.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil for an empty list, otherwise the list wrapped in ErrInvalidInput.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, v)
}

func (v *ValidationErrors) add(field, msg string) {
	*v = append(*v, ValidationError{Field: field, Message: msg})
}
