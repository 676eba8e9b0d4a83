package models

import (
	"errors"
	"fmt"
)

// Domain errors shared by the store and service layers.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrRequestNotFound   = errors.New("payment request not found")
	ErrRequestConflict   = errors.New("payment request already settled")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrForbidden         = errors.New("forbidden")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
