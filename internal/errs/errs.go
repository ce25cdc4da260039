package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer. Callers match them with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyClaimed   = errors.New("already claimed")
	ErrNotOwner         = errors.New("caller does not hold the claim")
	ErrStaleClaim       = errors.New("stale claim")
	ErrGatewayTimeout   = errors.New("language model gateway timeout")
	ErrGatewayError     = errors.New("language model gateway error")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnauthorized     = errors.New("unauthorized")
)

// FieldError describes a validation problem with a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors for one malformed input.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// IsRetryable reports whether the caller should re-list and try again
// rather than treat err as a fault.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrStaleClaim) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsGateway reports whether err came from the language model gateway.
func IsGateway(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayError)
}
