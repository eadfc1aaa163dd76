package errors

import (
	"errors"
	"fmt"
)

var (
	// Note errors
	ErrNoteNotFound    = errors.New("note not found")
	ErrNoteDeleted     = errors.New("note already deleted on server")
	ErrInvalidMutation = errors.New("invalid mutation")

	// Outbox errors
	ErrItemNotFound       = errors.New("outbox item not found")
	ErrItemQuarantined    = errors.New("outbox item quarantined")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrStorageExhausted   = errors.New("local storage exhausted")
	ErrDeadLetterNotFound = errors.New("dead-letter item not found")

	// Backend errors
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendTimeout     = errors.New("backend request timeout")
	ErrConflict           = errors.New("conflict: server state diverged")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidationRejected = errors.New("backend rejected mutation as invalid")

	// Lease errors
	ErrLeaseAcquisitionFailed = errors.New("failed to acquire flush lease")
	ErrLeaseNotHeld           = errors.New("flush lease not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
