package errors

import (
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrConflict
	ErrNoAlternatives
	ErrReferenceGeneration
	ErrTimeout
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// NewValidation reports a malformed request field. Field and reason are
// surfaced to the caller verbatim.
func NewValidation(field, reason string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: reason,
		Field:   field,
	}
}

// NewConflict reports an overlap with an existing scheduled booking.
func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

// NewReferenceGeneration reports retry exhaustion while assigning a
// unique reference. Fatal for the request, never retried further.
func NewReferenceGeneration(err error) *AppError {
	return &AppError{
		Code:    ErrReferenceGeneration,
		Message: "failed to generate unique reference",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Timeout(err error) *AppError {
	return &AppError{
		Code:    ErrTimeout,
		Message: "request timed out",
		Err:     err,
	}
}
