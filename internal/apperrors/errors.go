package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrBusinessRule indicates a well-formed request that the current state of the system refuses
// (expired or consumed quote, exceeded limit, unverified beneficiary, insufficient funds, terminal transfer).
var ErrBusinessRule = errors.New("business rule violation")

// ErrExternalService indicates a downstream dependency (rate source, settlement rail) is unavailable.
// Callers may retry.
var ErrExternalService = errors.New("external service unavailable")

// ErrForbidden indicates the caller does not own the requested resource.
var ErrForbidden = errors.New("forbidden")

// AppError carries an HTTP status alongside a message and the underlying cause.
type AppError struct {
	Code    int
	Message string
	Err     error
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

// NewAppError creates an AppError with the given status code.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewNotFoundError wraps ErrNotFound with a message.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message, Err: ErrNotFound}
}

// NewValidationError wraps ErrValidation with a message.
func NewValidationError(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Err: ErrValidation}
}

// NewBusinessRuleError wraps ErrBusinessRule with a message.
func NewBusinessRuleError(message string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: message, Err: ErrBusinessRule}
}

// NewExternalServiceError wraps ErrExternalService, keeping the downstream cause in the message.
func NewExternalServiceError(service string, cause error) *AppError {
	msg := service + " unavailable"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &AppError{Code: http.StatusServiceUnavailable, Message: msg, Err: ErrExternalService}
}

// IsRetryable reports whether err represents a transient downstream failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalService)
}
