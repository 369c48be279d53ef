package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error code
type ErrorCode string

const (
	// Configuration errors
	CodeConfig        ErrorCode = "CONFIG_ERROR"
	CodeMissingConfig ErrorCode = "MISSING_CONFIG"
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Upstream provider errors
	CodeUpstreamTransient   ErrorCode = "UPSTREAM_TRANSIENT"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamAuth        ErrorCode = "UPSTREAM_AUTH"
	CodeUpstreamRejected    ErrorCode = "UPSTREAM_REJECTED"
	CodeRateRejected        ErrorCode = "RATE_REJECTED"
	CodeTimeout             ErrorCode = "TIMEOUT"

	// Persistence errors
	CodePersistence ErrorCode = "PERSISTENCE_ERROR"
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeConflict    ErrorCode = "CONFLICT"

	// Job engine errors
	CodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	CodeCancelled      ErrorCode = "CANCELLED"
	CodeUnknownJob     ErrorCode = "UNKNOWN_JOB"

	// Validation errors
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// Internal errors
	CodeInternal ErrorCode = "INTERNAL_ERROR"
	CodeUnknown  ErrorCode = "UNKNOWN_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ConfigError creates a configuration error
func ConfigError(message string, err error) *AppError {
	if err != nil {
		return Wrap(err, CodeConfig, message)
	}
	return New(CodeConfig, message)
}

// UpstreamTransient creates a retryable upstream error
func UpstreamTransient(provider, message string, err error) *AppError {
	return Wrap(err, CodeUpstreamTransient, message).
		WithContext("provider", provider)
}

// UpstreamUnavailable creates an upstream error for exhausted retries
func UpstreamUnavailable(provider, message string, err error) *AppError {
	return Wrap(err, CodeUpstreamUnavailable, message).
		WithContext("provider", provider)
}

// UpstreamAuth creates an upstream authentication error (401/403)
func UpstreamAuth(provider, message string) *AppError {
	return New(CodeUpstreamAuth, message).
		WithContext("provider", provider)
}

// RateRejected creates an error for callers that declined to wait for quota
func RateRejected(provider string) *AppError {
	return New(CodeRateRejected, "rate limit window exhausted").
		WithContext("provider", provider)
}

// PersistenceError creates a persistence error, fatal for the current job
func PersistenceError(message string, err error) *AppError {
	return Wrap(err, CodePersistence, message)
}

// NotFoundError creates a not found error
func NotFoundError(resource, identifier string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, identifier))
}

// ConflictError creates a conflict error
func ConflictError(resource, identifier string) *AppError {
	return New(CodeConflict, fmt.Sprintf("%s already exists: %s", resource, identifier))
}

// AlreadyRunning creates an error for a job invoked while it is running
func AlreadyRunning(job string) *AppError {
	return New(CodeAlreadyRunning, fmt.Sprintf("job already running: %s", job))
}

// Cancelled creates a cooperative cancellation error
func Cancelled(err error) *AppError {
	return Wrap(err, CodeCancelled, "operation cancelled")
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeUpstreamTransient, CodeTimeout:
			return true
		}
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsAuthError checks if an error is an upstream authentication error
func IsAuthError(err error) bool {
	return IsCode(err, CodeUpstreamAuth)
}

// IsCancelled checks if an error represents cooperative cancellation
func IsCancelled(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return IsCode(err, CodeCancelled)
}
