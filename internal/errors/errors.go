package errors

import (
	"errors"
	"fmt"
)

// AppError is the structured error type for fuzzysearch.
// It provides rich context for error handling, logging, and user presentation.
type AppError struct {
	// Code is the unique error code (e.g., "ERR_303_STORE_BACKPRESSURE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Document, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AppError.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AppError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AppError from an existing error.
// The error's message becomes the AppError message.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AppError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a fatal store error (connectivity loss, driver failure).
func StoreError(message string, cause error) *AppError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// BackpressureError creates a retryable "no progress" error.
func BackpressureError(message string, cause error) *AppError {
	return New(ErrCodeStoreBackpressure, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AppError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
// Returns true if an AppError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether an AppError with the given code is in err's chain.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an AppError.
// Returns empty string if not an AppError.
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}
