package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API or pipeline error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error
func New(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// MetadataFetchError is returned when an account's timeline could not be retrieved.
// It is absorbed per account by the ingestor and never aborts a run.
type MetadataFetchError struct {
	Handle string
	Err    error
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf("fetch metadata for @%s: %v", e.Handle, e.Err)
}

func (e *MetadataFetchError) Unwrap() error {
	return e.Err
}

// ConfigError marks a configuration problem that must stop the run
// before any network activity.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a ConfigError
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return ErrorTypeConfig
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given ErrorType
func IsType(err error, errorType ErrorType) bool {
	return err != nil && TypeOf(err) == errorType
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return true
	case ErrorTypeRateLimit:
		// retrying into a rate limit makes a block more likely
		return false
	default:
		return false
	}
}

// FromStatusCode maps a non-2xx HTTP status to an ErrorType
func FromStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
