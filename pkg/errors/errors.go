package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Discovery errors
	ErrDiscovery ErrorCode = "DISCOVERY"

	// Deployment errors
	ErrPathConflict  ErrorCode = "PATH_CONFLICT"
	ErrRecordCorrupt ErrorCode = "RECORD_CORRUPT"
	ErrRecordBusy    ErrorCode = "RECORD_BUSY"
	ErrRecordChanged ErrorCode = "RECORD_CHANGED"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileCreate ErrorCode = "FILE_CREATE"
	ErrFileWrite  ErrorCode = "FILE_WRITE"
	ErrDirCreate  ErrorCode = "DIR_CREATE"
)

// ModsError represents a structured error with code and details
type ModsError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ModsError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ModsError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ModsError) Is(target error) bool {
	var targetErr *ModsError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ModsError with the given code and message
func New(code ErrorCode, message string) *ModsError {
	return &ModsError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ModsError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ModsError {
	return &ModsError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a ModsError
func Wrap(err error, code ErrorCode, message string) *ModsError {
	if err == nil {
		return nil
	}
	return &ModsError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ModsError {
	if err == nil {
		return nil
	}
	return &ModsError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ModsError) WithDetail(key string, value interface{}) *ModsError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var modsErr *ModsError
	if errors.As(err, &modsErr) {
		return modsErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a ModsError
func GetErrorCode(err error) ErrorCode {
	var modsErr *ModsError
	if errors.As(err, &modsErr) {
		return modsErr.Code
	}
	return ErrUnknown
}
