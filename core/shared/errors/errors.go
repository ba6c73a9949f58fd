package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Upstream and account errors
	ErrCodeUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrCodeNoAccountFound   ErrorCode = "NO_ACCOUNT_FOUND"
	ErrCodeAmbiguousAccount ErrorCode = "AMBIGUOUS_ACCOUNT"

	// Execution errors
	ErrCodeScriptExecution ErrorCode = "SCRIPT_EXECUTION_ERROR"
	ErrCodeProvisioning    ErrorCode = "PROVISIONING_ERROR"

	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wraps an existing error with an error code and message
func WrapError(code ErrorCode, message string, err error) *AppError {
	return NewAppError(code, message, err)
}

func NewUpstreamError(message string) *AppError {
	return NewAppError(ErrCodeUpstream, message, nil)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, nil)
}

// CodeOf returns the code of the first AppError in err's chain, or
// INTERNAL_ERROR when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// UserMessage returns the single-line message shown to tool callers.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// Is reports whether the first AppError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsServerFault reports whether err is this server's fault rather than the
// caller's script, input or upstream account: provisioning failures, internal
// errors and errors that carry no code.
func IsServerFault(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	return Is(err, ErrCodeProvisioning) || Is(err, ErrCodeInternalError)
}
