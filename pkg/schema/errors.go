package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeParse         = "PARSE_ERROR"
	ErrCodeMalformedTree = "MALFORMED_TREE"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeConfig        = "CONFIG_ERROR"
)

// PyconstError is the structured error type for all pyconst operations.
// Evaluation problems (division by zero and friends) are warnings, not
// PyconstErrors.
type PyconstError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	File    string         `json:"file,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PyconstError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.File, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PyconstError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PyconstError.
func NewError(code, message string) *PyconstError {
	return &PyconstError{Code: code, Message: message}
}

// NewErrorf creates a new PyconstError with a formatted message.
func NewErrorf(code, format string, args ...any) *PyconstError {
	return &PyconstError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithFile attaches the source file the error refers to.
func (e *PyconstError) WithFile(file string) *PyconstError {
	e.File = file
	return e
}

// WithCause attaches an underlying cause.
func (e *PyconstError) WithCause(err error) *PyconstError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PyconstError) WithDetails(details map[string]any) *PyconstError {
	e.Details = details
	return e
}

// HasCode reports whether err wraps a PyconstError with the given code.
func HasCode(err error, code string) bool {
	var pe *PyconstError
	return errors.As(err, &pe) && pe.Code == code
}
