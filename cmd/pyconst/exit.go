package main

import (
	"errors"
	"fmt"

	"github.com/rendis/pyconst/pkg/schema"
)

// Process exit codes.
const (
	exitOK       = 0
	exitFindings = 1 // fail-on gate tripped or fixture mismatch
	exitUsage    = 2
	exitNotFound = 3
	exitConfig   = 4
	exitStore    = 5
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// exitCodeFor maps structured errors to exit codes; anything else is 1.
func exitCodeFor(err error) int {
	var pe *schema.PyconstError
	if !errors.As(err, &pe) {
		return 1
	}
	switch pe.Code {
	case schema.ErrCodeValidation, schema.ErrCodeParse:
		return exitUsage
	case schema.ErrCodeNotFound:
		return exitNotFound
	case schema.ErrCodeConfig:
		return exitConfig
	case schema.ErrCodeStore:
		return exitStore
	}
	return 1
}
