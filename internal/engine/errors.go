package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected by the host loop or soak
// harness. Project reference errors are ir.Error values and surface from
// New; RuntimeError covers what can only go wrong while running.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Frame is the engine frame at which the error was detected, if any.
	Frame int64

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBudgetExceeded indicates a soak run exceeded its fault budget.
	ErrCodeBudgetExceeded RuntimeErrorCode = "BUDGET_EXCEEDED"

	// ErrCodeInvalidStep indicates a non-finite or negative tick dt.
	ErrCodeInvalidStep RuntimeErrorCode = "INVALID_STEP"

	// ErrCodeInvalidInput indicates a host input names an unknown toggle or
	// layer, or carries no payload.
	ErrCodeInvalidInput RuntimeErrorCode = "INVALID_INPUT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" && e.Frame > 0 {
		return fmt.Sprintf("%s: %s (run=%s, frame=%d)", e.Code, e.Message, e.RunID, e.Frame)
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBudgetError reports whether err is a budget error. Matches both
// RuntimeError with ErrCodeBudgetExceeded and FaultsExceededError.
func IsBudgetError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeBudgetExceeded
	}
	var fe *FaultsExceededError
	return errors.As(err, &fe)
}

// IsInputError reports whether err is an invalid host input.
func IsInputError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeInvalidInput
}

func newInputError(in Input, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf(format, args...),
		Details: map[string]string{"kind": in.Kind.String(), "name": in.Name},
	}
}
