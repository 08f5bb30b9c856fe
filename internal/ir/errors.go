package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes core errors.
type ErrorCode string

const (
	// ErrCodeUnknownSignal indicates a read of a signal id never registered.
	ErrCodeUnknownSignal ErrorCode = "UNKNOWN_SIGNAL"

	// ErrCodeDuplicateSignal indicates a second registration of a signal id.
	ErrCodeDuplicateSignal ErrorCode = "DUPLICATE_SIGNAL"

	// ErrCodeUnresolvedReference indicates a rule or layer references a
	// nonexistent signal, variable, layer, zone, group or behavior.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeCapabilityMismatch indicates a behavior cannot be exported to a target.
	ErrCodeCapabilityMismatch ErrorCode = "CAPABILITY_MISMATCH"

	// ErrCodeUnrepresentableEncoding indicates an op or parameter has no
	// encoding in the target's op-set.
	ErrCodeUnrepresentableEncoding ErrorCode = "UNREPRESENTABLE_ENCODING"

	// ErrCodeToleranceExceeded indicates the worst-case representable error of
	// a parameter exceeds its tolerance.
	ErrCodeToleranceExceeded ErrorCode = "TOLERANCE_EXCEEDED"

	// ErrCodeTornFrame indicates a published frame failed its integrity check.
	// Fatal: this is a concurrency bug, never expected in correct operation.
	ErrCodeTornFrame ErrorCode = "TORN_FRAME_VIOLATION"

	// ErrCodeBehaviorFault indicates a behavior plug-in failed during a tick.
	// Isolated to the layer; never aborts the composite.
	ErrCodeBehaviorFault ErrorCode = "BEHAVIOR_FAULT"

	// ErrCodeInvalidProject indicates a malformed declaration (bad enum, range).
	ErrCodeInvalidProject ErrorCode = "INVALID_PROJECT"
)

// Sentinels for errors.Is matching by code.
var (
	ErrUnknownSignal           = &Error{Code: ErrCodeUnknownSignal}
	ErrDuplicateSignal         = &Error{Code: ErrCodeDuplicateSignal}
	ErrUnresolvedReference     = &Error{Code: ErrCodeUnresolvedReference}
	ErrCapabilityMismatch      = &Error{Code: ErrCodeCapabilityMismatch}
	ErrUnrepresentableEncoding = &Error{Code: ErrCodeUnrepresentableEncoding}
	ErrToleranceExceeded       = &Error{Code: ErrCodeToleranceExceeded}
	ErrTornFrame               = &Error{Code: ErrCodeTornFrame}
	ErrBehaviorFault           = &Error{Code: ErrCodeBehaviorFault}
	ErrInvalidProject          = &Error{Code: ErrCodeInvalidProject}
)

// Error is the core error type. Subject names the offending id
// (signal id, rule id, layer id, behavior id, parameter).
type Error struct {
	Code       ErrorCode
	Subject    string
	Message    string
	Suggestion string // optional "did you mean" hint
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (did you mean %q?)", msg, e.Suggestion)
	}
	return msg
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, subject, format string, args ...any) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsUnresolvedReference returns true if err is an unresolved reference.
// Uses errors.As to handle wrapped errors.
func IsUnresolvedReference(err error) bool {
	return CodeOf(err) == ErrCodeUnresolvedReference
}

// IsToleranceExceeded returns true if err is a tolerance violation.
func IsToleranceExceeded(err error) bool {
	return CodeOf(err) == ErrCodeToleranceExceeded
}

// IsTornFrame returns true if err is a torn-frame invariant breach.
func IsTornFrame(err error) bool {
	return CodeOf(err) == ErrCodeTornFrame
}
