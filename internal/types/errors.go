package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies capture engine failures.
type ErrorCode string

const (
	// CodePermissionDenied indicates missing screen/audio recording permission.
	CodePermissionDenied ErrorCode = "permission_denied"
	// CodeTargetNotFound indicates no source matched the requested identifiers.
	CodeTargetNotFound ErrorCode = "target_not_found"
	// CodeInvalidArgument indicates a malformed request.
	CodeInvalidArgument ErrorCode = "invalid_argument"
	// CodeAlreadyCapturing indicates a start attempt while a capture is active.
	CodeAlreadyCapturing ErrorCode = "already_capturing"
	// CodeCaptureFailed indicates the provider failed or timed out.
	CodeCaptureFailed ErrorCode = "capture_failed"
	// CodeProcessNotFound indicates a process id that no longer exists.
	CodeProcessNotFound ErrorCode = "process_not_found"
)

// ErrorDetails carries structured context so callers can build an actionable
// message without re-querying the source list.
type ErrorDetails struct {
	RequestedIdentifiers  []string `json:"requested_identifiers,omitempty"`
	UnresolvedIdentifiers []string `json:"unresolved_identifiers,omitempty"`
	AvailableNames        []string `json:"available_names,omitempty"`
	Hint                  string   `json:"hint,omitempty"`
	ProcessID             int      `json:"process_id,omitzero"`
}

// Error is a structured capture engine error.
type Error struct {
	Code    ErrorCode     `json:"code"`
	Message string        `json:"message"`
	Details *ErrorDetails `json:"details,omitempty"`
	cause   error
}

// NewError creates a structured error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches structured details and returns the error.
func (e *Error) WithDetails(d *ErrorDetails) *Error {
	e.Details = d
	return e
}

// WithCause records the underlying error and returns the error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Error returns the message with available-name context appended when present.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != nil && len(e.Details.AvailableNames) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Details.AvailableNames, ", "))
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error with the same code, so sentinel comparisons like
// errors.Is(err, types.NewError(types.CodeAlreadyCapturing, "")) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is an engine error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// TargetNotFound builds a target_not_found error listing what was requested
// and what was available.
func TargetNotFound(requested, available []string) *Error {
	msg := "no capture source matched"
	if len(requested) > 0 {
		msg = fmt.Sprintf("no capture source matched %s", strings.Join(requested, ", "))
	}
	return NewError(CodeTargetNotFound, msg).WithDetails(&ErrorDetails{
		RequestedIdentifiers: requested,
		AvailableNames:       available,
	})
}

// CaptureFailed builds a capture_failed error wrapping the provider error.
func CaptureFailed(message string, cause error) *Error {
	e := NewError(CodeCaptureFailed, message)
	if cause != nil {
		e.cause = cause
	}
	return e
}
