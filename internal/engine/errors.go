package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/vdb/internal/value"
)

// Error is an error raised by binding setup, propagation or reconciliation.
//
// Errors are never retried; they surface to the caller that triggered the
// failing operation. Error includes structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ID names the offending slot, socket or adapter, if any.
	ID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeStructure indicates a malformed binding description.
	ErrCodeStructure ErrorCode = "STRUCTURE"

	// ErrCodeUnknownAdapter indicates an adapter reporting a kind outside {view, model}.
	ErrCodeUnknownAdapter ErrorCode = "UNKNOWN_ADAPTER"

	// ErrCodeCapability indicates a source adapter that cannot be observed.
	ErrCodeCapability ErrorCode = "CAPABILITY"

	// ErrCodeConflict indicates a structured value that cannot replace a reference.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeLookup indicates a missing instance key, socket id or socket index.
	ErrCodeLookup ErrorCode = "LOOKUP"

	// ErrCodeDestroyed indicates use of a destroyed binding.
	ErrCodeDestroyed ErrorCode = "DESTROYED"

	// ErrCodeDepthExceeded indicates a propagation chain nested deeper than allowed.
	ErrCodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeInternal indicates a broken engine invariant.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ID != "" {
		msg = fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsStructureError returns true if err is a malformed-description error.
// Uses errors.As to handle wrapped errors.
func IsStructureError(err error) bool {
	return hasCode(err, ErrCodeStructure)
}

// IsUnknownAdapterError returns true for unknown adapter kinds, whether
// raised by the engine or by package value.
func IsUnknownAdapterError(err error) bool {
	return hasCode(err, ErrCodeUnknownAdapter) || errors.Is(err, value.ErrUnknownAdapter)
}

// IsCapabilityError returns true if err reports a missing adapter capability.
func IsCapabilityError(err error) bool {
	return hasCode(err, ErrCodeCapability)
}

// IsConflictError returns true if err is a propagation conflict.
func IsConflictError(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsLookupError returns true if err is a lookup miss.
func IsLookupError(err error) bool {
	return hasCode(err, ErrCodeLookup)
}

// IsDestroyedError returns true if err reports use of a destroyed binding.
func IsDestroyedError(err error) bool {
	return hasCode(err, ErrCodeDestroyed)
}

// IsDepthExceededError returns true if err reports a runaway propagation chain.
func IsDepthExceededError(err error) bool {
	return hasCode(err, ErrCodeDepthExceeded)
}

// IsInternalError returns true if err reports a broken engine invariant.
func IsInternalError(err error) bool {
	return hasCode(err, ErrCodeInternal)
}

func structureError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeStructure, Message: fmt.Sprintf(format, args...)}
}

func lookupError(id, format string, args ...any) *Error {
	return &Error{Code: ErrCodeLookup, ID: id, Message: fmt.Sprintf(format, args...)}
}

func internalError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError creates the error raised when a structured value holding
// a leaf that is not a reference of the current reference's kind is written
// into a slot that holds a reference.
func NewConflictError(slot string, current value.Kind) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		ID:      slot,
		Message: "erroneous propagation: structured value cannot replace reference",
		Details: map[string]string{"current_kind": string(current)},
	}
}

// NewCapabilityError creates the error raised when an adapter used as a
// binding source does not implement observation.
func NewCapabilityError(adapter string) *Error {
	return &Error{
		Code:    ErrCodeCapability,
		ID:      adapter,
		Message: fmt.Sprintf("adapter %q is used as a binding source but does not implement observe", adapter),
		Err:     value.ErrNotObservable,
	}
}
