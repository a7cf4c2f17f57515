// Package errors defines the structured error type shared by the stores,
// the indexing pipeline, and the HTTP layer. Every failure that crosses a
// package boundary is classified into one of a small set of kinds so callers
// can branch on category instead of string matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling and HTTP status mapping.
type Kind string

const (
	// KindNotFound means a referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict means the operation violates a uniqueness or state rule.
	KindConflict Kind = "conflict"
	// KindValidation means the caller supplied invalid input.
	KindValidation Kind = "validation"
	// KindExtraction means content extraction failed for a document.
	KindExtraction Kind = "extraction"
	// KindBackendUnavailable means a configured backend cannot serve,
	// such as an unreachable embedding endpoint or an unbuilt adapter.
	KindBackendUnavailable Kind = "backend_unavailable"
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = "internal"
)

// Error is the structured error type. It carries a kind, a human-readable
// message, and an optional underlying cause for chain inspection.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so errors.Is works against kind sentinels.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping cause. Returns nil if cause is nil.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound creates a not-found error for the named entity.
func NotFound(entity, id string) *Error {
	return New(KindNotFound, "%s %q not found", entity, id)
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Extraction creates an extraction error for the given document URI.
func Extraction(uri string, cause error) *Error {
	return Wrap(KindExtraction, cause, "extraction failed for %s", uri)
}

// BackendUnavailable creates a backend-unavailable error.
func BackendUnavailable(format string, args ...any) *Error {
	return New(KindBackendUnavailable, format, args...)
}

// Internal creates an internal error wrapping cause.
func Internal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from an error chain.
// Returns KindInternal for nil-safe unknown errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
