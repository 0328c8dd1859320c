package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a forecast request failed.
type ErrorKind string

const (
	KindMissingField    ErrorKind = "missing_field"
	KindInvalidNumber   ErrorKind = "invalid_number"
	KindInvalidFile     ErrorKind = "invalid_file"
	KindMalformedHeader ErrorKind = "malformed_header"
	KindNoValidRows     ErrorKind = "no_valid_rows"
	KindInternal        ErrorKind = "internal_error"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("negative amount")
	ErrEmptyCategory  = errors.New("empty category")
	ErrInvalidHorizon = errors.New("invalid forecast horizon")
	ErrNoCategories   = errors.New("no categories")
	ErrNonFinite      = errors.New("amounts overflow")
)

// Error is a classified failure whose Message is safe to show to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsClientError reports whether the failure was caused by the request.
func (e *Error) IsClientError() bool {
	return e.Kind != KindInternal
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. The message stays generic; the cause is
// kept for logging only.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Server error: forecast could not be computed", Err: err}
}

// AsError extracts a classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating anything unclassified as internal.
func KindOf(err error) ErrorKind {
	if ce, ok := AsError(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// Classify returns err as a classified error, wrapping unclassified failures
// as internal ones.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := AsError(err); ok {
		return ce
	}
	return Internal(err)
}
