// Package dErrors provides the coded error type shared by every layer of the
// engine. Services attach a Code describing the failure kind; the HTTP layer
// maps codes to statuses and response envelopes. Stores do not use this
// package directly: they return sentinel errors (pkg/platform/sentinel)
// which services translate into coded errors here.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of a domain error. The string value is the wire
// representation used in error envelopes.
type Code string

const (
	// Request shape and input validation.
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_failed"
	CodeInvalidInput Code = "invalid_input"

	// Authentication and authorization.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// Resource resolution.
	CodeNotFound         Code = "not_found"
	CodeInvalidReference Code = "invalid_reference"

	// State machine violations.
	CodeConflict           Code = "conflict"
	CodeInvalidState       Code = "invalid_state"
	CodeInvariantViolation Code = "invariant_violation"

	// Credential validation outcomes, kept distinct so callers can present
	// a precise message at the gate.
	CodeCredentialNotFound  Code = "credential_not_found"
	CodeCredentialExpired   Code = "credential_expired"
	CodeCredentialExhausted Code = "credential_exhausted"

	// Throttling.
	CodeRateLimited Code = "rate_limited"

	// Infrastructure.
	CodeTimeout     Code = "timeout"
	CodeUnavailable Code = "unavailable"
	CodeInternal    Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to API callers for
// non-internal codes; wrapped causes are for logs only.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New constructs a coded error with a caller-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted caller-facing message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause is
// preserved for errors.Is/As chains and log output.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for the errors package.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is treat two coded errors as equal when they share a code
// and message, so tests can assert against freshly constructed errors.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code && e.Message == te.Message
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is shorthand for HasCode; reads well at call sites that check one code.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries no code. Nil errors have no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost caller-facing message, or the empty string
// for uncoded errors (whose text must not leak to callers).
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
