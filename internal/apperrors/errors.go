// Package apperrors defines the coded error values shared across the
// inspection workflow engine. Handlers map codes to HTTP statuses; services
// return them unwrapped so callers can branch on the code.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for both API mapping and caller branching.
type Code string

const (
	ErrCodeInvalidInput        Code = "INVALID_INPUT"
	ErrCodeNotFound            Code = "NOT_FOUND"
	ErrCodeConflict            Code = "CONFLICT"
	ErrCodePermissionDenied    Code = "PERMISSION_DENIED"
	ErrCodeStageMismatch       Code = "STAGE_MISMATCH"
	ErrCodeNoEligiblePersonnel Code = "NO_ELIGIBLE_PERSONNEL"
	ErrCodeValidationFailed    Code = "VALIDATION_FAILED"
	ErrCodeUnavailable         Code = "UNAVAILABLE"
	ErrCodeInternal            Code = "INTERNAL"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two coded errors by code, so sentinel-style comparisons work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// ── Constructors for the workflow taxonomy ────────────────────────────────────

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, reason string) *Error {
	return Newf(ErrCodeInvalidInput, "invalid %s: %s", field, reason)
}

// Conflict reports a duplicate or concurrently modified resource.
func Conflict(message string) *Error {
	return New(ErrCodeConflict, message)
}

// PermissionDenied reports a role/assignment mismatch. Not retried.
func PermissionDenied(reason string) *Error {
	return New(ErrCodePermissionDenied, reason)
}

// StageMismatch reports an action that is invalid for the current stage.
func StageMismatch(action, stage string) *Error {
	return Newf(ErrCodeStageMismatch, "action %q is not valid at stage %q", action, stage)
}

// NoEligiblePersonnel reports a routing dead-end. The transition is not
// committed; resolving it requires a registry change, not a retry.
func NoEligiblePersonnel(role, law, district string) *Error {
	return Newf(ErrCodeNoEligiblePersonnel,
		"no %s registered for law %s in district %q or elsewhere", role, law, district)
}

// ValidationFailed reports a local form-validation failure before a draft
// save. The draft engine skips the send and retries on the next tick.
func ValidationFailed(reason string) *Error {
	return New(ErrCodeValidationFailed, reason)
}

// Unavailable reports a transient network failure.
func Unavailable(message string) *Error {
	return New(ErrCodeUnavailable, message)
}

// ── Inspection helpers ────────────────────────────────────────────────────────

// CodeOf returns the code of err, or ErrCodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error to the status the handler layer should emit.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeStageMismatch:
		return http.StatusConflict
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeNoEligiblePersonnel:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
