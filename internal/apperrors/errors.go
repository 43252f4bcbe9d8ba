// Package apperrors defines the error taxonomy shared by the directory, the appointment
// ledger and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the HTTP status mapping.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidSchedule   Kind = "INVALID_SCHEDULE"
	KindSlotTaken         Kind = "SLOT_TAKEN"
	KindPatientBusy       Kind = "PATIENT_BUSY"
	KindDoctorUnavailable Kind = "DOCTOR_UNAVAILABLE"
	KindAlreadyCanceled   Kind = "ALREADY_CANCELED"
	KindValidation        Kind = "VALIDATION"
	KindConflict          Kind = "CONFLICT"
	KindForbidden         Kind = "FORBIDDEN"
	KindInternal          Kind = "INTERNAL"
)

// Error is an application error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSlotTaken) holds for every
// slot-taken error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidSchedule   = &Error{Kind: KindInvalidSchedule}
	ErrSlotTaken         = &Error{Kind: KindSlotTaken}
	ErrPatientBusy       = &Error{Kind: KindPatientBusy}
	ErrDoctorUnavailable = &Error{Kind: KindDoctorUnavailable}
	ErrAlreadyCanceled   = &Error{Kind: KindAlreadyCanceled}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error for the named entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Internal wraps an unexpected store or transport failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
