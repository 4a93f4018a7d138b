package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a status.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindDependency    Kind = "dependency"
)

// Error is the error type returned across service boundaries. Code is stable
// and safe to expose to callers; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

var (
	ErrInvalidRequest    = &Error{Kind: KindValidation, Code: "invalid_request", Message: "request is invalid"}
	ErrPastStart         = &Error{Kind: KindValidation, Code: "start_in_past", Message: "session start is in the past"}
	ErrStartTooFar       = &Error{Kind: KindValidation, Code: "start_too_far", Message: "session start is beyond the booking horizon"}
	ErrOutsideSchedule   = &Error{Kind: KindValidation, Code: "outside_schedule", Message: "session start is outside the provider's working hours"}
	ErrRateLimited       = &Error{Kind: KindValidation, Code: "rate_limited", Message: "too many booking attempts"}
	ErrProviderNotFound  = &Error{Kind: KindNotFound, Code: "provider_not_found", Message: "provider not found"}
	ErrBookingNotFound   = &Error{Kind: KindNotFound, Code: "booking_not_found", Message: "booking not found"}
	ErrClientNotFound    = &Error{Kind: KindNotFound, Code: "client_not_found", Message: "client not found"}
	ErrSlotUnavailable   = &Error{Kind: KindConflict, Code: "slot_unavailable", Message: "requested time overlaps an existing booking"}
	ErrInvalidTransition = &Error{Kind: KindConflict, Code: "invalid_transition", Message: "booking status does not allow this change"}
	ErrNotBookingOwner   = &Error{Kind: KindAuthorization, Code: "not_booking_owner", Message: "booking belongs to another provider"}
	ErrStoreFailure      = &Error{Kind: KindDependency, Code: "store_failure", Message: "storage is temporarily unavailable"}
)

// ErrClientExists is returned by Tx.CreateClient when the (provider, email) pair is already taken.
var ErrClientExists = errors.New("client already exists")

// KindOf returns the kind of err, or KindDependency for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// AsError returns the *Error in err's chain, converting anything else into ErrStoreFailure.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrStoreFailure.Wrap(err)
}
