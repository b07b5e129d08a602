package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown job, translator or language ids.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyBooked is returned when a translator already holds an
	// active assignment colliding with the job's due time.
	ErrAlreadyBooked = errors.New("translator already booked at that time")

	// ErrNotPending is returned when an accept loses the race: the
	// conditional status write matched zero rows.
	ErrNotPending = errors.New("job is no longer pending")

	// ErrIllegalTransition is returned when the current status forbids the
	// requested change or a required admin comment is missing.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrPastDue is returned when a scheduled booking is created in the past.
	ErrPastDue = errors.New("booking due time is in the past")

	// ErrTooLateToCancel is returned when a translator cancels within 24
	// hours of the session; such cancellations go through phone support.
	ErrTooLateToCancel = errors.New("cancellation within 24 hours must be handled by phone support")
)

// ValidationError reports a malformed or missing request field. It is
// detected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
