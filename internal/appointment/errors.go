package appointment

import (
	"errors"
	"fmt"
)

// Error classes. Every error the core returns to a caller matches exactly one of these with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("confirmation code expired")
	ErrMismatch     = errors.New("confirmation code mismatch")
)

var (
	ErrSlotTaken           = classified(ErrConflict, "slot already claimed")
	ErrConcurrentUpdate    = classified(ErrConflict, "appointment changed concurrently, retry")
	ErrAppointmentNotFound = classified(ErrNotFound, "appointment not found")
	ErrUnknownProvider     = classified(ErrNotFound, "unknown provider")
	ErrNotPending          = classified(ErrInvalidState, "appointment is not pending confirmation")
	ErrPastInstant         = classified(ErrValidation, "slot must be strictly in the future")
	ErrOffSchedule         = classified(ErrValidation, "instant is not a business-hours slot of the provider")
)

type classifiedError struct {
	class error
	msg   string
}

func classified(class error, msg string) error {
	return &classifiedError{class: class, msg: msg}
}

func (e *classifiedError) Error() string { return e.msg }
func (e *classifiedError) Unwrap() error { return e.class }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}
