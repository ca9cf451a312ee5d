package results

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input that is rejected before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrTransport marks a network or decoding failure talking to the results authority.
	ErrTransport = errors.New("results authority unreachable")
	// ErrMissingEditState is returned when a detail record carries no edit state.
	ErrMissingEditState = errors.New("edit state unavailable")
	// ErrAttemptGrading rejects representative selection of an attempt that is still grading.
	ErrAttemptGrading = errors.New("attempt is still grading")
	// ErrAttemptStatusUnknown rejects representative selection of an attempt in an unrecognised status.
	ErrAttemptStatusUnknown = errors.New("attempt status is not recognised")
	// ErrAttemptNotInEnrollment rejects an attempt that belongs to another enrollment.
	ErrAttemptNotInEnrollment = errors.New("attempt does not belong to enrollment")
	// ErrJobTerminal is returned when a terminal PDF job would transition again.
	ErrJobTerminal = errors.New("pdf job already finished")
	// ErrPollLimit is returned when a bounded poll loop gives up before a terminal state.
	ErrPollLimit = errors.New("poll limit reached before job finished")
)

// RejectionError is a refusal issued by the results authority. Message is shown to
// operators verbatim.
type RejectionError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectionError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Reject builds a RejectionError for the given operation.
func Reject(op string, status int, message string) error {
	return &RejectionError{Op: op, Status: status, Message: message}
}

// AsRejection unwraps a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// Invalid wraps ErrValidation with a human readable detail.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
