// Package rewards holds the pure reward accounting logic: streaks, rank
// reward estimates, eligibility gates and the error taxonomy shared by the
// ledger client and the HTTP layer.
package rewards

import (
	"errors"
	"fmt"
)

// Kind sentinels. Match them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyActed        = errors.New("action already performed")
	ErrNotEligible         = errors.New("not eligible")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransient           = errors.New("temporarily unavailable")
	ErrConfigUnavailable   = errors.New("unable to verify eligibility right now")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidResponse     = errors.New("invalid backend response")
)

// Error is a classified ledger error.
// Reason is safe to show to the user; Err is the underlying cause, if any.
type Error struct {
	Kind   error
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel, so errors.Is(err, ErrAlreadyActed) works
// regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// NewError builds a classified error.
func NewError(kind error, op, reason string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: cause}
}

// Validation is shorthand for a ValidationError raised before any I/O.
func Validation(op, reason string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Reason: reason}
}

// Retryable reports whether retrying err later is reasonable.
// Only transient failures qualify; permanent rejections never do.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// KindOf returns the taxonomy sentinel for err, or nil when err is unclassified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []error{
		ErrValidation, ErrAlreadyActed, ErrNotEligible, ErrInsufficientBalance,
		ErrTransient, ErrConfigUnavailable, ErrNotFound, ErrUnauthorized, ErrInvalidResponse,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ReasonOf returns the user-facing reason carried by err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if k := KindOf(err); k != nil {
		return k.Error()
	}
	return "an unexpected error occurred"
}
