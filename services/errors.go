package services

import (
	"context"
	"errors"
	"net"
	"net/http"

	"avolve-rewards/rewards"
)

// normalizeError maps any backend failure onto the rewards taxonomy so that
// callers never branch on backend-specific shapes. Already classified errors
// pass through unchanged.
func normalizeError(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *rewards.Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return rewards.NewError(rewards.ErrTransient, op, "the request timed out, please try again", err)
	}
	if errors.Is(err, context.Canceled) {
		return rewards.NewError(rewards.ErrTransient, op, "the request was cancelled", err)
	}

	var be *BackendError
	if errors.As(err, &be) {
		return rewards.NewError(kindForBackendError(be), op, be.Message, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return rewards.NewError(rewards.ErrTransient, op, "the rewards service is unreachable, please try again", err)
	}

	// Unknown I/O failures are treated as transient: retrying is safe because
	// every mutation carries an idempotency key.
	return rewards.NewError(rewards.ErrTransient, op, "the rewards service is temporarily unavailable", err)
}

func kindForBackendError(be *BackendError) error {
	switch be.Code {
	case CodeAlreadyClaimed:
		return rewards.ErrAlreadyActed
	case CodeNotFound:
		return rewards.ErrNotFound
	case CodeNotEligible:
		return rewards.ErrNotEligible
	case CodeInsufficientBalance:
		return rewards.ErrInsufficientBalance
	case CodeInvalidAmount:
		return rewards.ErrValidation
	case CodeUnauthorized:
		return rewards.ErrUnauthorized
	case CodeUnavailable:
		return rewards.ErrTransient
	}

	switch {
	case be.Status == http.StatusUnauthorized || be.Status == http.StatusForbidden:
		return rewards.ErrUnauthorized
	case be.Status == http.StatusNotFound:
		return rewards.ErrNotFound
	case be.Status == http.StatusConflict:
		return rewards.ErrAlreadyActed
	case be.Status == http.StatusPaymentRequired:
		return rewards.ErrInsufficientBalance
	case be.Status == http.StatusTooManyRequests || be.Status >= 500:
		return rewards.ErrTransient
	case be.Status == http.StatusBadRequest || be.Status == http.StatusUnprocessableEntity:
		return rewards.ErrValidation
	default:
		return rewards.ErrInvalidResponse
	}
}

// rejectionError classifies a success:false response body.
func rejectionError(op, code, message string) error {
	if message == "" {
		message = "the request was rejected"
	}
	be := &BackendError{Status: http.StatusOK, Code: code, Message: message}
	kind := kindForBackendError(be)
	if kind == rewards.ErrInvalidResponse {
		kind = rewards.ErrNotEligible
	}
	return rewards.NewError(kind, op, message, be)
}
