// handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"avolve-rewards/rewards"
)

// statusFor maps a rewards error kind to its HTTP status.
func statusFor(kind error) int {
	switch kind {
	case rewards.ErrValidation:
		return fiber.StatusBadRequest
	case rewards.ErrNotFound:
		return fiber.StatusNotFound
	case rewards.ErrAlreadyActed:
		return fiber.StatusConflict
	case rewards.ErrInsufficientBalance:
		return fiber.StatusPaymentRequired
	case rewards.ErrNotEligible:
		return fiber.StatusForbidden
	case rewards.ErrConfigUnavailable, rewards.ErrTransient:
		return fiber.StatusServiceUnavailable
	case rewards.ErrUnauthorized:
		return fiber.StatusUnauthorized
	case rewards.ErrInvalidResponse:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// kindName is the stable machine name of an error kind in responses.
func kindName(kind error) string {
	switch kind {
	case rewards.ErrValidation:
		return "validation"
	case rewards.ErrNotFound:
		return "not_found"
	case rewards.ErrAlreadyActed:
		return "already_acted"
	case rewards.ErrInsufficientBalance:
		return "insufficient_balance"
	case rewards.ErrNotEligible:
		return "not_eligible"
	case rewards.ErrConfigUnavailable:
		return "config_unavailable"
	case rewards.ErrTransient:
		return "transient"
	case rewards.ErrUnauthorized:
		return "unauthorized"
	case rewards.ErrInvalidResponse:
		return "invalid_response"
	default:
		return "internal"
	}
}

// respondError writes err as {"error", "kind", "retryable"}.
func respondError(c *fiber.Ctx, err error) error {
	kind := rewards.KindOf(err)
	status := statusFor(kind)

	entry := log.WithError(err).WithFields(log.Fields{"path": c.Path(), "status": status})
	if status >= fiber.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	var fe *fiber.Error
	if kind == nil && errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "kind": "request", "retryable": false})
	}

	return c.Status(status).JSON(fiber.Map{
		"error":     rewards.ReasonOf(err),
		"kind":      kindName(kind),
		"retryable": rewards.Retryable(err),
	})
}

// respondRejected writes a mutation result together with the error fields, so
// a rejected claim still carries success=false and the backend message.
func respondRejected(c *fiber.Ctx, err error, result fiber.Map) error {
	kind := rewards.KindOf(err)
	result["error"] = rewards.ReasonOf(err)
	result["kind"] = kindName(kind)
	result["retryable"] = rewards.Retryable(err)
	if result["message"] == "" {
		result["message"] = rewards.ReasonOf(err)
	}
	log.WithError(err).WithField("path", c.Path()).Debug("mutation rejected")
	return c.Status(statusFor(kind)).JSON(result)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return respondError(c, rewards.Validation("request", msg))
}
