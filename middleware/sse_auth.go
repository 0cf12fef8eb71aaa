// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"avolve-rewards/services"
)

// TokenValidator resolves an end-user access token. Implemented by services.AuthClient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken string) (*services.AuthUser, error)
}

// SSEAuthMiddleware validates the `token` query parameter with the auth
// provider, since EventSource cannot send headers.
//
// Usage:
//
//	app.Get("/stream/claims", middleware.SSEAuthMiddleware(authClient), handlers.StreamClaims(feed))
func SSEAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		if accessToken == "" {
			log.WithField("path", c.Path()).Warn("[SSEAuth] missing token query parameter")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		user, err := validator.ValidateToken(c.UserContext(), accessToken)
		if err != nil {
			log.WithError(err).WithField("token_prefix", accessToken[:min(6, len(accessToken))]).Warn("[SSEAuth] validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUserRoles, []string{user.Role})

		log.WithField("user_id", user.ID).Debug("[SSEAuth] authenticated")
		return c.Next()
	}
}
