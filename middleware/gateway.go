// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// GatewayAuthMiddleware only lets through requests carrying the Gateway's
// service token. Paths in open bypass the check (health checks).
func GatewayAuthMiddleware(expectedToken string, open ...string) fiber.Handler {
	if expectedToken == "" {
		log.Fatal("GAME_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}
	expected := []byte(expectedToken)
	bypass := make(map[string]struct{}, len(open))
	for _, p := range open {
		bypass[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := bypass[c.Path()]; ok {
			return c.Next()
		}

		header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if header == "" {
			log.WithField("path", c.Path()).Warn("[GATEWAY_AUTH] missing Authorization header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// raw token or "Bearer <token>"
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			log.WithFields(log.Fields{"path": c.Path(), "ip": c.IP()}).Warn("[GATEWAY_AUTH] invalid token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
