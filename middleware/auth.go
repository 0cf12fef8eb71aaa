// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// Locals keys set by the auth middlewares.
const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
)

// SecuredPrefix marks routes that require a user context from the Gateway.
const SecuredPrefix = "/s/"

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Requests under SecuredPrefix without X-User-ID are rejected.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, SecuredPrefix) && userID == "" {
			log.WithField("path", path).Warn("[USER_CTX] X-User-ID required but missing on secured route")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)

		log.WithFields(log.Fields{"user_id": userID, "roles": roles, "path": path}).Debug("[USER_CTX] user context attached")
		return c.Next()
	}
}

// UserID returns the user id attached by UserContextMiddleware or SSEAuthMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// RequireRole rejects requests whose Gateway roles do not include role.
// It must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		log.WithFields(log.Fields{"path": c.Path(), "user_id": UserID(c), "required": role}).Warn("[USER_CTX] missing role")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}
