// handlers/admin_routes.go
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"avolve-rewards/middleware"
	"avolve-rewards/models"
	"avolve-rewards/services"
)

// AdminStore is the write side only the self-hosted ledger offers.
type AdminStore interface {
	GrantReward(ctx context.Context, req services.GrantRequest) (models.Reward, error)
	AdvanceRewardProgress(ctx context.Context, rewardID string, delta int64) (models.Reward, error)
	SetRequiredChallenges(ctx context.Context, n int) error
	RecordChallengeCompletion(ctx context.Context, userID, challengeID string) (bool, error)
	OpenClaimWindows(ctx context.Context, day time.Time, amount int64) (int64, error)
}

type thresholdBody struct {
	Required int `json:"required" validate:"gte=1"`
}

type progressBody struct {
	Delta int64 `json:"delta" validate:"gte=1"`
}

type completionBody struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	ChallengeID string `json:"challenge_id" validate:"required,uuid"`
}

// SetupAdminRoutes registers operator endpoints under /s/admin.
// dailyAmount is what a manually opened claim window pays.
func SetupAdminRoutes(app *fiber.App, store AdminStore, dailyAmount int64) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Post("/rewards", func(c *fiber.Ctx) error {
		var body services.GrantRequest
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if err := validate.Struct(body); err != nil {
			return badRequest(c, describeValidation(err))
		}
		reward, err := store.GrantReward(c.UserContext(), body)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(reward)
	})

	admin.Post("/rewards/:id/progress", func(c *fiber.Ctx) error {
		var body progressBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if err := validate.Struct(body); err != nil {
			return badRequest(c, describeValidation(err))
		}
		reward, err := store.AdvanceRewardProgress(c.UserContext(), c.Params("id"), body.Delta)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(reward)
	})

	admin.Put("/settings/team-threshold", func(c *fiber.Ctx) error {
		var body thresholdBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if err := validate.Struct(body); err != nil {
			return badRequest(c, describeValidation(err))
		}
		if err := store.SetRequiredChallenges(c.UserContext(), body.Required); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"required_challenges": body.Required})
	})

	admin.Post("/challenges/completions", func(c *fiber.Ctx) error {
		var body completionBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if err := validate.Struct(body); err != nil {
			return badRequest(c, describeValidation(err))
		}
		created, err := store.RecordChallengeCompletion(c.UserContext(), body.UserID, body.ChallengeID)
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"created": created})
	})

	admin.Post("/claims/windows", func(c *fiber.Ctx) error {
		n, err := store.OpenClaimWindows(c.UserContext(), time.Now(), dailyAmount)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"opened": n})
	})
}
