// handlers/reward_routes.go
package handlers

import (
	"context"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"avolve-rewards/middleware"
	"avolve-rewards/models"
	"avolve-rewards/rewards"
	"avolve-rewards/services"
)

// Ledger is what the reward routes need from services.RewardLedgerClient.
type Ledger interface {
	FetchDailyClaims(ctx context.Context, userID string) ([]models.ClaimEvent, error)
	ClaimDaily(ctx context.Context, userID, claimID string) error
	GetClaimStreak(ctx context.Context, userID string) (rewards.StreakSummary, error)
	GetRolePoints(ctx context.Context, userID string) ([]models.RolePoints, error)
	GetRoleHistory(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error)
	GetAvailableRewards(ctx context.Context, userID string) ([]models.Reward, error)
	ClaimTokenReward(ctx context.Context, userID, rewardID string) (models.ClaimRewardResult, error)
	GetBalances(ctx context.Context, userID string) ([]models.TokenBalance, error)
	TransferTokens(ctx context.Context, req models.TransferRequest) (models.TransferResult, error)
	CheckTeamEligibility(ctx context.Context, userID string) (models.TeamEligibility, error)
	CheckContentUnlock(ctx context.Context, userID string, token models.TokenType) (rewards.UnlockDecision, error)
	GetGroupEventRewards(ctx context.Context, eventID string) ([]models.GroupEventReward, error)
	Refresh(ctx context.Context, userID string) (services.Snapshot, error)
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type transferBody struct {
	ToUserID string `json:"to_user_id" validate:"required"`
	TokenID  string `json:"token_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"gt=0"`
}

func SetupRewardRoutes(app *fiber.App, ledger Ledger) {
	// Public routes, still behind Gateway auth
	app.Get("/events/:id/rewards", func(c *fiber.Ctx) error {
		list, err := ledger.GetGroupEventRewards(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"event_id": c.Params("id"), "rewards": list})
	})

	app.Get("/rewards/estimate", func(c *fiber.Ctx) error {
		rank, err := strconv.Atoi(c.Query("rank"))
		if err != nil {
			return badRequest(c, "rank must be an integer")
		}
		est, err := rewards.EstimateRankReward(rank)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"rank": rank, "amount": est.Amount, "authoritative": est.Authoritative})
	})

	app.Get("/tokens/hierarchy", func(c *fiber.Ctx) error {
		return c.JSON(models.TokenHierarchy)
	})

	// Secured routes, user context from Gateway headers
	secured := app.Group("/s/user", middleware.UserContextMiddleware())

	secured.Get("/snapshot", func(c *fiber.Ctx) error {
		snap, err := ledger.Refresh(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	secured.Get("/claims/daily", func(c *fiber.Ctx) error {
		claims, err := ledger.FetchDailyClaims(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(claims)
	})

	secured.Post("/claims/daily/:id/claim", func(c *fiber.Ctx) error {
		claimID := c.Params("id")
		if err := ledger.ClaimDaily(c.UserContext(), middleware.UserID(c), claimID); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"claim_id": claimID, "claimed": true})
	})

	secured.Get("/claims/streak", func(c *fiber.Ctx) error {
		streak, err := ledger.GetClaimStreak(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(streak)
	})

	secured.Get("/roles/points", func(c *fiber.Ctx) error {
		points, err := ledger.GetRolePoints(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"points":                points,
			"next_recommended_role": rewards.NextRecommendedRole(points),
		})
	})

	secured.Get("/roles/history", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil {
			return badRequest(c, "limit must be an integer")
		}
		history, err := ledger.GetRoleHistory(c.UserContext(), middleware.UserID(c), limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(history)
	})

	secured.Get("/rewards", func(c *fiber.Ctx) error {
		list, err := ledger.GetAvailableRewards(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	secured.Post("/rewards/:id/claim", func(c *fiber.Ctx) error {
		res, err := ledger.ClaimTokenReward(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return respondRejected(c, err, fiber.Map{"success": false, "amount": 0, "message": res.Message, "code": res.Code})
		}
		return c.JSON(res)
	})

	secured.Get("/tokens/balances", func(c *fiber.Ctx) error {
		balances, err := ledger.GetBalances(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(balances)
	})

	secured.Post("/tokens/transfer", func(c *fiber.Ctx) error {
		var body transferBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if err := validate.Struct(body); err != nil {
			return badRequest(c, describeValidation(err))
		}

		res, err := ledger.TransferTokens(c.UserContext(), models.TransferRequest{
			FromUserID: middleware.UserID(c),
			ToUserID:   body.ToUserID,
			TokenID:    body.TokenID,
			Amount:     body.Amount,
		})
		if err != nil {
			return respondRejected(c, err, fiber.Map{"success": false, "message": res.Message, "code": res.Code})
		}
		return c.JSON(res)
	})

	secured.Get("/teams/eligibility", func(c *fiber.Ctx) error {
		e, err := ledger.CheckTeamEligibility(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(e)
	})

	secured.Get("/content/:token/unlock", func(c *fiber.Ctx) error {
		token := models.TokenType(strings.ToUpper(c.Params("token")))
		d, err := ledger.CheckContentUnlock(c.UserContext(), middleware.UserID(c), token)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
