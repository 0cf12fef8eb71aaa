// services/backend.go
package services

import (
	"context"
	"fmt"
	"time"

	"avolve-rewards/models"
)

// Backend is the narrow contract the ledger client consumes. Implementations
// own balances, claim records and their atomicity; the client only validates
// input and orchestrates calls.
//
// Mutating calls receive an idempotency key that stays the same across retries
// of one logical request.
type Backend interface {
	ListDailyClaims(ctx context.Context, userID string, now time.Time) ([]models.ClaimEvent, error)
	ListClaimHistory(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	ClaimDaily(ctx context.Context, userID, claimID, idempotencyKey string) error

	GetRolePoints(ctx context.Context, userID string) ([]models.RolePoints, error)
	GetRoleHistory(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error)

	ListRewards(ctx context.Context, userID string) ([]models.Reward, error)
	ClaimTokenReward(ctx context.Context, userID, rewardID, idempotencyKey string) (models.ClaimRewardResult, error)

	GetBalances(ctx context.Context, userID string) ([]models.TokenBalance, error)
	TransferTokens(ctx context.Context, req models.TransferRequest, idempotencyKey string) (models.TransferResult, error)

	GetGroupEventRewards(ctx context.Context, eventID string) ([]models.GroupEventParticipant, error)

	GetRequiredChallenges(ctx context.Context) (int, error)
	CountCompletedChallenges(ctx context.Context, userID string) (int, error)
}

// Backend error codes. Backends put one of these in BackendError.Code.
const (
	CodeAlreadyClaimed      = "already_claimed"
	CodeNotFound            = "not_found"
	CodeNotEligible         = "not_eligible"
	CodeInsufficientBalance = "insufficient_balance"
	CodeInvalidAmount       = "invalid_amount"
	CodeUnauthorized        = "unauthorized"
	CodeUnavailable         = "unavailable"
)

// BackendError is a failure reported by a backend, before normalisation.
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}
