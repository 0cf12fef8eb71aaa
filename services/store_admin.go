// services/store_admin.go
package services

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"avolve-rewards/models"
	"avolve-rewards/rewards"
)

// GrantRequest issues a claimable reward to a user.
type GrantRequest struct {
	UserID      string            `json:"user_id" validate:"required,uuid"`
	Title       string            `json:"title"`
	TokenSymbol string            `json:"token_symbol" validate:"required,max=8"`
	Amount      int64             `json:"amount" validate:"gt=0"`
	RewardType  models.RewardType `json:"reward_type" validate:"required,oneof=achievement contribution referral daily challenge"`
	Required    int64             `json:"required" validate:"gte=0"`
}

// GrantReward creates an unclaimed reward. A non-zero Required gates it on
// progress starting at 0.
func (s *StoreBackend) GrantReward(ctx context.Context, req GrantRequest) (models.Reward, error) {
	if err := validate.Struct(req); err != nil {
		return models.Reward{}, rewards.NewError(rewards.ErrValidation, "grant reward", "invalid reward", err)
	}

	reward := models.Reward{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       req.Title,
		TokenSymbol: strings.ToUpper(req.TokenSymbol),
		Amount:      req.Amount,
		RewardType:  req.RewardType,
	}
	if req.Required > 0 {
		reward.RequirementsProgress = &models.Progress{Current: 0, Required: req.Required}
	}
	if err := s.DB.WithContext(ctx).Create(&reward).Error; err != nil {
		return models.Reward{}, adminError("grant reward", err)
	}
	return reward, nil
}

// SetRequiredChallenges stores the team creation threshold.
func (s *StoreBackend) SetRequiredChallenges(ctx context.Context, n int) error {
	if n < 1 {
		return rewards.Validation("set required challenges", "the threshold must be at least 1")
	}
	setting := models.AppSetting{Key: models.SettingRequiredChallenges, Value: strconv.Itoa(n), UpdatedAt: s.Now()}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	return adminError("set required challenges", err)
}

// RecordChallengeCompletion marks a challenge finished by a user. Recording the
// same challenge twice is a no-op; created reports whether a row was added.
// A new completion also advances the user's unclaimed, progress-gated
// challenge rewards by one.
func (s *StoreBackend) RecordChallengeCompletion(ctx context.Context, userID, challengeID string) (created bool, err error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(challengeID) == "" {
		return false, rewards.Validation("record challenge completion", "user id and challenge id are required")
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "challenge_id"}}, DoNothing: true}).
			Create(&models.ChallengeCompletion{UserID: userID, ChallengeID: challengeID, CompletedAt: s.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true

		var gated []models.Reward
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND reward_type = ? AND is_claimed = ? AND requirements_progress IS NOT NULL",
				userID, models.RewardTypeChallenge, false).
			Find(&gated).Error; err != nil {
			return err
		}
		for i := range gated {
			if err := saveProgress(tx, &gated[i], 1); err != nil {
				return err
			}
		}
		return nil
	})
	return created, adminError("record challenge completion", err)
}

// AdvanceRewardProgress moves an unclaimed reward's progress forward by delta,
// never past Required, and returns the updated reward.
func (s *StoreBackend) AdvanceRewardProgress(ctx context.Context, rewardID string, delta int64) (models.Reward, error) {
	const op = "advance reward progress"
	if strings.TrimSpace(rewardID) == "" {
		return models.Reward{}, rewards.Validation(op, "reward id is required")
	}
	if delta < 1 {
		return models.Reward{}, rewards.Validation(op, "progress can only move forward")
	}

	var r models.Reward
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rewardID).First(&r).Error; err != nil {
			return err
		}
		if r.IsClaimed {
			return &BackendError{Status: http.StatusConflict, Code: CodeAlreadyClaimed, Message: "this reward has already been claimed"}
		}
		if r.RequirementsProgress == nil {
			return rewards.Validation(op, "this reward has no progress requirement")
		}
		return saveProgress(tx, &r, delta)
	})
	if err != nil {
		return models.Reward{}, adminError(op, err)
	}
	r.CanClaim = rewards.CheckRewardClaim(r, s.Now()).Allowed
	return r, nil
}

func saveProgress(tx *gorm.DB, r *models.Reward, delta int64) error {
	p := *r.RequirementsProgress
	p.Current += delta
	if p.Current > p.Required {
		p.Current = p.Required
	}
	r.RequirementsProgress = &p
	return tx.Model(r).Select("requirements_progress").Updates(r).Error
}

// adminError classifies a store failure for the operator routes.
func adminError(op string, err error) error {
	if err == nil {
		return nil
	}
	return normalizeError(op, storeError(err))
}
