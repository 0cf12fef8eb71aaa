package models

import (
	"time"

	gorm "gorm.io/gorm"
)

// RewardType indicates what the reward was earned for
type RewardType string

const (
	RewardTypeAchievement  RewardType = "achievement"
	RewardTypeContribution RewardType = "contribution"
	RewardTypeReferral     RewardType = "referral"
	RewardTypeDaily        RewardType = "daily"
	RewardTypeChallenge    RewardType = "challenge"
)

// RoleFor returns the progression track credited when a reward of this type is claimed.
func (t RewardType) RoleFor() RoleType {
	switch t {
	case RewardTypeContribution:
		return RoleContributor
	case RewardTypeAchievement, RewardTypeChallenge:
		return RoleParticipant
	default:
		return RoleSubscriber
	}
}

// Progress is a {current, required} pair for rewards gated on progress.
type Progress struct {
	Current  int64 `json:"current" validate:"gte=0"`
	Required int64 `json:"required" validate:"gte=1"`
}

// Met reports whether the requirement is satisfied.
func (p Progress) Met() bool {
	return p.Current >= p.Required
}

// Reward is a generic claimable unit.
// CanClaim is derived on read and never stored.
type Reward struct {
	ID                   string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id" validate:"required"`
	UserID               string         `gorm:"type:uuid;index;not null" json:"user_id"`
	Title                string         `gorm:"type:text" json:"title,omitempty"`
	TokenSymbol          string         `gorm:"type:varchar(8);not null" json:"token_symbol" validate:"required"`
	Amount               int64          `gorm:"not null" json:"amount" validate:"gte=0"`
	RewardType           RewardType     `gorm:"type:varchar(16);not null" json:"reward_type" validate:"required,oneof=achievement contribution referral daily challenge"`
	RequirementsProgress *Progress      `gorm:"type:jsonb;serializer:json" json:"requirements_progress,omitempty" validate:"omitempty"`
	IsClaimed            bool           `gorm:"not null;default:false" json:"is_claimed"`
	CanClaim             bool           `gorm:"-" json:"can_claim"`
	BlockedReason        string         `gorm:"-" json:"blocked_reason,omitempty"`
	NextAvailable        *time.Time     `json:"next_available,omitempty"`
	ClaimedAt            *time.Time     `json:"claimed_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

// ClaimRewardResult is the response of claim_token_reward.
// Success=false means nothing was credited; Code says why.
type ClaimRewardResult struct {
	Success bool   `json:"success"`
	Amount  int64  `json:"amount"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
