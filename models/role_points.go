package models

import "time"

// RoleType is one of the three progression tracks.
type RoleType string

const (
	RoleSubscriber  RoleType = "subscriber"
	RoleParticipant RoleType = "participant"
	RoleContributor RoleType = "contributor"
)

// Roles lists every role in tie-break order.
var Roles = []RoleType{RoleSubscriber, RoleParticipant, RoleContributor}

// RolePoints accumulates points for a user in one role.
// The ledger only ever adds to Points.
type RolePoints struct {
	ID           string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"-"`
	UserID       string     `gorm:"type:uuid;not null;uniqueIndex:idx_role_points_user_role" json:"user_id"`
	RoleType     RoleType   `gorm:"type:varchar(16);not null;uniqueIndex:idx_role_points_user_role" json:"role_type" validate:"required,oneof=subscriber participant contributor"`
	Points       int64      `gorm:"not null;default:0" json:"points" validate:"gte=0"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
	UpdatedAt    time.Time  `json:"-" gorm:"autoUpdateTime"`
}

// ActivityRecord is one audit entry appended by every mutating ledger call.
type ActivityRecord struct {
	ID           string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id" validate:"required"`
	UserID       string    `gorm:"type:uuid;not null;index:idx_activity_user_created" json:"user_id" validate:"required"`
	RoleType     RoleType  `gorm:"type:varchar(16)" json:"role_type,omitempty"`
	ActivityType string    `gorm:"type:varchar(32);not null" json:"activity_type" validate:"required"` // daily_claim, reward_claim, transfer_in, transfer_out
	TokenSymbol  string    `gorm:"type:varchar(8)" json:"token_symbol,omitempty"`
	Amount       int64     `json:"amount"`
	Points       int64     `json:"points"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt    time.Time `gorm:"index:idx_activity_user_created,sort:desc;autoCreateTime" json:"created_at"`
}

const (
	ActivityDailyClaim  = "daily_claim"
	ActivityRewardClaim = "reward_claim"
	ActivityTransferOut = "transfer_out"
	ActivityTransferIn  = "transfer_in"
)
