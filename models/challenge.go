package models

import (
	"time"

	"gorm.io/gorm"
)

// SettingRequiredChallenges is the app_settings key holding the team creation threshold.
const SettingRequiredChallenges = "required_challenges_for_team"

// AppSetting is a server-side configuration value readable by the ledger.
type AppSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ChallengeCompletion marks a challenge finished by a user (once per challenge).
type ChallengeCompletion struct {
	ID          string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_challenge_user" json:"user_id"`
	ChallengeID string    `gorm:"type:uuid;not null;uniqueIndex:idx_challenge_user" json:"challenge_id"`
	CompletedAt time.Time `json:"completed_at" gorm:"autoCreateTime"`
}

// TeamEligibility is derived on every check and never cached, since the
// threshold is server-configurable.
type TeamEligibility struct {
	CompletedChallenges int    `json:"completed_challenges"`
	RequiredChallenges  int    `json:"required_challenges"`
	IsEligible          bool   `json:"is_eligible"`
	Degraded            bool   `json:"degraded"` // threshold is the local fallback, not the server value
	ReasonCode          string `json:"reason_code,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
