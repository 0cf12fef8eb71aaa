package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a local snapshot of a platform user, kept so scheduled jobs know
// whom to open claim windows for. Populated by the member sync worker.
type Member struct {
	ID             string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string     `gorm:"type:uuid;uniqueIndex;not null" json:"external_user_id"` // auth provider user id; every ledger table keys on this
	Username       string     `gorm:"index;not null" json:"username"`
	Email          string     `json:"email,omitempty"`
	AccountStatus  string     `gorm:"type:varchar(16);not null;default:active" json:"account_status"`
	Timezone       *string    `json:"timezone,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

