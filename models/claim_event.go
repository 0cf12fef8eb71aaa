// models/claim_event.go
package models

import (
	"time"
)

// TokenType is a symbolic reward-currency tag. The ledger treats it as opaque.
type TokenType string

const (
	TokenGEN TokenType = "GEN"
	TokenSAP TokenType = "SAP"
	TokenSCQ TokenType = "SCQ"

	// Day-coded tokens (one per weekday)
	TokenSPD TokenType = "SPD"
	TokenSHE TokenType = "SHE"
	TokenPSP TokenType = "PSP"
	TokenSSA TokenType = "SSA"
	TokenBSP TokenType = "BSP"
	TokenSGB TokenType = "SGB"
	TokenSMS TokenType = "SMS"
)

// weekdayTokens is indexed by time.Weekday (Sunday = 0)
var weekdayTokens = [7]TokenType{TokenSPD, TokenSHE, TokenPSP, TokenSSA, TokenBSP, TokenSGB, TokenSMS}

// TokenForWeekday returns the day-coded token handed out by the daily claim on that weekday.
func TokenForWeekday(day time.Weekday) TokenType {
	return weekdayTokens[int(day)%7]
}

// TokenHierarchy maps a parent token to the child tokens that make up its progress.
var TokenHierarchy = map[TokenType][]TokenType{
	TokenGEN: {TokenSAP, TokenSCQ},
	TokenSAP: {TokenPSP, TokenBSP, TokenSMS},
	TokenSCQ: {TokenSPD, TokenSHE, TokenSSA, TokenSGB},
}

// ClaimEvent is one daily-claim window for a user.
// claimed only ever moves false → true; the row is immutable once ExpiresAt passes.
type ClaimEvent struct {
	ID          string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id" validate:"required"`
	UserID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_daily_claim_window" json:"user_id" validate:"required"`
	ClaimWindow string     `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_claim_window" json:"claim_window"` // YYYY-MM-DD in the service timezone
	TokenType   TokenType  `gorm:"type:varchar(8);not null" json:"token_type" validate:"required"`
	Amount      int64      `gorm:"not null;default:0" json:"amount" validate:"gte=0"`
	Claimed     bool       `gorm:"not null;default:false" json:"claimed"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at" validate:"required"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (ClaimEvent) TableName() string {
	return "daily_claims"
}

// Expired reports whether the claim window has closed at now.
func (c ClaimEvent) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
