// models/wallet.go
package models

import "time"

// TokenBalance is a user's authoritative balance for one token.
// Only the backend writes it; the service never computes a new balance client-side.
type TokenBalance struct {
	UserID      string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	TokenSymbol string    `gorm:"primaryKey;type:varchar(8)" json:"token_symbol"`
	Balance     int64     `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TokenTransfer is an append-only record of a completed transfer.
type TokenTransfer struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	FromUserID     string    `gorm:"type:uuid;not null;index" json:"from_user_id"`
	ToUserID       string    `gorm:"type:uuid;not null;index" json:"to_user_id"`
	TokenSymbol    string    `gorm:"type:varchar(8);not null" json:"token_symbol"`
	Amount         int64     `gorm:"not null;check:amount > 0" json:"amount"`
	IdempotencyKey *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TransferRequest is the input to transfer_tokens.
type TransferRequest struct {
	FromUserID string `json:"from_user_id" validate:"required"`
	ToUserID   string `json:"to_user_id" validate:"required"`
	TokenID    string `json:"token_id" validate:"required"`
	Amount     int64  `json:"amount" validate:"gt=0"`
}

// TransferResult is the response of transfer_tokens.
type TransferResult struct {
	Success    bool   `json:"success"`
	NewBalance *int64 `json:"new_balance,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
}

// IdempotencyRecord stores the first response of a mutating call so a retried
// request with the same key gets the same answer instead of a second mutation.
type IdempotencyRecord struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)"`
	Operation string    `gorm:"type:varchar(32);not null"`
	UserID    string    `gorm:"type:uuid;not null"`
	Response  string    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
