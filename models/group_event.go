package models

// GroupEventParticipant is a ranked participant of a group event.
// Reward stays nil until the backend has computed the payout for the rank.
type GroupEventParticipant struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"-"`
	EventID string `gorm:"type:uuid;not null;uniqueIndex:idx_event_participant" json:"event_id"`
	UserID  string `gorm:"type:uuid;not null;uniqueIndex:idx_event_participant" json:"user_id" validate:"required"`
	Rank    int    `gorm:"not null;default:0" json:"rank" validate:"gte=0"` // 0 = not ranked
	Reward  *int64 `json:"reward,omitempty" validate:"omitempty,gte=0"`

	Timestamps
}

// GroupEventReward is the per-rank payout shown to users.
// Estimated is true when Amount comes from the rank formula rather than the backend.
type GroupEventReward struct {
	UserID    string `json:"user_id"`
	Rank      int    `json:"rank"`
	Amount    int64  `json:"reward"`
	Estimated bool   `json:"estimated"`
}
