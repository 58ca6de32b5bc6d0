package models

import "time"

const (
	FailedRewardStatusPending   = "pending"
	FailedRewardStatusResolved  = "resolved"
	FailedRewardStatusEscalated = "escalated"
)

// FailedReward is the durable retry record for a grant that failed
// transactionally. At most one pending row exists per referral; escalated is
// terminal for automatic retry.
type FailedReward struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ReferralID    uint       `gorm:"not null;index" json:"referral_id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	RewardType    string     `gorm:"type:varchar(20);not null" json:"reward_type"`
	LastError     string     `gorm:"type:text" json:"last_error"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	LastAttemptAt *time.Time `gorm:"type:timestamp;default:null" json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
