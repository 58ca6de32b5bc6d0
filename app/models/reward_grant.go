package models

import "time"

const (
	RewardTypeBonusDays    = "bonus_days"
	RewardTypeDiscountCode = "discount_code"
)

// RewardGrant is the immutable record of a successfully issued reward.
// Rows are append-only and never deleted.
type RewardGrant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PublicID   string    `gorm:"type:char(36);uniqueIndex;not null" json:"public_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	ReferralID uint      `gorm:"not null;index" json:"referral_id"`
	RewardType string    `gorm:"type:varchar(20);not null" json:"reward_type"`
	BonusDays  int       `gorm:"default:0" json:"bonus_days,omitempty"`
	Code       string    `gorm:"type:varchar(20);default:'';index" json:"code,omitempty"`
	GrantedAt  time.Time `gorm:"not null" json:"granted_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
