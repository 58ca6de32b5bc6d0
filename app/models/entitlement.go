package models

import "time"

const (
	TierFree    = "free"
	TierPremium = "premium"
)

const (
	EntitlementStatusActive     = "active"
	EntitlementStatusPastDue    = "past_due"
	EntitlementStatusCanceled   = "canceled"
	EntitlementStatusIncomplete = "incomplete"
)

// Entitlement mirrors the provider subscription state for a user. At most one
// row exists per user; absence implies the implicit free tier. Rows are
// mutated only by webhook reconciliation.
type Entitlement struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Tier                   string     `gorm:"type:varchar(50);not null;default:'free'" json:"tier"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'incomplete'" json:"status"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);index" json:"provider_subscription_id"`
	PeriodStart            *time.Time `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd              *time.Time `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	IsTrial                bool       `gorm:"default:false" json:"is_trial"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
