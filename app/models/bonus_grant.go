package models

import "time"

// BonusGrant is a window of bonus premium time issued by the reward grantor.
// Windows stack: a new grant starts at the end of the latest active window,
// so at most one window is in effect at any evaluation time. Rows are
// append-only.
type BonusGrant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	ReferralID uint      `gorm:"not null;index" json:"referral_id"`
	StartsAt   time.Time `gorm:"not null" json:"starts_at"`
	EndsAt     time.Time `gorm:"not null;index" json:"ends_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ActiveAt reports whether the window covers the given instant.
func (b *BonusGrant) ActiveAt(now time.Time) bool {
	return !b.StartsAt.After(now) && b.EndsAt.After(now)
}
