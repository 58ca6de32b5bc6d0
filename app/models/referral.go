package models

import "time"

// ReferralStatus is the reified referral state. Transitions are one-way and
// checked centrally via CanTransitionTo; no state re-enters pending.
type ReferralStatus string

const (
	ReferralStatusPending    ReferralStatus = "pending"
	ReferralStatusConverted  ReferralStatus = "converted"
	ReferralStatusRewarded   ReferralStatus = "rewarded"
	ReferralStatusExpired    ReferralStatus = "expired"
	ReferralStatusFraudulent ReferralStatus = "fraudulent"
)

var referralTransitions = map[ReferralStatus][]ReferralStatus{
	ReferralStatusPending:    {ReferralStatusConverted, ReferralStatusExpired, ReferralStatusFraudulent},
	ReferralStatusConverted:  {ReferralStatusRewarded, ReferralStatusFraudulent},
	ReferralStatusRewarded:   {},
	ReferralStatusExpired:    {},
	ReferralStatusFraudulent: {},
}

// CanTransitionTo reports whether the transition table allows moving from s to next.
func (s ReferralStatus) CanTransitionTo(next ReferralStatus) bool {
	for _, allowed := range referralTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s ReferralStatus) IsTerminal() bool {
	return len(referralTransitions[s]) == 0
}

// Referral tracks one referee from signup through conversion, reward, expiry
// or fraud block. Exactly one row may exist per referee (first writer wins).
type Referral struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ReferrerID  uint           `gorm:"not null;index" json:"referrer_id"`
	RefereeID   uint           `gorm:"not null;uniqueIndex" json:"referee_id"`
	Code        string         `gorm:"type:varchar(64);not null;index" json:"code"`
	Status      ReferralStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_referrals_status_signed_up,priority:1" json:"status"`
	SignedUpAt  time.Time      `gorm:"not null;index:idx_referrals_status_signed_up,priority:2" json:"signed_up_at"`
	ConvertedAt *time.Time     `gorm:"type:timestamp;default:null" json:"converted_at,omitempty"`
	RewardedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"rewarded_at,omitempty"`
	FraudReason string         `gorm:"type:varchar(64);default:''" json:"fraud_reason,omitempty"`
	IPHash      string         `gorm:"type:char(64);default:''" json:"-"`
	DeviceHash  string         `gorm:"type:char(64);default:''" json:"-"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
