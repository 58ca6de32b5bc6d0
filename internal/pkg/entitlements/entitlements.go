package entitlements

import (
	"strings"
	"time"

	"github.com/Resonant-Projects/parkpick/app/models"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Unlimited is the sentinel used for premium limits. Large but finite so it
// serializes cleanly.
const Unlimited = 1_000_000

// Limits holds the per-tier usage caps enforced by the quota gate.
type Limits struct {
	MaxParks       int
	MaxPicksPerDay int
}

// LimitsForTier returns the usage caps for a given tier.
func LimitsForTier(t Tier) Limits {
	if t == TierPremium {
		return Limits{MaxParks: Unlimited, MaxPicksPerDay: Unlimited}
	}
	return Limits{MaxParks: 5, MaxPicksPerDay: 1}
}

// EffectiveTier computes the entitlement tier from stored subscription state
// alone. Pure: no I/O, deterministic for a given entitlement and instant.
//
// Precedence:
//  1. no entitlement row -> free
//  2. premium + active -> premium
//  3. premium + canceled with a future period end -> premium (paid-through,
//     trials included)
//  4. anything else -> free
func EffectiveTier(ent *models.Entitlement, now time.Time) Tier {
	if ent == nil {
		return TierFree
	}
	if normalizeTier(ent.Tier) != TierPremium {
		return TierFree
	}
	switch ent.Status {
	case models.EntitlementStatusActive:
		return TierPremium
	case models.EntitlementStatusCanceled:
		if ent.PeriodEnd != nil && ent.PeriodEnd.After(now) {
			return TierPremium
		}
	}
	return TierFree
}

// EffectiveTierWithBonus additionally honors an active bonus window: a bonus
// grant whose end is strictly after now yields premium regardless of the
// stored subscription tier.
func EffectiveTierWithBonus(ent *models.Entitlement, bonus *models.BonusGrant, now time.Time) Tier {
	if bonus != nil && bonus.EndsAt.After(now) {
		return TierPremium
	}
	return EffectiveTier(ent, now)
}

func normalizeTier(tier string) Tier {
	if strings.ToLower(strings.TrimSpace(tier)) == string(TierPremium) {
		return TierPremium
	}
	return TierFree
}
