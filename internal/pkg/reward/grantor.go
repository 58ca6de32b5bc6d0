package reward

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/internal/pkg/entitlements"
)

const (
	// BonusDaysPerReward is the fixed bonus window issued per reward.
	BonusDaysPerReward = 30

	discountCodePrefix = "REF-"
	discountCodeLength = 8
	maxCodeAttempts    = 10
)

// discountCodeAlphabet avoids visually ambiguous characters (0/O, 1/I).
const discountCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// ErrCodeSpaceExhausted is the hard failure raised when discount-code
// generation keeps colliding. Callers must not treat it as "no code issued".
var ErrCodeSpaceExhausted = errors.New("discount code generation exhausted retry attempts")

// Grantor issues referral rewards: bonus premium days for premium referrers,
// discount codes for free referrers.
type Grantor struct {
	repo Repository
}

// NewGrantor creates a reward grantor.
func NewGrantor(repo Repository) *Grantor {
	return &Grantor{repo: repo}
}

// GrantFor selects the reward type from the referrer's effective tier at the
// moment of granting (bonus windows included) and issues the reward. The
// selected type is returned alongside any error so failures can be recorded
// with it.
func (g *Grantor) GrantFor(ctx context.Context, referrerID, referralID uint, now time.Time) (*models.RewardGrant, string, error) {
	tier, err := g.effectiveTier(referrerID, now)
	if err != nil {
		return nil, "", err
	}

	rewardType := models.RewardTypeDiscountCode
	if tier == entitlements.TierPremium {
		rewardType = models.RewardTypeBonusDays
	}

	grant, err := g.Grant(ctx, rewardType, referrerID, referralID, now)
	return grant, rewardType, err
}

// Grant issues a specific reward type. Used by the retry sweep, which
// replays the type recorded at first failure.
func (g *Grantor) Grant(ctx context.Context, rewardType string, userID, referralID uint, now time.Time) (*models.RewardGrant, error) {
	switch rewardType {
	case models.RewardTypeBonusDays:
		return g.GrantBonusDays(ctx, userID, referralID, now)
	case models.RewardTypeDiscountCode:
		return g.GrantDiscountCode(ctx, userID, referralID, now)
	default:
		return nil, fmt.Errorf("unknown reward type: %q", rewardType)
	}
}

// GrantBonusDays issues a 30-day bonus window. An existing active window is
// extended by stacking: the new window starts where the current one ends,
// never overlapping in effect.
func (g *Grantor) GrantBonusDays(ctx context.Context, userID, referralID uint, now time.Time) (*models.RewardGrant, error) {
	_ = ctx
	active, err := g.repo.GetLatestActiveBonus(userID, now)
	if err != nil {
		return nil, err
	}

	start := now
	if active != nil {
		start = active.EndsAt
	}
	end := start.Add(BonusDaysPerReward * 24 * time.Hour)

	bonus := &models.BonusGrant{
		UserID:     userID,
		ReferralID: referralID,
		StartsAt:   start,
		EndsAt:     end,
	}
	if err := g.repo.CreateBonusGrant(bonus); err != nil {
		return nil, err
	}

	grant := &models.RewardGrant{
		PublicID:   uuid.New().String(),
		UserID:     userID,
		ReferralID: referralID,
		RewardType: models.RewardTypeBonusDays,
		BonusDays:  BonusDaysPerReward,
		GrantedAt:  now,
	}
	if err := g.repo.CreateRewardGrant(grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// GrantDiscountCode issues a fresh random discount code, retrying on
// collision. Exhausting the attempts is a hard failure.
func (g *Grantor) GrantDiscountCode(ctx context.Context, userID, referralID uint, now time.Time) (*models.RewardGrant, error) {
	_ = ctx
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateDiscountCode()
		if err != nil {
			return nil, err
		}
		exists, err := g.repo.DiscountCodeExists(code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		grant := &models.RewardGrant{
			PublicID:   uuid.New().String(),
			UserID:     userID,
			ReferralID: referralID,
			RewardType: models.RewardTypeDiscountCode,
			Code:       code,
			GrantedAt:  now,
		}
		if err := g.repo.CreateRewardGrant(grant); err != nil {
			return nil, err
		}
		return grant, nil
	}
	return nil, ErrCodeSpaceExhausted
}

func (g *Grantor) effectiveTier(userID uint, now time.Time) (entitlements.Tier, error) {
	ent, err := g.repo.GetEntitlementByUser(userID)
	if err != nil {
		return entitlements.TierFree, err
	}
	bonus, err := g.repo.GetLatestActiveBonus(userID, now)
	if err != nil {
		return entitlements.TierFree, err
	}
	return entitlements.EffectiveTierWithBonus(ent, bonus, now), nil
}

func generateDiscountCode() (string, error) {
	b := make([]byte, discountCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, discountCodeLength)
	for i, c := range b {
		out[i] = discountCodeAlphabet[int(c)%len(discountCodeAlphabet)]
	}
	return discountCodePrefix + string(out), nil
}
