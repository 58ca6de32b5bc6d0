package quota

import (
	"context"
	"time"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/internal/pkg/entitlements"
)

// Denial codes surfaced to API clients.
const (
	CodeParkLimitExceeded      = "PARK_LIMIT_EXCEEDED"
	CodeDailyPickLimitExceeded = "DAILY_PICK_LIMIT_EXCEEDED"
	CodePaymentRequired        = "PAYMENT_REQUIRED"
)

// CheckResult is the outcome of a gate check. Limit carries the tier's cap so
// clients can render "3 of 5 used" without a second call.
type CheckResult struct {
	Allowed      bool
	Code         string
	CurrentCount int
	Limit        int
	Tier         entitlements.Tier
	// ResetsAt is set for daily-pick denials: the next UTC midnight.
	ResetsAt *time.Time
}

// Service is the entitlement gate: every quota-bound action checks here
// before executing.
type Service struct {
	repo  Repository
	nowFn func() time.Time
}

// NewService creates the entitlement gate.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFn: time.Now}
}

// EffectiveTier resolves the user's tier with bonus windows applied.
func (s *Service) EffectiveTier(ctx context.Context, userID uint) (entitlements.Tier, error) {
	_ = ctx
	return s.effectiveTier(userID, s.nowFn())
}

// CheckCanAddPark gates park creation against the tier's park cap.
func (s *Service) CheckCanAddPark(ctx context.Context, userID uint) (*CheckResult, error) {
	_ = ctx
	now := s.nowFn()

	tier, ent, err := s.tierAndEntitlement(userID, now)
	if err != nil {
		return nil, err
	}
	limits := entitlements.LimitsForTier(tier)

	count, err := s.repo.CountParksByUser(userID)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
		Allowed:      count < limits.MaxParks,
		CurrentCount: count,
		Limit:        limits.MaxParks,
		Tier:         tier,
	}
	if !result.Allowed {
		result.Code = denialCode(ent, CodeParkLimitExceeded)
	}
	return result, nil
}

// CheckCanPickToday gates random picks against the tier's per-day cap. The
// day boundary is UTC midnight for everyone.
func (s *Service) CheckCanPickToday(ctx context.Context, userID uint) (*CheckResult, error) {
	_ = ctx
	now := s.nowFn()

	tier, ent, err := s.tierAndEntitlement(userID, now)
	if err != nil {
		return nil, err
	}
	limits := entitlements.LimitsForTier(tier)

	count, err := s.repo.GetPickCount(userID, models.PickDay(now))
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
		Allowed:      count < limits.MaxPicksPerDay,
		CurrentCount: count,
		Limit:        limits.MaxPicksPerDay,
		Tier:         tier,
	}
	if !result.Allowed {
		result.Code = denialCode(ent, CodeDailyPickLimitExceeded)
		reset := models.NextPickReset(now)
		result.ResetsAt = &reset
	}
	return result, nil
}

// RecordPick persists a pick and bumps the user's daily counter. Callers run
// the gate check first; the counter increment itself is unconditional and
// atomic.
func (s *Service) RecordPick(ctx context.Context, userID, parkID uint) error {
	_ = ctx
	now := s.nowFn()
	day := models.PickDay(now)

	if err := s.repo.IncrementPickCount(userID, day); err != nil {
		return err
	}
	return s.repo.CreatePick(&models.Pick{
		UserID: userID,
		ParkID: parkID,
		Day:    day,
	})
}

func (s *Service) effectiveTier(userID uint, now time.Time) (entitlements.Tier, error) {
	tier, _, err := s.tierAndEntitlement(userID, now)
	return tier, err
}

func (s *Service) tierAndEntitlement(userID uint, now time.Time) (entitlements.Tier, *models.Entitlement, error) {
	ent, err := s.repo.GetEntitlementByUser(userID)
	if err != nil {
		return entitlements.TierFree, nil, err
	}
	bonus, err := s.repo.GetLatestActiveBonus(userID, now)
	if err != nil {
		return entitlements.TierFree, nil, err
	}
	return entitlements.EffectiveTierWithBonus(ent, bonus, now), ent, nil
}

// denialCode picks the client-facing code for a denied check. A lapsed
// premium subscription gets the payment prompt instead of the generic limit
// message.
func denialCode(ent *models.Entitlement, limitCode string) string {
	if ent != nil && ent.Tier == models.TierPremium && ent.Status == models.EntitlementStatusPastDue {
		return CodePaymentRequired
	}
	return limitCode
}
