package quota

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/internal/pkg/entitlements"
)

type fakeQuotaRepo struct {
	mu           sync.Mutex
	entitlements map[uint]*models.Entitlement
	bonuses      []models.BonusGrant
	parkCounts   map[uint]int
	pickCounts   map[string]int
	picks        []models.Pick
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{
		entitlements: make(map[uint]*models.Entitlement),
		parkCounts:   make(map[uint]int),
		pickCounts:   make(map[string]int),
	}
}

func pickKey(userID uint, day string) string {
	return fmt.Sprintf("%d/%s", userID, day)
}

func (f *fakeQuotaRepo) GetEntitlementByUser(userID uint) (*models.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, ok := f.entitlements[userID]
	if !ok {
		return nil, nil
	}
	cp := *ent
	return &cp, nil
}

func (f *fakeQuotaRepo) GetLatestActiveBonus(userID uint, now time.Time) (*models.BonusGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.BonusGrant
	for i := range f.bonuses {
		b := &f.bonuses[i]
		if b.UserID == userID && b.EndsAt.After(now) {
			if latest == nil || b.EndsAt.After(latest.EndsAt) {
				latest = b
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeQuotaRepo) CountParksByUser(userID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parkCounts[userID], nil
}

func (f *fakeQuotaRepo) GetPickCount(userID uint, day string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pickCounts[pickKey(userID, day)], nil
}

func (f *fakeQuotaRepo) IncrementPickCount(userID uint, day string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pickCounts[pickKey(userID, day)]++
	return nil
}

func (f *fakeQuotaRepo) CreatePick(pick *models.Pick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.picks = append(f.picks, *pick)
	return nil
}

var quotaNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestQuotaService() (*Service, *fakeQuotaRepo) {
	repo := newFakeQuotaRepo()
	svc := NewService(repo)
	svc.nowFn = func() time.Time { return quotaNow }
	return svc, repo
}

func TestCheckCanAddParkFreeTierUnderLimit(t *testing.T) {
	svc, repo := newTestQuotaService()
	repo.parkCounts[1] = 4

	check, err := svc.CheckCanAddPark(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 4, check.CurrentCount)
	assert.Equal(t, 5, check.Limit)
	assert.Equal(t, entitlements.TierFree, check.Tier)
}

func TestCheckCanAddParkFreeTierAtLimit(t *testing.T) {
	svc, repo := newTestQuotaService()
	repo.parkCounts[1] = 5

	check, err := svc.CheckCanAddPark(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, CodeParkLimitExceeded, check.Code)
}

func TestCheckCanAddParkPremiumUnlimited(t *testing.T) {
	svc, repo := newTestQuotaService()
	repo.entitlements[1] = &models.Entitlement{
		UserID: 1,
		Tier:   models.TierPremium,
		Status: models.EntitlementStatusActive,
	}
	repo.parkCounts[1] = 5000

	check, err := svc.CheckCanAddPark(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, entitlements.TierPremium, check.Tier)
}

func TestCheckCanPickTodayFreeTier(t *testing.T) {
	svc, repo := newTestQuotaService()

	check, err := svc.CheckCanPickToday(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, check.Allowed)

	repo.pickCounts[pickKey(1, models.PickDay(quotaNow))] = 1

	check, err = svc.CheckCanPickToday(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, CodeDailyPickLimitExceeded, check.Code)
	require.NotNil(t, check.ResetsAt)
	assert.Equal(t, models.NextPickReset(quotaNow), *check.ResetsAt)
}

func TestCheckCanPickPastDuePremiumGetsPaymentRequired(t *testing.T) {
	svc, repo := newTestQuotaService()
	// Lapsed premium: effective tier is free, so limits bind, but the denial
	// code prompts for payment.
	repo.entitlements[1] = &models.Entitlement{
		UserID: 1,
		Tier:   models.TierPremium,
		Status: models.EntitlementStatusPastDue,
	}
	repo.pickCounts[pickKey(1, models.PickDay(quotaNow))] = 1

	check, err := svc.CheckCanPickToday(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, CodePaymentRequired, check.Code)
}

func TestBonusWindowGrantsPremiumLimits(t *testing.T) {
	svc, repo := newTestQuotaService()
	repo.bonuses = append(repo.bonuses, models.BonusGrant{
		UserID:   1,
		StartsAt: quotaNow.Add(-24 * time.Hour),
		EndsAt:   quotaNow.Add(24 * time.Hour),
	})
	repo.pickCounts[pickKey(1, models.PickDay(quotaNow))] = 10

	check, err := svc.CheckCanPickToday(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, entitlements.TierPremium, check.Tier)
}

func TestRecordPickIncrementsCounterAndStoresPick(t *testing.T) {
	svc, repo := newTestQuotaService()

	require.NoError(t, svc.RecordPick(context.Background(), 1, 42))
	require.NoError(t, svc.RecordPick(context.Background(), 1, 43))

	assert.Equal(t, 2, repo.pickCounts[pickKey(1, models.PickDay(quotaNow))])
	require.Len(t, repo.picks, 2)
	assert.Equal(t, uint(42), repo.picks[0].ParkID)
	assert.Equal(t, models.PickDay(quotaNow), repo.picks[0].Day)
}
