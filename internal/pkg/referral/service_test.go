package referral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
)

type fakeRepo struct {
	mu     sync.Mutex
	nextID uint
	refs   map[uint]*models.Referral
	codes  map[string]uint // referral code -> referrer user id
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		refs:  make(map[uint]*models.Referral),
		codes: make(map[string]uint),
	}
}

func (f *fakeRepo) Create(ref *models.Referral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.refs {
		if existing.RefereeID == ref.RefereeID {
			return fmt.Errorf("Duplicate entry '%d' for key 'ux_referrals_referee_id'", ref.RefereeID)
		}
	}
	f.nextID++
	ref.ID = f.nextID
	cp := *ref
	f.refs[ref.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(id uint) (*models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.refs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ref
	return &cp, nil
}

func (f *fakeRepo) GetByReferee(refereeID uint) (*models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.refs {
		if ref.RefereeID == refereeID {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListByReferrer(referrerID uint) ([]models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Referral
	for _, ref := range f.refs {
		if ref.ReferrerID == referrerID {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindReferrerByCode(code string) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[code], nil
}

func (f *fakeRepo) CountByCodeSince(code string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ref := range f.refs {
		if ref.Code == code && !ref.SignedUpAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountRewardedByReferrer(referrerID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ref := range f.refs {
		if ref.ReferrerID == referrerID && ref.Status == models.ReferralStatusRewarded {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountRewardedByReferrerSince(referrerID uint, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ref := range f.refs {
		if ref.ReferrerID == referrerID && ref.Status == models.ReferralStatusRewarded &&
			ref.RewardedAt != nil && !ref.RewardedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) Transition(id uint, from, to models.ReferralStatus, updates map[string]interface{}) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, ErrInvalidTransition
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.refs[id]
	if !ok || ref.Status != from {
		return false, nil
	}
	ref.Status = to
	if t, ok := updates["converted_at"].(time.Time); ok {
		ref.ConvertedAt = &t
	}
	if t, ok := updates["rewarded_at"].(time.Time); ok {
		ref.RewardedAt = &t
	}
	return true, nil
}

func (f *fakeRepo) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Referral
	for _, ref := range f.refs {
		if ref.Status == models.ReferralStatusPending && ref.SignedUpAt.Before(cutoff) {
			out = append(out, *ref)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[string]int64)}
}

func (f *fakeCounters) IncrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

type fakeGrantor struct {
	grantErr error
	calls    int
}

func (f *fakeGrantor) GrantFor(ctx context.Context, referrerID, referralID uint, now time.Time) (*models.RewardGrant, string, error) {
	f.calls++
	if f.grantErr != nil {
		return nil, models.RewardTypeDiscountCode, f.grantErr
	}
	return &models.RewardGrant{
		UserID:     referrerID,
		ReferralID: referralID,
		RewardType: models.RewardTypeDiscountCode,
		GrantedAt:  now,
	}, models.RewardTypeDiscountCode, nil
}

type fakeRecorder struct {
	failures []string
}

func (f *fakeRecorder) RecordFailure(ctx context.Context, referralID, userID uint, rewardType string, cause error) error {
	f.failures = append(f.failures, fmt.Sprintf("ref=%d user=%d type=%s", referralID, userID, rewardType))
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *fakeRepo, *fakeGrantor, *fakeRecorder) {
	repo := newFakeRepo()
	grantor := &fakeGrantor{}
	recorder := &fakeRecorder{}
	fraud := NewFraudChecker(repo, newFakeCounters(), DefaultFraudConfig())
	svc := NewService(repo, fraud, grantor, recorder)
	svc.nowFn = func() time.Time { return testNow }
	return svc, repo, grantor, recorder
}

func seedReferral(repo *fakeRepo, referrerID, refereeID uint, status models.ReferralStatus, signedUpAt time.Time) *models.Referral {
	ref := &models.Referral{
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		Code:       "SEEDCODE",
		Status:     status,
		SignedUpAt: signedUpAt,
	}
	if err := repo.Create(ref); err != nil {
		panic(err)
	}
	repo.refs[ref.ID].Status = status
	return repo.refs[ref.ID]
}

func TestCreateReferralSuccess(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.codes["GOODCODE"] = 1

	res, err := svc.Create(context.Background(), CreateInput{Code: "GOODCODE", RefereeID: 2})
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.NotNil(t, res.Referral)
	assert.Equal(t, models.ReferralStatusPending, res.Referral.Status)
	assert.Equal(t, uint(1), res.Referral.ReferrerID)
	assert.Equal(t, testNow, res.Referral.SignedUpAt)
}

func TestCreateReferralSelfReferral(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.codes["MYCODE"] = 7

	res, err := svc.Create(context.Background(), CreateInput{Code: "MYCODE", RefereeID: 7})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonSelfReferral, res.Reason)
	assert.Empty(t, repo.refs)
}

func TestCreateReferralInvalidCode(t *testing.T) {
	svc, _, _, _ := newTestService()

	res, err := svc.Create(context.Background(), CreateInput{Code: "NOPE", RefereeID: 2})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonInvalidCode, res.Reason)
}

func TestCreateReferralRefereeUniqueness(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.codes["CODEA"] = 1
	repo.codes["CODEB"] = 3

	res, err := svc.Create(context.Background(), CreateInput{Code: "CODEA", RefereeID: 2})
	require.NoError(t, err)
	require.True(t, res.OK)

	// A second attribution for the same referee loses, regardless of code.
	res, err = svc.Create(context.Background(), CreateInput{Code: "CODEB", RefereeID: 2})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonAlreadyReferred, res.Reason)
	assert.Len(t, repo.refs, 1)
}

func TestCreateReferralFingerprintMatchInsertsFraudulent(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.codes["CODEA"] = 1

	res, err := svc.Create(context.Background(), CreateInput{Code: "CODEA", RefereeID: 2, IPHash: "aaa", DeviceHash: "ddd"})
	require.NoError(t, err)
	require.True(t, res.OK)

	// Same IP fingerprint on a new referee: still inserted, but fraudulent.
	res, err = svc.Create(context.Background(), CreateInput{Code: "CODEA", RefereeID: 3, IPHash: "aaa", DeviceHash: "eee"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonIPMatch, res.Reason)
	require.NotNil(t, res.Referral)
	assert.Equal(t, models.ReferralStatusFraudulent, res.Referral.Status)
	assert.Equal(t, ReasonIPMatch, res.Referral.FraudReason)
	assert.Len(t, repo.refs, 2)
}

func TestCreateReferralIPVelocityExceeded(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.codes["CODEA"] = 1

	// 3 signups from the same IP are allowed; the 4th trips the counter.
	for i := uint(2); i <= 4; i++ {
		res, err := svc.Create(context.Background(), CreateInput{Code: "CODEA", RefereeID: i, IPHash: "same-ip", DeviceHash: fmt.Sprintf("dev-%d", i)})
		require.NoError(t, err)
		// Fingerprint matching on IP would also fire here; clear hashes so
		// only velocity is under test.
		repo.mu.Lock()
		for _, ref := range repo.refs {
			ref.IPHash = ""
		}
		repo.mu.Unlock()
		require.True(t, res.OK, "signup %d should pass", i)
	}

	res, err := svc.Create(context.Background(), CreateInput{Code: "CODEA", RefereeID: 9, IPHash: "same-ip", DeviceHash: "dev-9"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonIPVelocity, res.Reason)
}

func TestConvertBeforeDelay(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-47*time.Hour))

	res, err := svc.Convert(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonTooSoon, res.Reason)
	assert.Equal(t, models.ReferralStatusPending, repo.refs[ref.ID].Status)
}

func TestConvertExactlyAtDelay(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-ConversionDelay))

	res, err := svc.Convert(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, models.ReferralStatusConverted, repo.refs[ref.ID].Status)
	require.NotNil(t, repo.refs[ref.ID].ConvertedAt)
}

func TestConvertAlreadyConverted(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ref := seedReferral(repo, 1, 2, models.ReferralStatusConverted, testNow.Add(-72*time.Hour))

	res, err := svc.Convert(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonAlreadyConverted, res.Reason)
}

func TestMarkRewardedFromPendingFails(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-72*time.Hour))

	err := svc.MarkRewarded(context.Background(), ref.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.ReferralStatusPending, repo.refs[ref.ID].Status)
}

func TestExpireBatch(t *testing.T) {
	svc, repo, _, _ := newTestService()
	old := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-91*24*time.Hour))
	fresh := seedReferral(repo, 1, 3, models.ReferralStatusPending, testNow.Add(-89*24*time.Hour))

	count, more, err := svc.ExpireBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, more)
	assert.Equal(t, models.ReferralStatusExpired, repo.refs[old.ID].Status)
	assert.Equal(t, models.ReferralStatusPending, repo.refs[fresh.ID].Status)
}

func TestHandleConversionFullFlow(t *testing.T) {
	svc, repo, grantor, _ := newTestService()
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-49*time.Hour))

	outcome, err := svc.HandleConversion(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, outcome.Converted)
	assert.True(t, outcome.Rewarded)
	require.NotNil(t, outcome.Grant)
	assert.Equal(t, 1, grantor.calls)
	assert.Equal(t, models.ReferralStatusRewarded, repo.refs[ref.ID].Status)
}

func TestHandleConversionNoReferral(t *testing.T) {
	svc, _, _, _ := newTestService()

	outcome, err := svc.HandleConversion(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, outcome.Converted)
	assert.Equal(t, ReasonNoReferral, outcome.Reason)
}

func TestHandleConversionGrantFailureKeepsConversion(t *testing.T) {
	svc, repo, grantor, recorder := newTestService()
	grantor.grantErr = errors.New("code space exhausted")
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-49*time.Hour))

	outcome, err := svc.HandleConversion(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, outcome.Converted)
	assert.False(t, outcome.Rewarded)
	assert.Equal(t, ReasonRewardPendingRetry, outcome.Reason)
	// Conversion survives the grant failure, and the failure is on record.
	assert.Equal(t, models.ReferralStatusConverted, repo.refs[ref.ID].Status)
	require.Len(t, recorder.failures, 1)
}

func TestHandleConversionLifetimeRewardLimit(t *testing.T) {
	svc, repo, grantor, _ := newTestService()
	now := testNow
	for i := 0; i < MaxRewardsTotal; i++ {
		r := seedReferral(repo, 1, uint(100+i), models.ReferralStatusRewarded, now.Add(-200*24*time.Hour))
		old := now.Add(-100 * 24 * time.Hour)
		repo.refs[r.ID].RewardedAt = &old
	}
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, now.Add(-49*time.Hour))

	outcome, err := svc.HandleConversion(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, outcome.Converted)
	assert.False(t, outcome.Rewarded)
	assert.Equal(t, ReasonMaxTotalReached, outcome.Reason)
	assert.Zero(t, grantor.calls)
	assert.Equal(t, models.ReferralStatusConverted, repo.refs[ref.ID].Status)
}

func TestHandleConversionMonthlyRewardLimit(t *testing.T) {
	svc, repo, grantor, _ := newTestService()
	for i := 0; i < MaxRewardsPer30Days; i++ {
		r := seedReferral(repo, 1, uint(100+i), models.ReferralStatusRewarded, testNow.Add(-20*24*time.Hour))
		recent := testNow.Add(-time.Duration(i+1) * 24 * time.Hour)
		repo.refs[r.ID].RewardedAt = &recent
	}
	ref := seedReferral(repo, 1, 2, models.ReferralStatusPending, testNow.Add(-49*time.Hour))

	outcome, err := svc.HandleConversion(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, outcome.Converted)
	assert.Equal(t, ReasonMonthlyLimitReached, outcome.Reason)
	assert.Zero(t, grantor.calls)
	assert.Equal(t, models.ReferralStatusConverted, repo.refs[ref.ID].Status)
}
