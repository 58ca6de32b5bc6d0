package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/Resonant-Projects/parkpick/internal/pkg/cache"
)

const velocityWindow = 7 * 24 * time.Hour

// FraudConfig holds the anti-abuse thresholds for referral signups.
type FraudConfig struct {
	MaxSignupsPerIP7Days     int
	MaxSignupsPerDevice7Days int
	MaxCodeSignupsPerHour    int
	MaxCodeSignupsPerDay     int
}

// DefaultFraudConfig returns the production thresholds.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		MaxSignupsPerIP7Days:     3,
		MaxSignupsPerDevice7Days: 2,
		MaxCodeSignupsPerHour:    10,
		MaxCodeSignupsPerDay:     50,
	}
}

// Signal is an advisory fraud verdict. The ledger decides what to do with
// it; signals never write terminal state themselves.
type Signal struct {
	Suspicious bool
	Reason     string
}

// CounterStore is the atomic increment-or-insert primitive behind the
// rolling velocity counters. Window expiry is lazy: a counter past its
// window disappears and the next increment restarts it at 1.
type CounterStore interface {
	IncrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounterStore struct{}

func (redisCounterStore) IncrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return cache.IncrWithWindow(ctx, key, window)
}

// NewCounterStore returns the redis-backed velocity counter store.
func NewCounterStore() CounterStore {
	return redisCounterStore{}
}

// FraudChecker evaluates referral signup attempts against the self-referral
// and velocity heuristics.
type FraudChecker struct {
	repo     Repository
	counters CounterStore
	cfg      FraudConfig
}

// NewFraudChecker creates a fraud checker with the given thresholds.
func NewFraudChecker(repo Repository, counters CounterStore, cfg FraudConfig) *FraudChecker {
	return &FraudChecker{repo: repo, counters: counters, cfg: cfg}
}

// CheckFingerprints compares the new signup's fingerprints against every
// prior referral created by the same referrer. Linear in the referrer's
// referral count, which is bounded by the reward limits.
func (f *FraudChecker) CheckFingerprints(ctx context.Context, referrerID uint, ipHash, deviceHash string) (Signal, error) {
	_ = ctx
	prior, err := f.repo.ListByReferrer(referrerID)
	if err != nil {
		return Signal{}, err
	}
	for _, ref := range prior {
		if ipHash != "" && ref.IPHash == ipHash {
			return Signal{Suspicious: true, Reason: ReasonIPMatch}, nil
		}
		if deviceHash != "" && ref.DeviceHash == deviceHash {
			return Signal{Suspicious: true, Reason: ReasonDeviceMatch}, nil
		}
	}
	return Signal{}, nil
}

// RegisterSignupVelocity increments the per-identifier counters and reports
// whether either identifier has exceeded its 7-day budget.
func (f *FraudChecker) RegisterSignupVelocity(ctx context.Context, ipHash, deviceHash string) (Signal, error) {
	if ipHash != "" {
		n, err := f.counters.IncrWithWindow(ctx, velocityKey("ip", ipHash), velocityWindow)
		if err != nil {
			return Signal{}, err
		}
		if n > int64(f.cfg.MaxSignupsPerIP7Days) {
			return Signal{Suspicious: true, Reason: ReasonIPVelocity}, nil
		}
	}
	if deviceHash != "" {
		n, err := f.counters.IncrWithWindow(ctx, velocityKey("device", deviceHash), velocityWindow)
		if err != nil {
			return Signal{}, err
		}
		if n > int64(f.cfg.MaxSignupsPerDevice7Days) {
			return Signal{Suspicious: true, Reason: ReasonDeviceVelocity}, nil
		}
	}
	return Signal{}, nil
}

// CheckCodeVelocity bounds signups per referral code in trailing hourly and
// daily windows. Computed from referral counts, not counters, so a blocked
// attempt leaves no trace.
func (f *FraudChecker) CheckCodeVelocity(ctx context.Context, code string, now time.Time) (Signal, error) {
	_ = ctx
	hourly, err := f.repo.CountByCodeSince(code, now.Add(-time.Hour))
	if err != nil {
		return Signal{}, err
	}
	if hourly >= int64(f.cfg.MaxCodeSignupsPerHour) {
		return Signal{Suspicious: true, Reason: ReasonCodeHourlyLimit}, nil
	}
	daily, err := f.repo.CountByCodeSince(code, now.Add(-24*time.Hour))
	if err != nil {
		return Signal{}, err
	}
	if daily >= int64(f.cfg.MaxCodeSignupsPerDay) {
		return Signal{Suspicious: true, Reason: ReasonCodeDailyLimit}, nil
	}
	return Signal{}, nil
}

func velocityKey(kind, hash string) string {
	return fmt.Sprintf("referral:velocity:%s:%s", kind, hash)
}
