package reward

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// DefaultMaxRetries is how many sweep attempts a failed grant gets before it
// is escalated for manual intervention.
const DefaultMaxRetries = 3

// Ledger is the slice of the referral service the retry loop needs.
type Ledger interface {
	GetReferral(ctx context.Context, referralID uint) (*models.Referral, error)
	MarkRewarded(ctx context.Context, referralID uint) error
}

// Recovery is the durable, at-least-once retry loop for reward grants that
// failed transactionally.
type Recovery struct {
	repo       Repository
	grantor    *Grantor
	ledger     Ledger
	maxRetries int
	nowFn      func() time.Time
}

// NewRecovery creates the failed-reward recovery loop.
func NewRecovery(repo Repository, grantor *Grantor, ledger Ledger) *Recovery {
	return &Recovery{
		repo:       repo,
		grantor:    grantor,
		ledger:     ledger,
		maxRetries: DefaultMaxRetries,
		nowFn:      time.Now,
	}
}

// RecordFailure captures a grant failure. A referral holds at most one
// pending record: a repeat failure updates the existing record and resets
// its retry budget instead of creating a duplicate.
func (r *Recovery) RecordFailure(ctx context.Context, referralID, userID uint, rewardType string, cause error) error {
	_ = ctx
	now := r.nowFn()

	existing, err := r.repo.GetPendingFailureByReferral(referralID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.LastError = cause.Error()
		existing.LastAttemptAt = &now
		existing.RetryCount = 0
		if rewardType != "" {
			existing.RewardType = rewardType
		}
		return r.repo.SaveFailedReward(existing)
	}

	return r.repo.CreateFailedReward(&models.FailedReward{
		ReferralID:    referralID,
		UserID:        userID,
		RewardType:    rewardType,
		LastError:     cause.Error(),
		Status:        models.FailedRewardStatusPending,
		LastAttemptAt: &now,
	})
}

// SweepResult summarizes one recovery sweep.
type SweepResult struct {
	Attempted int
	Resolved  int
	Escalated int
}

// Sweep re-attempts every pending failed grant. One record's failure never
// aborts the rest of the sweep, and overlapping sweeps are safe: each record
// is re-fetched and re-checked immediately before acting.
func (r *Recovery) Sweep(ctx context.Context) (SweepResult, error) {
	records, err := r.repo.ListPendingFailures()
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for i := range records {
		rec, err := r.repo.GetFailedReward(records[i].ID)
		if err != nil {
			log.Errorf("[RewardRecovery] Failed to re-fetch record %d: %v", records[i].ID, err)
			continue
		}
		if rec.Status != models.FailedRewardStatusPending {
			// A concurrent sweep already handled it.
			continue
		}

		result.Attempted++
		if err := r.retryOne(ctx, rec); err != nil {
			r.markFailedAttempt(rec, err, &result)
			continue
		}

		rec.Status = models.FailedRewardStatusResolved
		now := r.nowFn()
		rec.LastAttemptAt = &now
		if err := r.repo.SaveFailedReward(rec); err != nil {
			log.Errorf("[RewardRecovery] Failed to mark record %d resolved: %v", rec.ID, err)
			continue
		}
		result.Resolved++
	}
	return result, nil
}

// retryOne re-drives the grant + reward-marking sequence for one record.
func (r *Recovery) retryOne(ctx context.Context, rec *models.FailedReward) error {
	now := r.nowFn()

	ref, err := r.ledger.GetReferral(ctx, rec.ReferralID)
	if err != nil {
		return err
	}
	if ref.Status == models.ReferralStatusRewarded {
		// A previous attempt got all the way through; nothing left to do.
		return nil
	}

	if rec.RewardType == "" {
		// The original failure happened before type selection; re-select.
		_, rewardType, err := r.grantor.GrantFor(ctx, ref.ReferrerID, rec.ReferralID, now)
		if err != nil {
			return err
		}
		rec.RewardType = rewardType
	} else {
		if _, err := r.grantor.Grant(ctx, rec.RewardType, rec.UserID, rec.ReferralID, now); err != nil {
			return err
		}
	}

	return r.ledger.MarkRewarded(ctx, rec.ReferralID)
}

func (r *Recovery) markFailedAttempt(rec *models.FailedReward, cause error, result *SweepResult) {
	now := r.nowFn()
	rec.RetryCount++
	rec.LastError = cause.Error()
	rec.LastAttemptAt = &now
	if rec.RetryCount >= r.maxRetries {
		rec.Status = models.FailedRewardStatusEscalated
		result.Escalated++
		log.Errorf("[RewardRecovery] Record %d escalated after %d retries: %v", rec.ID, rec.RetryCount, cause)
	} else {
		log.Warnf("[RewardRecovery] Record %d retry %d/%d failed: %v", rec.ID, rec.RetryCount, r.maxRetries, cause)
	}
	if err := r.repo.SaveFailedReward(rec); err != nil {
		log.Errorf("[RewardRecovery] Failed to persist record %d after attempt: %v", rec.ID, err)
	}
}
