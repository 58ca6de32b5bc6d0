package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// Grantor issues rewards. Implemented by the reward package; the ledger only
// sees this interface.
type Grantor interface {
	// GrantFor selects the reward type from the referrer's effective tier at
	// grant time and issues it. The selected type is returned even when the
	// grant itself fails, so failures can be recorded with it.
	GrantFor(ctx context.Context, referrerID, referralID uint, now time.Time) (*models.RewardGrant, string, error)
}

// FailureRecorder captures grant failures for the durable retry loop.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, referralID, userID uint, rewardType string, cause error) error
}

// Service is the referral ledger: it owns every status transition and is the
// only writer of referral state.
type Service struct {
	repo     Repository
	fraud    *FraudChecker
	grantor  Grantor
	recorder FailureRecorder
	nowFn    func() time.Time
}

// NewService creates the referral ledger service.
func NewService(repo Repository, fraud *FraudChecker, grantor Grantor, recorder FailureRecorder) *Service {
	return &Service{
		repo:     repo,
		fraud:    fraud,
		grantor:  grantor,
		recorder: recorder,
		nowFn:    time.Now,
	}
}

// SetFailureRecorder wires in the recovery loop after construction. The
// service and the recovery loop reference each other, so one side has to be
// attached late.
func (s *Service) SetFailureRecorder(r FailureRecorder) {
	s.recorder = r
}

// Create records a referral signup. Validation failures come back as a
// Result, never as an error; the signup flow logs them and moves on.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	now := s.nowFn()

	code := strings.TrimSpace(in.Code)
	if code == "" || in.RefereeID == 0 {
		return failure(ReasonInvalidCode), nil
	}
	referrerID, err := s.repo.FindReferrerByCode(code)
	if err != nil {
		return nil, err
	}
	if referrerID == 0 {
		return failure(ReasonInvalidCode), nil
	}
	if referrerID == in.RefereeID {
		return failure(ReasonSelfReferral), nil
	}

	if _, err := s.repo.GetByReferee(in.RefereeID); err == nil {
		return failure(ReasonAlreadyReferred), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if sig, err := s.fraud.CheckCodeVelocity(ctx, code, now); err != nil {
		return nil, err
	} else if sig.Suspicious {
		return failure(sig.Reason), nil
	}
	if sig, err := s.fraud.RegisterSignupVelocity(ctx, in.IPHash, in.DeviceHash); err != nil {
		return nil, err
	} else if sig.Suspicious {
		return failure(sig.Reason), nil
	}

	ref := &models.Referral{
		ReferrerID: referrerID,
		RefereeID:  in.RefereeID,
		Code:       code,
		Status:     models.ReferralStatusPending,
		SignedUpAt: now,
		IPHash:     in.IPHash,
		DeviceHash: in.DeviceHash,
	}

	// Fingerprint matches are still inserted, as fraudulent, so the
	// fingerprints stay on record for future matching.
	sig, err := s.fraud.CheckFingerprints(ctx, referrerID, in.IPHash, in.DeviceHash)
	if err != nil {
		return nil, err
	}
	if sig.Suspicious {
		ref.Status = models.ReferralStatusFraudulent
		ref.FraudReason = sig.Reason
	}

	if err := s.repo.Create(ref); err != nil {
		// First writer wins on the referee uniqueness constraint.
		if isDuplicateKey(err) {
			return failure(ReasonAlreadyReferred), nil
		}
		return nil, err
	}
	if sig.Suspicious {
		return &Result{OK: false, Reason: sig.Reason, Referral: ref}, nil
	}
	return &Result{OK: true, Referral: ref}, nil
}

// Convert moves a referral from pending to converted once the anti-gaming
// delay has elapsed. The transition is a single guarded update, so a
// duplicate webhook racing this call loses cleanly.
func (s *Service) Convert(ctx context.Context, ref *models.Referral) (*Result, error) {
	_ = ctx
	now := s.nowFn()

	switch ref.Status {
	case models.ReferralStatusPending:
		// proceed
	case models.ReferralStatusConverted:
		return failure(ReasonAlreadyConverted), nil
	default:
		return failure(ReasonNotPending), nil
	}

	if now.Sub(ref.SignedUpAt) < ConversionDelay {
		return failure(ReasonTooSoon), nil
	}

	moved, err := s.repo.Transition(ref.ID, models.ReferralStatusPending, models.ReferralStatusConverted,
		map[string]interface{}{"converted_at": now})
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost the race; report what the row became.
		current, err := s.repo.GetByID(ref.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.ReferralStatusConverted {
			return failure(ReasonAlreadyConverted), nil
		}
		return failure(ReasonNotPending), nil
	}

	ref.Status = models.ReferralStatusConverted
	ref.ConvertedAt = &now
	return &Result{OK: true, Referral: ref}, nil
}

// MarkRewarded moves a converted referral to rewarded. Calling this on a
// referral in any other state is a contract violation and fails loudly.
func (s *Service) MarkRewarded(ctx context.Context, referralID uint) error {
	_ = ctx
	now := s.nowFn()

	moved, err := s.repo.Transition(referralID, models.ReferralStatusConverted, models.ReferralStatusRewarded,
		map[string]interface{}{"rewarded_at": now})
	if err != nil {
		return err
	}
	if moved {
		return nil
	}

	current, err := s.repo.GetByID(referralID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id=%d", ErrNotFound, referralID)
		}
		return err
	}
	return fmt.Errorf("%w: cannot reward referral %d in status %s", ErrInvalidTransition, referralID, current.Status)
}

// GetReferral fetches a referral by id, mapping a missing row to ErrNotFound.
func (s *Service) GetReferral(ctx context.Context, referralID uint) (*models.Referral, error) {
	_ = ctx
	ref, err := s.repo.GetByID(referralID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrNotFound, referralID)
		}
		return nil, err
	}
	return ref, nil
}

// CheckRewardLimits enforces the lifetime and rolling-30-day reward caps for
// a referrer. Conversion still completes when a cap is hit; only the reward
// is blocked.
func (s *Service) CheckRewardLimits(ctx context.Context, referrerID uint) (bool, string, error) {
	_ = ctx
	now := s.nowFn()

	total, err := s.repo.CountRewardedByReferrer(referrerID)
	if err != nil {
		return false, "", err
	}
	if total >= MaxRewardsTotal {
		return false, ReasonMaxTotalReached, nil
	}

	monthly, err := s.repo.CountRewardedByReferrerSince(referrerID, now.Add(-RewardWindow))
	if err != nil {
		return false, "", err
	}
	if monthly >= MaxRewardsPer30Days {
		return false, ReasonMonthlyLimitReached, nil
	}
	return true, "", nil
}

// ExpireBatch sweeps pending referrals older than the expiry age, at most
// ExpireBatchSize per call, and reports whether more work remains so the
// caller can re-invoke.
func (s *Service) ExpireBatch(ctx context.Context) (int, bool, error) {
	_ = ctx
	cutoff := s.nowFn().Add(-ExpiryAge)

	batch, err := s.repo.ListPendingOlderThan(cutoff, ExpireBatchSize)
	if err != nil {
		return 0, false, err
	}

	expired := 0
	for _, ref := range batch {
		moved, err := s.repo.Transition(ref.ID, models.ReferralStatusPending, models.ReferralStatusExpired, nil)
		if err != nil {
			return expired, true, err
		}
		if moved {
			expired++
		}
	}
	return expired, len(batch) == ExpireBatchSize, nil
}

// HandleConversion is the webhook-driven orchestration: convert the
// referee's referral, then try to reward the referrer. Grant failures are
// handed to the recovery loop and never roll conversion back.
func (s *Service) HandleConversion(ctx context.Context, refereeID uint) (*ConversionOutcome, error) {
	ref, err := s.repo.GetByReferee(refereeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ConversionOutcome{Reason: ReasonNoReferral}, nil
		}
		return nil, err
	}

	res, err := s.Convert(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return &ConversionOutcome{Reason: res.Reason, Referral: ref}, nil
	}
	ref = res.Referral

	allowed, reason, err := s.CheckRewardLimits(ctx, ref.ReferrerID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		log.Infof("[Referral] Reward blocked for referrer %d: %s", ref.ReferrerID, reason)
		return &ConversionOutcome{Converted: true, Reason: reason, Referral: ref}, nil
	}

	now := s.nowFn()
	grant, rewardType, err := s.grantor.GrantFor(ctx, ref.ReferrerID, ref.ID, now)
	if err != nil {
		log.Errorf("[Referral] Reward grant failed for referral %d: %v", ref.ID, err)
		if recErr := s.recorder.RecordFailure(ctx, ref.ID, ref.ReferrerID, rewardType, err); recErr != nil {
			log.Errorf("[Referral] Failed to record reward failure for referral %d: %v", ref.ID, recErr)
		}
		return &ConversionOutcome{Converted: true, Reason: ReasonRewardPendingRetry, Referral: ref}, nil
	}

	if err := s.MarkRewarded(ctx, ref.ID); err != nil {
		// The grant succeeded but the status write did not; the retry loop
		// will re-drive the sequence.
		log.Errorf("[Referral] Reward-mark failed for referral %d after grant: %v", ref.ID, err)
		if recErr := s.recorder.RecordFailure(ctx, ref.ID, ref.ReferrerID, rewardType, err); recErr != nil {
			log.Errorf("[Referral] Failed to record reward failure for referral %d: %v", ref.ID, recErr)
		}
		return &ConversionOutcome{Converted: true, Reason: ReasonRewardPendingRetry, Referral: ref, Grant: grant}, nil
	}

	return &ConversionOutcome{Converted: true, Rewarded: true, Referral: ref, Grant: grant}, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}
