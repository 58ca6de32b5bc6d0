package billing

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

// ApplyResult reports what a webhook event did to the local entitlement.
type ApplyResult struct {
	Entitlement *models.Entitlement
	UserID      uint
	// BecamePayingPremium is true when the event left the user with an
	// active, non-trial premium entitlement. The referral pipeline keys
	// conversion attempts off this.
	BecamePayingPremium bool
}

// Service reconciles provider webhook events into local entitlement rows.
type Service struct {
	repo Repository
}

// NewService creates the billing reconciliation service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordDelivery persists a webhook delivery for idempotency and audit.
// Returns false when this delivery was already recorded.
func (s *Service) RecordDelivery(ctx context.Context, in WebhookEventInput) (bool, error) {
	_ = ctx
	return s.repo.CreateWebhookEventIfNew(&models.BillingWebhookEvent{
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	})
}

// MarkDeliveryProcessed stamps a recorded delivery with its outcome.
func (s *Service) MarkDeliveryProcessed(ctx context.Context, providerEventID string, processingErr error) error {
	_ = ctx
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	return s.repo.MarkWebhookEventProcessed(Provider, providerEventID, msg)
}

// ApplyEvent maps a parsed webhook event onto the user's entitlement row.
// Subjects without a local user get one seeded first: the provider may bill
// accounts that never signed in here, and their entitlements must not be lost.
func (s *Service) ApplyEvent(ctx context.Context, event *WebhookEvent) (*ApplyResult, error) {
	sub, err := s.normalize(event)
	if err != nil {
		return nil, err
	}

	ent, err := s.repo.UpsertEntitlement(sub)
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Entitlement synced: user=%d tier=%s status=%s trial=%v",
		sub.UserID, ent.Tier, ent.Status, ent.IsTrial)

	return &ApplyResult{
		Entitlement: ent,
		UserID:      sub.UserID,
		BecamePayingPremium: ent.Tier == models.TierPremium &&
			ent.Status == models.EntitlementStatusActive &&
			!ent.IsTrial,
	}, nil
}

func (s *Service) normalize(event *WebhookEvent) (*NormalizedSubscription, error) {
	var subjectID, subscriptionID, providerStatus, planSlug string
	var periodStart, periodEnd *time.Time

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		p := event.Subscription
		subjectID, subscriptionID, providerStatus, planSlug = p.SubjectID, p.SubscriptionID, p.Status, p.PlanSlug
		periodStart, periodEnd = p.PeriodStart, p.PeriodEnd
	case EventSubscriptionItemActive:
		p := event.SubscriptionItem
		subjectID, subscriptionID, providerStatus, planSlug = p.SubjectID, p.SubscriptionID, p.Status, p.PlanSlug
		periodStart, periodEnd = p.PeriodStart, p.PeriodEnd
	case EventSubscriptionItemCanceled:
		p := event.SubscriptionItem
		subjectID, subscriptionID, planSlug = p.SubjectID, p.SubscriptionID, p.PlanSlug
		providerStatus = "canceled"
		periodStart, periodEnd = p.PeriodStart, p.PeriodEnd
	default:
		return nil, fmt.Errorf("unsupported webhook event type: %s", event.Type)
	}

	user, err := s.repo.GetUserByAuthSubject(subjectID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.seedUser(subjectID)
		if err != nil {
			return nil, err
		}
	}

	status, isTrial := MapProviderStatus(providerStatus)
	return &NormalizedSubscription{
		UserID:                 user.ID,
		ProviderSubscriptionID: subscriptionID,
		Tier:                   PlanSlugToTier(planSlug),
		Status:                 status,
		PeriodStart:            periodStart,
		PeriodEnd:              periodEnd,
		IsTrial:                isTrial,
	}, nil
}

// seededUserName is the placeholder profile name until the subject's first
// real login fills it in.
const seededUserName = "New Member"

// seedUser creates a local account for a subject the provider bills before it
// ever signed in here. The row is flagged Seeded so the login flow knows the
// profile is a placeholder.
func (s *Service) seedUser(subjectID string) (*models.User, error) {
	user, err := models.CreateUser(subjectID, seededUserName, "")
	if err != nil {
		return nil, fmt.Errorf("seed user for subject %s: %w", subjectID, err)
	}
	user.Seeded = true

	if err := s.repo.CreateUser(user); err != nil {
		// A concurrent delivery for the same subject seeded the row first.
		if isDuplicateKey(err) {
			existing, lookupErr := s.repo.GetUserByAuthSubject(subjectID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("seed user for subject %s: %w", subjectID, err)
	}

	log.Infof("[Billing] Seeded user %d for subject %s", user.ID, subjectID)
	return user, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}
