package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// Provider is the auth/billing provider identifier used for webhook
// idempotency records.
const Provider = "clerk"

// WebhookEventType discriminates the payload variants the provider sends.
// Subscription events carry the whole subscription; subscription-item events
// carry a single plan item.
type WebhookEventType string

const (
	EventSubscriptionCreated      WebhookEventType = "subscription.created"
	EventSubscriptionUpdated      WebhookEventType = "subscription.updated"
	EventSubscriptionItemActive   WebhookEventType = "subscriptionItem.active"
	EventSubscriptionItemCanceled WebhookEventType = "subscriptionItem.canceled"
)

// SubscriptionPayload is the concrete shape of subscription.* events.
type SubscriptionPayload struct {
	SubjectID      string
	SubscriptionID string
	Status         string
	PlanSlug       string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// SubscriptionItemPayload is the concrete shape of subscriptionItem.* events.
type SubscriptionItemPayload struct {
	SubjectID      string
	SubscriptionID string
	ItemID         string
	Status         string
	PlanSlug       string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// WebhookEvent is the tagged union of payload variants. Exactly one of the
// payload fields is set, selected by Type.
type WebhookEvent struct {
	// EventID is the provider's delivery id, used for idempotency. May be
	// empty when the provider only sends it as a header.
	EventID          string
	Type             WebhookEventType
	Subscription     *SubscriptionPayload
	SubscriptionItem *SubscriptionItemPayload
}

// ParseWebhookEvent decodes a provider delivery into the tagged union. Event
// types outside the union are rejected rather than field-probed.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var envelope struct {
		ID   string          `json:"id"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	eventType := WebhookEventType(strings.TrimSpace(envelope.Type))
	if eventType == "" {
		return nil, errors.New("webhook payload missing event type")
	}

	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		sub, err := parseSubscriptionPayload(envelope.Data)
		if err != nil {
			return nil, err
		}
		return &WebhookEvent{EventID: strings.TrimSpace(envelope.ID), Type: eventType, Subscription: sub}, nil
	case EventSubscriptionItemActive, EventSubscriptionItemCanceled:
		item, err := parseSubscriptionItemPayload(envelope.Data)
		if err != nil {
			return nil, err
		}
		return &WebhookEvent{EventID: strings.TrimSpace(envelope.ID), Type: eventType, SubscriptionItem: item}, nil
	default:
		return nil, fmt.Errorf("unsupported webhook event type: %s", eventType)
	}
}

func parseSubscriptionPayload(data json.RawMessage) (*SubscriptionPayload, error) {
	var raw struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			UserID string `json:"user_id"`
		} `json:"payer"`
		Items []struct {
			Plan struct {
				Slug string `json:"slug"`
			} `json:"plan"`
			Status string `json:"status"`
		} `json:"items"`
		CurrentPeriodStart int64 `json:"current_period_start"`
		CurrentPeriodEnd   int64 `json:"current_period_end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("subscription payload missing id")
	}
	if strings.TrimSpace(raw.Payer.UserID) == "" {
		return nil, errors.New("subscription payload missing payer user id")
	}

	// The paid plan wins over the implicit free-plan item.
	planSlug := ""
	for _, item := range raw.Items {
		slug := strings.TrimSpace(item.Plan.Slug)
		if slug == "" {
			continue
		}
		if planSlug == "" || PlanSlugToTier(slug) == models.TierPremium {
			planSlug = slug
		}
	}

	return &SubscriptionPayload{
		SubjectID:      strings.TrimSpace(raw.Payer.UserID),
		SubscriptionID: strings.TrimSpace(raw.ID),
		Status:         strings.TrimSpace(raw.Status),
		PlanSlug:       planSlug,
		PeriodStart:    msToTime(raw.CurrentPeriodStart),
		PeriodEnd:      msToTime(raw.CurrentPeriodEnd),
	}, nil
}

func parseSubscriptionItemPayload(data json.RawMessage) (*SubscriptionItemPayload, error) {
	var raw struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Subscription struct {
			ID string `json:"id"`
		} `json:"subscription"`
		Payer struct {
			UserID string `json:"user_id"`
		} `json:"payer"`
		Plan struct {
			Slug string `json:"slug"`
		} `json:"plan"`
		PeriodStart int64 `json:"period_start"`
		PeriodEnd   int64 `json:"period_end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("subscription item payload missing id")
	}
	if strings.TrimSpace(raw.Payer.UserID) == "" {
		return nil, errors.New("subscription item payload missing payer user id")
	}

	return &SubscriptionItemPayload{
		SubjectID:      strings.TrimSpace(raw.Payer.UserID),
		SubscriptionID: strings.TrimSpace(raw.Subscription.ID),
		ItemID:         strings.TrimSpace(raw.ID),
		Status:         strings.TrimSpace(raw.Status),
		PlanSlug:       strings.TrimSpace(raw.Plan.Slug),
		PeriodStart:    msToTime(raw.PeriodStart),
		PeriodEnd:      msToTime(raw.PeriodEnd),
	}, nil
}

// MapProviderStatus maps the provider's status vocabulary onto the four
// internal entitlement statuses and the trial flag.
func MapProviderStatus(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.EntitlementStatusActive, false
	case "trialing", "free_trial":
		return models.EntitlementStatusActive, true
	case "past_due", "unpaid":
		return models.EntitlementStatusPastDue, false
	case "canceled", "cancelled", "ended", "expired":
		return models.EntitlementStatusCanceled, false
	default:
		return models.EntitlementStatusIncomplete, false
	}
}

// PlanSlugToTier maps provider plan slugs to the internal tier.
func PlanSlugToTier(slug string) string {
	switch strings.ToLower(strings.TrimSpace(slug)) {
	case "premium", "premium_monthly", "premium_yearly", "premium_annual":
		return models.TierPremium
	default:
		return models.TierFree
	}
}

func msToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
