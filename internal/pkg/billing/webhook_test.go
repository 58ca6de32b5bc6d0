package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/Resonant-Projects/parkpick/app/models"
)

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in        string
		wantState string
		wantTrial bool
	}{
		{"active", models.EntitlementStatusActive, false},
		{"Active", models.EntitlementStatusActive, false},
		{"trialing", models.EntitlementStatusActive, true},
		{"free_trial", models.EntitlementStatusActive, true},
		{"past_due", models.EntitlementStatusPastDue, false},
		{"unpaid", models.EntitlementStatusPastDue, false},
		{"canceled", models.EntitlementStatusCanceled, false},
		{"cancelled", models.EntitlementStatusCanceled, false},
		{"ended", models.EntitlementStatusCanceled, false},
		{"expired", models.EntitlementStatusCanceled, false},
		{"incomplete", models.EntitlementStatusIncomplete, false},
		{"something_new", models.EntitlementStatusIncomplete, false},
		{"", models.EntitlementStatusIncomplete, false},
	}
	for _, c := range cases {
		gotState, gotTrial := MapProviderStatus(c.in)
		if gotState != c.wantState || gotTrial != c.wantTrial {
			t.Errorf("MapProviderStatus(%q) = (%q, %v), want (%q, %v)",
				c.in, gotState, gotTrial, c.wantState, c.wantTrial)
		}
	}
}

func TestPlanSlugToTier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"premium", models.TierPremium},
		{"premium_monthly", models.TierPremium},
		{"premium_yearly", models.TierPremium},
		{"Premium", models.TierPremium},
		{"free", models.TierFree},
		{"free_user", models.TierFree},
		{"", models.TierFree},
	}
	for _, c := range cases {
		if got := PlanSlugToTier(c.in); got != c.want {
			t.Errorf("PlanSlugToTier(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseWebhookEventSubscription(t *testing.T) {
	payload := []byte(`{
		"id": "evt_123",
		"type": "subscription.updated",
		"data": {
			"id": "sub_456",
			"status": "active",
			"payer": {"user_id": "user_789"},
			"items": [
				{"plan": {"slug": "free_user"}, "status": "active"},
				{"plan": {"slug": "premium"}, "status": "active"}
			],
			"current_period_start": 1748736000000,
			"current_period_end": 1751328000000
		}
	}`)

	event, err := ParseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("ParseWebhookEvent returned error: %v", err)
	}
	if event.Type != EventSubscriptionUpdated {
		t.Errorf("event type = %q, want %q", event.Type, EventSubscriptionUpdated)
	}
	if event.EventID != "evt_123" {
		t.Errorf("event id = %q, want evt_123", event.EventID)
	}
	if event.Subscription == nil {
		t.Fatal("subscription payload not set")
	}
	if event.SubscriptionItem != nil {
		t.Error("subscription item payload must not be set for subscription events")
	}
	sub := event.Subscription
	if sub.SubjectID != "user_789" {
		t.Errorf("subject id = %q, want user_789", sub.SubjectID)
	}
	if sub.SubscriptionID != "sub_456" {
		t.Errorf("subscription id = %q, want sub_456", sub.SubscriptionID)
	}
	// The paid plan wins over the free-plan item.
	if sub.PlanSlug != "premium" {
		t.Errorf("plan slug = %q, want premium", sub.PlanSlug)
	}
	if sub.PeriodStart == nil || sub.PeriodEnd == nil {
		t.Fatal("period boundaries not parsed")
	}
	if !sub.PeriodEnd.After(*sub.PeriodStart) {
		t.Error("period end must be after period start")
	}
}

func TestParseWebhookEventSubscriptionItem(t *testing.T) {
	payload := []byte(`{
		"id": "evt_321",
		"type": "subscriptionItem.canceled",
		"data": {
			"id": "si_1",
			"status": "canceled",
			"subscription": {"id": "sub_456"},
			"payer": {"user_id": "user_789"},
			"plan": {"slug": "premium"},
			"period_start": 1748736000000,
			"period_end": 1751328000000
		}
	}`)

	event, err := ParseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("ParseWebhookEvent returned error: %v", err)
	}
	if event.Type != EventSubscriptionItemCanceled {
		t.Errorf("event type = %q, want %q", event.Type, EventSubscriptionItemCanceled)
	}
	if event.SubscriptionItem == nil {
		t.Fatal("subscription item payload not set")
	}
	if event.Subscription != nil {
		t.Error("subscription payload must not be set for item events")
	}
	if event.SubscriptionItem.ItemID != "si_1" {
		t.Errorf("item id = %q, want si_1", event.SubscriptionItem.ItemID)
	}
}

func TestParseWebhookEventRejectsUnknownType(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "type": "invoice.created", "data": {}}`)
	if _, err := ParseWebhookEvent(payload); err == nil {
		t.Fatal("expected error for unsupported event type")
	}
}

func TestParseWebhookEventRejectsMissingFields(t *testing.T) {
	cases := []string{
		`{"type": "subscription.updated", "data": {"status": "active", "payer": {"user_id": "u"}}}`,
		`{"type": "subscription.updated", "data": {"id": "sub_1", "status": "active"}}`,
		`{"data": {}}`,
		`not json`,
	}
	for _, payload := range cases {
		if _, err := ParseWebhookEvent([]byte(payload)); err == nil {
			t.Errorf("expected error for payload %s", payload)
		}
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"type":"subscription.updated"}`)
	secret := "whsec_test"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	validSig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyWebhookSignature(payload, validSig, secret) {
		t.Error("valid signature rejected")
	}
	if VerifyWebhookSignature(payload, validSig, "other_secret") {
		t.Error("signature accepted with wrong secret")
	}
	if VerifyWebhookSignature([]byte("tampered"), validSig, secret) {
		t.Error("signature accepted for tampered payload")
	}
	if VerifyWebhookSignature(payload, "", secret) {
		t.Error("empty signature accepted")
	}
	if VerifyWebhookSignature(payload, validSig, "") {
		t.Error("empty secret accepted")
	}
	if VerifyWebhookSignature(payload, "zz-not-hex", secret) {
		t.Error("non-hex signature accepted")
	}
}
