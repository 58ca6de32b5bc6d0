package billing

import "time"

// NormalizedSubscription is the provider-agnostic shape used when syncing
// external subscription state into the local entitlement row. Status here is
// already mapped to the internal vocabulary.
type NormalizedSubscription struct {
	UserID                 uint
	ProviderSubscriptionID string
	Tier                   string
	Status                 string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	IsTrial                bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
