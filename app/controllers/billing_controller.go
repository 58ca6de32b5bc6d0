package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Resonant-Projects/parkpick/internal/pkg/billing"
	"github.com/Resonant-Projects/parkpick/internal/pkg/env"
)

// HandleBillingWebhook receives provider subscription events, records them
// for idempotency, syncs the entitlement row, and feeds conversions into the
// referral pipeline. Referral failures never fail the webhook: the provider
// must not retry a delivery whose entitlement write already landed.
func HandleBillingWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	secret := env.GetEnv("BILLING_WEBHOOK_SECRET", "")
	signature := c.Get("X-Webhook-Signature")
	if !billing.VerifyWebhookSignature(payload, signature, secret) {
		log.Warnf("[Billing] Webhook rejected: invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid webhook signature"})
	}

	event, err := billing.ParseWebhookEvent(payload)
	if err != nil {
		log.Warnf("[Billing] Webhook rejected: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Unparseable webhook payload"})
	}

	eventID := event.EventID
	if eventID == "" {
		eventID = strings.TrimSpace(c.Get("Webhook-Id"))
	}
	if eventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing webhook event id"})
	}

	fresh, err := BillingService().RecordDelivery(c.Context(), billing.WebhookEventInput{
		Provider:        billing.Provider,
		ProviderEventID: eventID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Billing] Failed to record webhook delivery %s: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record delivery"})
	}
	if !fresh {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "duplicate"})
	}

	result, err := BillingService().ApplyEvent(c.Context(), event)
	if err != nil {
		log.Errorf("[Billing] Failed to apply webhook event %s: %v", eventID, err)
		if markErr := BillingService().MarkDeliveryProcessed(c.Context(), eventID, err); markErr != nil {
			log.Errorf("[Billing] Failed to mark delivery %s: %v", eventID, markErr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to apply event"})
	}

	if result != nil && result.BecamePayingPremium {
		outcome, convErr := ReferralService().HandleConversion(c.Context(), result.UserID)
		if convErr != nil {
			log.Errorf("[Billing] Referral conversion failed for user %d: %v", result.UserID, convErr)
		} else if outcome.Converted {
			log.Infof("[Billing] Referral conversion for user %d: rewarded=%v reason=%s",
				result.UserID, outcome.Rewarded, outcome.Reason)
		}
	}

	if err := BillingService().MarkDeliveryProcessed(c.Context(), eventID, nil); err != nil {
		log.Errorf("[Billing] Failed to mark delivery %s processed: %v", eventID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "processed"})
}
