package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/billing"
	"github.com/oakbijoux/oakstudio/internal/pkg/database"
	"github.com/oakbijoux/oakstudio/internal/pkg/env"
)

// newBillingService is a seam for tests.
var newBillingService = func() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB(), repository.GetGlobalFactory().GetSubscriptionRepository())
}

// HandleStripeWebhook verifies, persists and applies Stripe billing events.
// An invalid signature is rejected before anything is written; only
// verified events are stored, so a redelivery is acknowledged without being
// applied twice.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if !billing.VerifyStripeWebhookSignature(rawBody, signature, secret, billing.DefaultSignatureTolerance) {
		fiberlog.Warnf("[StripeWebhook] Rejected request with invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event, parseErr := billing.ParseEvent(rawBody)
	eventID := ""
	eventType := ""
	if parseErr == nil {
		eventID = event.ID
		eventType = event.Type
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		fiberlog.Errorf("[StripeWebhook] Failed to persist event %s: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	handleErr := svc.HandleEvent(ctx, event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, handleErr)
	if handleErr != nil {
		// A non-2xx makes Stripe redeliver; the stored event with its
		// processing error keeps the retry idempotent.
		fiberlog.Errorf("[StripeWebhook] Failed to process event %s (%s): %v", event.ID, event.Type, handleErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
