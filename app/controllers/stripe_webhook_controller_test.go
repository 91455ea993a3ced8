package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/internal/pkg/billing"
)

type stubEventRepo struct {
	nextID uint
	events map[string]*models.BillingWebhookEvent
}

func (s *stubEventRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := s.events[key]; ok {
		return false, existing, nil
	}
	s.nextID++
	event.ID = s.nextID
	s.events[key] = event
	return true, event, nil
}

func (s *stubEventRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range s.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func setupWebhookStub(t *testing.T, sub *models.Subscription) (*stubEventRepo, *stubSubRepo) {
	t.Helper()
	events := &stubEventRepo{events: map[string]*models.BillingWebhookEvent{}}
	subs := &stubSubRepo{sub: sub}

	original := newBillingService
	newBillingService = func() *billing.Service {
		return billing.NewService(events, subs, nil)
	}
	t.Cleanup(func() { newBillingService = original })
	return events, subs
}

func webhookApp() *fiber.App {
	app := fiber.New()
	app.Post("/webhooks/stripe", HandleStripeWebhook)
	return app
}

func signedStripeRequest(t *testing.T, payload, secret string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	sig := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", sig)
	return req
}

func TestHandleStripeWebhookInvalidSignature(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	events, _ := setupWebhookStub(t, nil)
	app := webhookApp()

	payload := `{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(payload)))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// rejected before any write: nothing is persisted
	assert.Empty(t, events.events)
}

func TestHandleStripeWebhookInvoicePaid(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	customer := "cus_1"
	_, subs := setupWebhookStub(t, &models.Subscription{
		ID: 1, UserID: 7, StripeCustomerID: &customer,
		Tier: "creator", MonthlyCredits: 45, CreditsUsed: 45,
		Status: models.SubscriptionStatusPastDue,
	})
	app := webhookApp()

	payload := `{"id":"evt_2","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_1","period_start":1700000000,"period_end":1702592000}}}`
	resp, err := app.Test(signedStripeRequest(t, payload, "whsec_test"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, 0, subs.sub.CreditsUsed)
	assert.Equal(t, models.SubscriptionStatusActive, subs.sub.Status)
}

func TestHandleStripeWebhookDuplicateDelivery(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	customer := "cus_1"
	_, subs := setupWebhookStub(t, &models.Subscription{
		ID: 1, UserID: 7, StripeCustomerID: &customer,
		Tier: "creator", MonthlyCredits: 45, CreditsUsed: 0,
		Status: models.SubscriptionStatusActive,
	})
	app := webhookApp()

	payload := `{"id":"evt_3","type":"invoice.payment_failed","data":{"object":{"id":"in_2","customer":"cus_1"}}}`
	resp, err := app.Test(signedStripeRequest(t, payload, "whsec_test"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SubscriptionStatusPastDue, subs.sub.Status)

	// redelivery is acknowledged without reprocessing
	subs.sub.Status = models.SubscriptionStatusActive
	resp, err = app.Test(signedStripeRequest(t, payload, "whsec_test"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, models.SubscriptionStatusActive, subs.sub.Status)
}

func TestHandleStripeWebhookUnknownCustomerFails(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	events, _ := setupWebhookStub(t, nil)
	app := webhookApp()

	payload := `{"id":"evt_4","type":"invoice.paid","data":{"object":{"id":"in_3","customer":"cus_unknown"}}}`
	resp, err := app.Test(signedStripeRequest(t, payload, "whsec_test"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	for _, e := range events.events {
		assert.Contains(t, e.ProcessingError, "cus_unknown")
	}
}

func TestHandleStripeWebhookGarbagePayload(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	setupWebhookStub(t, nil)
	app := webhookApp()

	resp, err := app.Test(signedStripeRequest(t, `not json at all`, "whsec_test"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
