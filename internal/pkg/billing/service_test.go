package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/internal/pkg/tiers"
)

type fakeEventRepo struct {
	nextID uint
	events map[string]*models.BillingWebhookEvent
}

func (f *fakeEventRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := f.events[key]; ok {
		return false, existing, nil
	}
	f.nextID++
	event.ID = f.nextID
	f.events[key] = event
	return true, event, nil
}

func (f *fakeEventRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range f.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeSubRepo struct {
	sub     *models.Subscription
	updates int
	resets  int
}

func (f *fakeSubRepo) Create(sub *models.Subscription) error { f.sub = sub; return nil }

func (f *fakeSubRepo) GetByUserID(userID uint) (*models.Subscription, error) {
	if f.sub != nil && f.sub.UserID == userID {
		return f.sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubRepo) GetByStripeCustomerID(customerID string) (*models.Subscription, error) {
	if f.sub != nil && f.sub.StripeCustomerID != nil && *f.sub.StripeCustomerID == customerID {
		return f.sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubRepo) Update(sub *models.Subscription) error {
	f.sub = sub
	f.updates++
	return nil
}

func (f *fakeSubRepo) DebitCredit(subscriptionID uint) (bool, error) {
	if f.sub.CreditsUsed >= f.sub.MonthlyCredits {
		return false, nil
	}
	f.sub.CreditsUsed++
	return true, nil
}

func (f *fakeSubRepo) RefundCredit(subscriptionID uint) (bool, error) {
	if f.sub.CreditsUsed <= 0 {
		return false, nil
	}
	f.sub.CreditsUsed--
	return true, nil
}

func (f *fakeSubRepo) ResetCredits(subscriptionID uint, periodStart, periodEnd *time.Time) error {
	f.resets++
	f.sub.CreditsUsed = 0
	f.sub.CurrentPeriodStart = periodStart
	f.sub.CurrentPeriodEnd = periodEnd
	return nil
}

type fakeFetcher struct {
	sub *StripeSubscription
	err error
}

func (f *fakeFetcher) GetSubscription(ctx context.Context, subscriptionID string) (*StripeSubscription, error) {
	return f.sub, f.err
}

func setupCatalog(t *testing.T) {
	t.Helper()
	t.Setenv("STRIPE_PRICE_CREATOR_MONTHLY", "price_creator_m")
	t.Setenv("STRIPE_PRICE_AGENCY_MONTHLY", "price_agency_m")
	tiers.Setup()
	t.Cleanup(tiers.Setup)
}

func eventOf(t *testing.T, eventType string, object interface{}) *Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload := fmt.Sprintf(`{"id":"evt_test","type":%q,"data":{"object":%s}}`, eventType, raw)
	event, err := ParseEvent([]byte(payload))
	require.NoError(t, err)
	return event
}

func stripeSub(priceID, status string, periodStart, periodEnd int64) *StripeSubscription {
	raw := fmt.Sprintf(
		`{"id":"sub_stripe_1","customer":"cus_1","status":%q,"current_period_start":%d,"current_period_end":%d,"items":{"data":[{"price":{"id":%q}}]}}`,
		status, periodStart, periodEnd, priceID,
	)
	var s StripeSubscription
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		panic(err)
	}
	return &s
}

func TestHandleCheckoutCompleted(t *testing.T) {
	setupCatalog(t)

	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3, Tier: "discovery", MonthlyCredits: 1, CreditsUsed: 1, Status: models.SubscriptionStatusActive}}
	fetcher := &fakeFetcher{sub: stripeSub("price_creator_m", "active", 1700000000, 1702592000)}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, fetcher)

	event := eventOf(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_test_1",
		"customer":     "cus_1",
		"subscription": "sub_stripe_1",
		"metadata":     map[string]string{"userId": "3"},
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	sub := subs.sub
	require.NotNil(t, sub.StripeCustomerID)
	assert.Equal(t, "cus_1", *sub.StripeCustomerID)
	require.NotNil(t, sub.StripeSubscriptionID)
	assert.Equal(t, "sub_stripe_1", *sub.StripeSubscriptionID)
	assert.Equal(t, "creator", sub.Tier)
	assert.Equal(t, 45, sub.MonthlyCredits)
	assert.Equal(t, 0, sub.CreditsUsed)
	require.NotNil(t, sub.CurrentPeriodEnd)
}

func TestHandleCheckoutCompletedUnknownPriceSkips(t *testing.T) {
	setupCatalog(t)

	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3, Tier: "discovery", MonthlyCredits: 1, CreditsUsed: 1, Status: models.SubscriptionStatusActive}}
	fetcher := &fakeFetcher{sub: stripeSub("price_not_in_catalog", "active", 1700000000, 1702592000)}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, fetcher)

	event := eventOf(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_test_3",
		"customer":     "cus_1",
		"subscription": "sub_stripe_1",
		"metadata":     map[string]string{"userId": "3"},
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	// no free refill, no row write
	assert.Zero(t, subs.updates)
	assert.Zero(t, subs.resets)
	assert.Equal(t, "discovery", subs.sub.Tier)
	assert.Equal(t, 1, subs.sub.CreditsUsed)
}

func TestHandleCheckoutCompletedBadMetadata(t *testing.T) {
	setupCatalog(t)
	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3}}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, &fakeFetcher{})

	event := eventOf(t, EventCheckoutCompleted, map[string]interface{}{
		"id":       "cs_test_2",
		"customer": "cus_1",
		"metadata": map[string]string{},
	})
	assert.Error(t, svc.HandleEvent(context.Background(), event))
}

func TestHandleSubscriptionUpdated(t *testing.T) {
	setupCatalog(t)

	customer := "cus_1"
	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3, StripeCustomerID: &customer, Tier: "creator", MonthlyCredits: 45, CreditsUsed: 12, Status: models.SubscriptionStatusActive}}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, nil)

	event := eventOf(t, EventSubscriptionUpdated, stripeSub("price_agency_m", "active", 1700000000, 1702592000))
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Equal(t, "agency", subs.sub.Tier)
	assert.Equal(t, tiers.AgencyCredits, subs.sub.MonthlyCredits)
	// a mid-period plan change does not reset consumed credits
	assert.Equal(t, 12, subs.sub.CreditsUsed)
}

func TestHandleSubscriptionDeleted(t *testing.T) {
	setupCatalog(t)

	customer := "cus_1"
	stripeID := "sub_stripe_1"
	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3, StripeCustomerID: &customer, StripeSubscriptionID: &stripeID, Tier: "creator", MonthlyCredits: 45, CreditsUsed: 30, Status: models.SubscriptionStatusActive}}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, nil)

	event := eventOf(t, EventSubscriptionDeleted, stripeSub("price_creator_m", "canceled", 0, 0))
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	sub := subs.sub
	assert.Equal(t, "discovery", sub.Tier)
	assert.Equal(t, 1, sub.MonthlyCredits)
	assert.Equal(t, 0, sub.CreditsUsed)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Nil(t, sub.StripeSubscriptionID)
}

func TestHandleInvoicePaidResetsCredits(t *testing.T) {
	setupCatalog(t)

	customer := "cus_1"
	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3, StripeCustomerID: &customer, Tier: "creator", MonthlyCredits: 45, CreditsUsed: 45, Status: models.SubscriptionStatusPastDue}}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, nil)

	event := eventOf(t, EventInvoicePaid, Invoice{ID: "in_1", Customer: "cus_1", PeriodStart: 1700000000, PeriodEnd: 1702592000})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	sub := subs.sub
	assert.Equal(t, 0, sub.CreditsUsed)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodStart)
	assert.Equal(t, int64(1700000000), sub.CurrentPeriodStart.Unix())
}

func TestHandleInvoicePaymentFailed(t *testing.T) {
	setupCatalog(t)

	customer := "cus_1"
	subs := &fakeSubRepo{sub: &models.Subscription{ID: 10, UserID: 3, StripeCustomerID: &customer, Tier: "creator", MonthlyCredits: 45, CreditsUsed: 5, Status: models.SubscriptionStatusActive}}
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, subs, nil)

	event := eventOf(t, EventInvoicePaymentFail, Invoice{ID: "in_2", Customer: "cus_1"})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Equal(t, models.SubscriptionStatusPastDue, subs.sub.Status)
	// dunning does not touch the ledger
	assert.Equal(t, 5, subs.sub.CreditsUsed)
}

func TestHandleEventUnknownCustomer(t *testing.T) {
	setupCatalog(t)
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, &fakeSubRepo{}, nil)

	event := eventOf(t, EventInvoicePaid, Invoice{ID: "in_3", Customer: "cus_unknown"})
	assert.Error(t, svc.HandleEvent(context.Background(), event))
}

func TestHandleEventIgnoresUnknownType(t *testing.T) {
	svc := NewService(&fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}, &fakeSubRepo{}, nil)

	event := eventOf(t, "payment_intent.succeeded", map[string]string{"id": "pi_1"})
	assert.NoError(t, svc.HandleEvent(context.Background(), event))
}

func TestRecordWebhookEventIdempotent(t *testing.T) {
	repo := &fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}
	svc := NewService(repo, &fakeSubRepo{}, nil)

	in := WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       EventInvoicePaid,
		PayloadJSON:     `{"id":"evt_1"}`,
		SignatureValid:  true,
	}

	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, stored)

	created, again, err := svc.RecordWebhookEvent(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
}

func TestRecordWebhookEventHashFallback(t *testing.T) {
	repo := &fakeEventRepo{events: map[string]*models.BillingWebhookEvent{}}
	svc := NewService(repo, &fakeSubRepo{}, nil)

	created, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		EventType:   "unknown",
		PayloadJSON: `{"no":"id"}`,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, stored.ProviderEventID, "hash:")
}

func TestParseEvent(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"type":"invoice.paid"}`))
	assert.Error(t, err)

	event, err := ParseEvent([]byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventInvoicePaid, event.Type)
}
