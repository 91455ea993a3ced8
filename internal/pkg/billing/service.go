package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/tiers"
)

// SubscriptionFetcher is the slice of the Stripe API the webhook handler
// needs; checkout sessions only carry a subscription id, not its items.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*StripeSubscription, error)
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Service synchronizes Stripe subscription state into the local plan and
// credit ledger.
type Service struct {
	repo   Repository
	subs   repository.SubscriptionRepository
	stripe SubscriptionFetcher
}

// NewService creates a billing service from injected dependencies.
func NewService(repo Repository, subs repository.SubscriptionRepository, stripe SubscriptionFetcher) *Service {
	return &Service{repo: repo, subs: subs, stripe: stripe}
}

// NewServiceFromDB creates a billing service from a GORM handle and the
// env-configured Stripe client.
func NewServiceFromDB(db *gorm.DB, subs repository.SubscriptionRepository) *Service {
	return NewService(NewRepository(db), subs, NewStripeClientFromEnv())
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleEvent applies one verified Stripe event to the local subscription.
// Unhandled event types are ignored without error.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case EventInvoicePaymentFail:
		return s.handleInvoicePaymentFailed(ctx, event)
	default:
		log.Infof("[Billing] Ignoring stripe event %s of type %s", event.ID, event.Type)
		return nil
	}
}

// handleCheckoutCompleted links the Stripe customer to the local account via
// the userId the checkout session carried in its metadata, then pulls the
// purchased subscription to set the plan and open a fresh credit period.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("invalid checkout session payload: %w", err)
	}

	userID, err := userIDFromMetadata(session.Metadata)
	if err != nil {
		return fmt.Errorf("checkout session %s: %w", session.ID, err)
	}

	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("checkout session %s references unknown user %d", session.ID, userID)
		}
		return err
	}

	if customer := strings.TrimSpace(session.Customer); customer != "" {
		sub.StripeCustomerID = &customer
	}

	if subscriptionID := strings.TrimSpace(session.Subscription); subscriptionID != "" && s.stripe != nil {
		remote, err := s.stripe.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("failed to fetch stripe subscription %s: %w", subscriptionID, err)
		}
		// An unrecognized price must not grant anything: leave the row and
		// its credit counter untouched.
		if _, ok := tiers.FromPriceID(remote.PriceID()); !ok {
			log.Warnf("[Billing] Checkout session %s carries unknown price id %q, skipping", session.ID, remote.PriceID())
			return nil
		}
		applyRemoteSubscription(sub, remote)
	}

	if err := s.subs.Update(sub); err != nil {
		return err
	}

	// A completed checkout opens a new paid period with an untouched allotment.
	if err := s.subs.ResetCredits(sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd); err != nil {
		return err
	}

	log.Infof("[Billing] Checkout completed for user %d: tier=%s", userID, sub.Tier)
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	_ = ctx
	var remote StripeSubscription
	if err := json.Unmarshal(event.Data.Object, &remote); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}

	sub, err := s.lookupByCustomer(remote.Customer)
	if err != nil {
		return err
	}

	applyRemoteSubscription(sub, &remote)
	if err := s.subs.Update(sub); err != nil {
		return err
	}

	log.Infof("[Billing] Subscription updated for user %d: tier=%s status=%s", sub.UserID, sub.Tier, sub.Status)
	return nil
}

// handleSubscriptionDeleted drops the account back to the free tier with a
// fresh single-credit allotment.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	_ = ctx
	var remote StripeSubscription
	if err := json.Unmarshal(event.Data.Object, &remote); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}

	sub, err := s.lookupByCustomer(remote.Customer)
	if err != nil {
		return err
	}

	free := tiers.Resolve(tiers.TierDiscovery)
	sub.Tier = string(free.Tier)
	sub.MonthlyCredits = free.MonthlyCredits
	sub.Status = models.SubscriptionStatusCanceled
	sub.StripeSubscriptionID = nil
	sub.CurrentPeriodStart = nil
	sub.CurrentPeriodEnd = nil
	if err := s.subs.Update(sub); err != nil {
		return err
	}
	if err := s.subs.ResetCredits(sub.ID, nil, nil); err != nil {
		return err
	}

	log.Infof("[Billing] Subscription deleted for user %d: downgraded to %s", sub.UserID, free.Tier)
	return nil
}

// handleInvoicePaid starts a new billing period: the credit counter is
// zeroed and the period bounds refreshed from the invoice.
func (s *Service) handleInvoicePaid(ctx context.Context, event *Event) error {
	_ = ctx
	var invoice Invoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return fmt.Errorf("invalid invoice payload: %w", err)
	}

	sub, err := s.lookupByCustomer(invoice.Customer)
	if err != nil {
		return err
	}

	if sub.Status != models.SubscriptionStatusActive {
		sub.Status = models.SubscriptionStatusActive
		if err := s.subs.Update(sub); err != nil {
			return err
		}
	}

	periodStart, periodEnd := invoice.PeriodBounds()
	if err := s.subs.ResetCredits(sub.ID, periodStart, periodEnd); err != nil {
		return err
	}

	log.Infof("[Billing] Invoice %s paid for user %d: credits reset", invoice.ID, sub.UserID)
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *Event) error {
	_ = ctx
	var invoice Invoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return fmt.Errorf("invalid invoice payload: %w", err)
	}

	sub, err := s.lookupByCustomer(invoice.Customer)
	if err != nil {
		return err
	}

	sub.Status = models.SubscriptionStatusPastDue
	if err := s.subs.Update(sub); err != nil {
		return err
	}

	log.Warnf("[Billing] Invoice %s payment failed for user %d: marked past_due", invoice.ID, sub.UserID)
	return nil
}

func (s *Service) lookupByCustomer(customerID string) (*models.Subscription, error) {
	customer := strings.TrimSpace(customerID)
	if customer == "" {
		return nil, errors.New("stripe payload missing customer id")
	}
	sub, err := s.subs.GetByStripeCustomerID(customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no subscription linked to stripe customer %s", customer)
		}
		return nil, err
	}
	return sub, nil
}

// applyRemoteSubscription copies plan, status and period data from the
// Stripe subscription onto the local row. The credit counter is untouched.
func applyRemoteSubscription(sub *models.Subscription, remote *StripeSubscription) {
	if id := strings.TrimSpace(remote.ID); id != "" {
		sub.StripeSubscriptionID = &id
	}
	if cfg, ok := tiers.FromPriceID(remote.PriceID()); ok {
		sub.Tier = string(cfg.Tier)
		sub.MonthlyCredits = cfg.MonthlyCredits
	} else if remote.PriceID() != "" {
		log.Warnf("[Billing] Unknown stripe price id %s, keeping tier %s", remote.PriceID(), sub.Tier)
	}
	if status := mapStripeStatus(remote.Status); status != "" {
		sub.Status = status
	}
	periodStart, periodEnd := remote.PeriodBounds()
	if periodStart != nil {
		sub.CurrentPeriodStart = periodStart
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = periodEnd
	}
}

func mapStripeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	default:
		return ""
	}
}

func userIDFromMetadata(metadata map[string]string) (uint, error) {
	raw := strings.TrimSpace(metadata["userId"])
	if raw == "" {
		return 0, errors.New("metadata missing userId")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid userId metadata %q", raw)
	}
	return uint(id), nil
}
