package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stripe event types this service reacts to. Everything else is persisted
// and acknowledged without processing.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
	EventInvoicePaymentFail  = "invoice.payment_failed"
)

// Event is the outer Stripe webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession is the data.object of checkout.session.completed.
type CheckoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// StripeSubscription is the data.object of customer.subscription.* events
// and the response shape of the subscriptions API.
type StripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Invoice is the data.object of invoice.paid and invoice.payment_failed.
type Invoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
}

// PriceID returns the price of the subscription's first line item.
func (s *StripeSubscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return strings.TrimSpace(s.Items.Data[0].Price.ID)
}

// PeriodBounds converts the unix period fields to time pointers, nil when absent.
func (s *StripeSubscription) PeriodBounds() (*time.Time, *time.Time) {
	return unixPtr(s.CurrentPeriodStart), unixPtr(s.CurrentPeriodEnd)
}

// PeriodBounds converts the invoice period fields to time pointers, nil when absent.
func (i *Invoice) PeriodBounds() (*time.Time, *time.Time) {
	return unixPtr(i.PeriodStart), unixPtr(i.PeriodEnd)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// ParseEvent decodes the webhook envelope and requires an event id and type.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("invalid stripe event payload: %w", err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("stripe event payload missing id")
	}
	if strings.TrimSpace(event.Type) == "" {
		return nil, fmt.Errorf("stripe event payload missing type")
	}
	return &event, nil
}
