package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oakbijoux/oakstudio/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe REST API with form-encoded requests.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// CheckoutParams describe one hosted checkout session.
type CheckoutParams struct {
	PriceID    string
	CustomerID string
	UserID     uint
	SuccessURL string
	CancelURL  string
}

// CheckoutSessionResponse is the subset of a created session the app needs.
type CheckoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PortalSessionResponse is the subset of a created portal session the app needs.
type PortalSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewStripeClientFromEnv builds a client from STRIPE_SECRET_KEY and an
// optional STRIPE_API_BASE_URL override for tests.
func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetSubscription fetches a subscription by id.
func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*StripeSubscription, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}

	body, err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out StripeSubscription
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("stripe subscription response missing id")
	}
	return &out, nil
}

// CreateCheckoutSession creates a hosted subscription checkout session. The
// user id travels in the session metadata so the completed-checkout webhook
// can link the Stripe customer back to the local account.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSessionResponse, error) {
	if strings.TrimSpace(params.PriceID) == "" {
		return nil, errors.New("price id is required")
	}
	if params.UserID == 0 {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(params.SuccessURL) == "" || strings.TrimSpace(params.CancelURL) == "" {
		return nil, errors.New("success and cancel URLs are required")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", strings.TrimSpace(params.PriceID))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", strings.TrimSpace(params.SuccessURL))
	form.Set("cancel_url", strings.TrimSpace(params.CancelURL))
	form.Set("metadata[userId]", fmt.Sprintf("%d", params.UserID))
	if customer := strings.TrimSpace(params.CustomerID); customer != "" {
		form.Set("customer", customer)
	}

	body, err := c.do(ctx, http.MethodPost, "/checkout/sessions", form)
	if err != nil {
		return nil, err
	}

	var out CheckoutSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("stripe checkout session response missing url")
	}
	return &out, nil
}

// CreatePortalSession creates a customer billing portal session.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSessionResponse, error) {
	customer := strings.TrimSpace(customerID)
	if customer == "" {
		return nil, errors.New("customer id is required")
	}
	if strings.TrimSpace(returnURL) == "" {
		return nil, errors.New("return URL is required")
	}

	form := url.Values{}
	form.Set("customer", customer)
	form.Set("return_url", strings.TrimSpace(returnURL))

	body, err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form)
	if err != nil {
		return nil, err
	}

	var out PortalSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("stripe portal session response missing url")
	}
	return &out, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe request %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(body))
	}
	return body, nil
}
