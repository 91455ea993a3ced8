package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/billing"
	"github.com/oakbijoux/oakstudio/internal/pkg/env"
	"github.com/oakbijoux/oakstudio/internal/pkg/tiers"
	"github.com/oakbijoux/oakstudio/internal/pkg/usercontext"
)

// newStripeClient is a seam for tests.
var newStripeClient = func() *billing.StripeClient {
	return billing.NewStripeClientFromEnv()
}

// CheckoutRequest is the body of POST /api/v1/subscription/checkout.
type CheckoutRequest struct {
	PriceID string `json:"priceId" validate:"required"`
}

// HandleCreateCheckout starts a Stripe checkout session for a paid tier.
// Security: API Key required via router middleware
func HandleCreateCheckout(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if _, ok := tiers.FromPriceID(req.PriceID); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Unknown price identifier"})
	}

	sub, err := repository.GetGlobalFactory().GetSubscriptionRepository().GetByUserID(user.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}
	customerID := ""
	if sub != nil && sub.StripeCustomerID != nil {
		customerID = *sub.StripeCustomerID
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	base := env.AppURL()
	session, err := newStripeClient().CreateCheckoutSession(ctx, billing.CheckoutParams{
		PriceID:    strings.TrimSpace(req.PriceID),
		CustomerID: customerID,
		UserID:     user.UserID,
		SuccessURL: base + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/billing/cancel",
	})
	if err != nil {
		fiberlog.Errorf("[API] Checkout session creation failed for user %d: %v", user.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "stripe_unavailable", "message": "Failed to create checkout session"})
	}

	return c.JSON(fiber.Map{"url": session.URL})
}

// HandleCreatePortal opens the Stripe billing portal for the user.
// Security: API Key required via router middleware
func HandleCreatePortal(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	sub, err := repository.GetGlobalFactory().GetSubscriptionRepository().GetByUserID(user.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_billing_account", "message": "No billing account linked yet"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	session, err := newStripeClient().CreatePortalSession(ctx, *sub.StripeCustomerID, env.AppURL()+"/account")
	if err != nil {
		fiberlog.Errorf("[API] Portal session creation failed for user %d: %v", user.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "stripe_unavailable", "message": "Failed to create portal session"})
	}

	return c.JSON(fiber.Map{"url": session.URL})
}

// HandleGetSubscription returns the plan and credit state of the caller.
// Security: API Key required via router middleware
func HandleGetSubscription(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	sub, err := repository.GetGlobalFactory().GetSubscriptionRepository().GetByUserID(user.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	cfg := tiers.Resolve(tiers.Tier(sub.Tier))
	return c.JSON(fiber.Map{
		"tier":             sub.Tier,
		"tierName":         cfg.Name,
		"status":           sub.Status,
		"monthlyCredits":   sub.MonthlyCredits,
		"creditsUsed":      sub.CreditsUsed,
		"creditsRemaining": sub.RemainingCredits(),
		"hasWatermark":     cfg.HasWatermark,
		"resolution":       cfg.Resolution,
		"currentPeriodEnd": formatTimePtr(sub.CurrentPeriodEnd),
	})
}
