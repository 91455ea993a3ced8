package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oakbijoux/oakstudio/app/controllers"
)

type WebhookRouter struct {
}

// InstallRouter registers the provider callback endpoints. Both verify
// their caller themselves: the generation callback via the shared
// X-Oak-Secret header, Stripe via its signature header.
func (h WebhookRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/oak-callback", controllers.HandleOakCallback)
	webhooks.Post("/stripe", controllers.HandleStripeWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
