package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/oakbijoux/oakstudio/app/controllers"
	"github.com/oakbijoux/oakstudio/internal/pkg/cache"
	"github.com/oakbijoux/oakstudio/internal/pkg/env"
	"github.com/oakbijoux/oakstudio/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetInt("API_RATE_LIMIT", 60),
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind API key auth
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"message": "pong"})
	})

	v1.Post("/jewelry", controllers.HandleJewelryUpload)
	v1.Get("/jewelry", controllers.HandleListJewelry)
	v1.Delete("/jewelry/:uuid", controllers.HandleDeleteJewelry)

	v1.Post("/generate", controllers.HandleGenerate)
	v1.Get("/generations", controllers.HandleListGenerations)
	v1.Get("/generations/:uuid", controllers.HandleGetGeneration)

	v1.Get("/subscription", controllers.HandleGetSubscription)
	v1.Post("/subscription/checkout", controllers.HandleCreateCheckout)
	v1.Post("/subscription/portal", controllers.HandleCreatePortal)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// newLimiterStorage backs the rate limiter with Redis so limits hold
// across instances. Falls back to in-memory storage when no cache
// client is configured (tests).
func newLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	if cacheClient == nil {
		return nil
	}

	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(cacheClient.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	// Database 1 keeps limiter counters apart from the cache on DB 0.
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: cacheClient.Options().Password,
		Database: 1,
		Reset:    false,
	})
}
