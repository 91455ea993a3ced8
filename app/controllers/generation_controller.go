package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/cache"
	"github.com/oakbijoux/oakstudio/internal/pkg/studio"
	"github.com/oakbijoux/oakstudio/internal/pkg/usercontext"
)

var validate = validator.New()

// newStudioService is a seam for tests; production wiring uses the global
// repository factory and the env-configured workflow client.
var newStudioService = func() *studio.Service {
	return studio.NewServiceFromRepos(repository.GetGlobalRepositories())
}

// GenerateRequest is the body of POST /api/v1/generate.
type GenerateRequest struct {
	JewelryID   string `json:"jewelryId" validate:"required,uuid4"`
	JewelryType string `json:"jewelryType" validate:"omitempty,oneof=ring necklace earring bracelet set"`
	PromptModel string `json:"promptModel" validate:"required,max=1000"`
	PromptDecor string `json:"promptDecor" validate:"required,max=1000"`
}

// HandleGenerate debits one credit and dispatches a generation to the
// workflow engine.
// Security: API Key required via router middleware
func HandleGenerate(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing or invalid parameters"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	result, err := newStudioService().RequestGeneration(ctx, user.UserID, studio.GenerateInput{
		JewelryUUID: req.JewelryID,
		PromptModel: req.PromptModel,
		PromptDecor: req.PromptDecor,
		JewelryType: req.JewelryType,
	})
	if err != nil {
		switch {
		case errors.Is(err, studio.ErrSubscriptionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		case errors.Is(err, studio.ErrCreditsExhausted):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "credits_exhausted", "message": "Credits exhausted. Upgrade your plan to continue."})
		case errors.Is(err, studio.ErrJewelryNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Jewelry upload not found"})
		case errors.Is(err, studio.ErrDispatchFailed):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "dispatch_failed", "message": "Workflow engine unavailable, credit refunded"})
		default:
			fiberlog.Errorf("[API] Generation request failed for user %d: %v", user.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to start generation"})
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"generationId":  result.GenerationUUID,
		"status":        result.Status,
		"estimatedTime": result.EstimatedTime,
	})
}

// HandleGetGeneration returns the state of one generation.
// Security: API Key required via router middleware
func HandleGetGeneration(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	uuid := c.Params("uuid")
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "uuid missing"})
	}

	// Terminal generations never change again, so they are served from cache.
	cacheKey := "generation_status:" + uuid
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		var payload map[string]interface{}
		if json.Unmarshal([]byte(cached), &payload) == nil {
			if owner, ok := payload["_owner"].(float64); ok && uint(owner) == user.UserID {
				delete(payload, "_owner")
				return c.JSON(payload)
			}
		}
	}

	genRepo := repository.GetGlobalFactory().GetGenerationRepository()
	generation, err := genRepo.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Generation not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load generation"})
	}
	if generation.UserID != user.UserID {
		// Do not leak existence
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Generation not found"})
	}

	payload := generationResponse(generation)
	if generation.IsTerminal() {
		cached := make(fiber.Map, len(payload)+1)
		for k, v := range payload {
			cached[k] = v
		}
		cached["_owner"] = generation.UserID
		if data, err := json.Marshal(cached); err == nil {
			if err := cache.Set(cacheKey, string(data), time.Hour); err != nil {
				fiberlog.Warnf("[API] Failed to cache generation %s: %v", uuid, err)
			}
		}
	}
	return c.JSON(payload)
}

// HandleListGenerations returns the user's generations, newest first.
// Security: API Key required via router middleware
func HandleListGenerations(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	offset, limit := parsePagination(c)
	genRepo := repository.GetGlobalFactory().GetGenerationRepository()

	generations, err := genRepo.ListByUserID(user.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to list generations"})
	}
	total, err := genRepo.CountByUserID(user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count generations"})
	}

	items := make([]fiber.Map, 0, len(generations))
	for i := range generations {
		items = append(items, generationResponse(&generations[i]))
	}
	return c.JSON(fiber.Map{"generations": items, "total": total})
}

func generationResponse(g *models.Generation) fiber.Map {
	return fiber.Map{
		"generationId":     g.UUID,
		"status":           g.Status,
		"resultImageUrl":   g.ResultImageURL,
		"errorMessage":     g.ErrorMessage,
		"promptModel":      g.PromptModel,
		"promptDecor":      g.PromptDecor,
		"hasWatermark":     g.HasWatermark,
		"resolution":       g.Resolution,
		"processingTimeMs": g.ProcessingTimeMs,
		"createdAt":        g.CreatedAt.UTC().Format(time.RFC3339),
	}
}
