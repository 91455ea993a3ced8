package controllers

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/oakbijoux/oakstudio/internal/pkg/env"
	"github.com/oakbijoux/oakstudio/internal/pkg/studio"
)

// CallbackRequest is the body the workflow engine posts when a generation
// finishes.
type CallbackRequest struct {
	GenerationID     string `json:"generationId"`
	Status           string `json:"status"`
	ResultImageURL   string `json:"resultImageUrl"`
	ErrorMessage     string `json:"errorMessage"`
	ProcessingTimeMs *int64 `json:"processingTimeMs"`
}

// HandleOakCallback finalizes a generation from the workflow engine. The
// shared secret is checked before any request state is touched.
func HandleOakCallback(c *fiber.Ctx) error {
	secret := env.GetEnv("OAK_WEBHOOK_SECRET", "")
	if secret == "" {
		fiberlog.Warn("[Callback] OAK_WEBHOOK_SECRET not set; refusing callbacks")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "callback_not_configured"})
	}
	provided := c.Get(studio.SecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_secret"})
	}

	var req CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid callback body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	err := newStudioService().HandleCallback(ctx, studio.CallbackInput{
		GenerationUUID:   req.GenerationID,
		Status:           req.Status,
		ResultImageURL:   req.ResultImageURL,
		ErrorMessage:     req.ErrorMessage,
		ProcessingTimeMs: req.ProcessingTimeMs,
	})
	if err != nil {
		switch {
		case errors.Is(err, studio.ErrInvalidCallback):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_callback", "message": "Missing or invalid callback fields"})
		case errors.Is(err, studio.ErrGenerationNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Generation not found"})
		case errors.Is(err, studio.ErrDuplicateCallback):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_finalized", "message": "Generation already finalized"})
		default:
			fiberlog.Errorf("[Callback] Failed to process callback for %s: %v", req.GenerationID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	return c.JSON(fiber.Map{"success": true})
}
