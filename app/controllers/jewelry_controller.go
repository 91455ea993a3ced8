package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/jobqueue"
	"github.com/oakbijoux/oakstudio/internal/pkg/storage"
	"github.com/oakbijoux/oakstudio/internal/pkg/upload"
	"github.com/oakbijoux/oakstudio/internal/pkg/usercontext"
)

var (
	jewelryStorage     *storage.Client
	jewelryStorageErr  error
	jewelryStorageOnce sync.Once
)

// getJewelryStorage is a seam for tests; production wiring loads the
// env-configured S3 client once.
var getJewelryStorage = func() (*storage.Client, error) {
	jewelryStorageOnce.Do(func() {
		cfg, err := storage.LoadConfig()
		if err != nil {
			jewelryStorageErr = err
			return
		}
		jewelryStorage, jewelryStorageErr = storage.NewClient(cfg)
	})
	return jewelryStorage, jewelryStorageErr
}

// HandleJewelryUpload stores a product photo and its preview in S3 and
// records the upload.
// Security: API Key required via router middleware
func HandleJewelryUpload(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	jewelryType := strings.TrimSpace(c.FormValue("jewelryType"))
	if !models.IsValidJewelryType(jewelryType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid or missing jewelryType"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Image file missing"})
	}
	if err := upload.ValidateSize(fileHeader.Size); err != nil {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "file_too_large", "message": err.Error()})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read upload"})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxJewelryBytes+1))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read upload"})
	}
	if int64(len(data)) > upload.MaxJewelryBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "file_too_large", "message": upload.ErrFileTooLarge.Error()})
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	mime, err := upload.ValidateImageBySniff(fileHeader.Filename, head)
	if err != nil {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": "unsupported_image", "message": err.Error()})
	}

	client, err := getJewelryStorage()
	if err != nil {
		fiberlog.Errorf("[API] Storage unavailable: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage_unavailable", "message": "Object storage is not configured"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	id := uuid.New().String()
	objectKey := jewelryObjectKey(user.UserID, id, fileHeader.Filename)
	publicURL, err := client.Upload(ctx, objectKey, mime, bytes.NewReader(data))
	if err != nil {
		fiberlog.Errorf("[API] Jewelry upload to S3 failed for user %d: %v", user.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store image"})
	}

	// The preview is best effort; the original is the source of truth.
	previewURL := ""
	if previewData, err := storage.BuildPreview(data); err == nil {
		previewKey := jewelryPreviewKey(user.UserID, id)
		if url, err := client.Upload(ctx, previewKey, "image/jpeg", bytes.NewReader(previewData)); err == nil {
			previewURL = url
		} else {
			fiberlog.Warnf("[API] Preview upload failed for jewelry %s: %v", id, err)
		}
	} else {
		fiberlog.Warnf("[API] Preview build failed for jewelry %s: %v", id, err)
	}

	jewelry := &models.JewelryUpload{
		UUID:             id,
		UserID:           user.UserID,
		StoragePath:      objectKey,
		PublicURL:        publicURL,
		PreviewURL:       previewURL,
		JewelryType:      jewelryType,
		OriginalFilename: fileHeader.Filename,
		FileSize:         int64(len(data)),
	}
	if err := repository.GetGlobalFactory().GetJewelryRepository().Create(jewelry); err != nil {
		fiberlog.Errorf("[API] Failed to record jewelry upload for user %d: %v", user.UserID, err)
		// Orphaned objects are collected by the cleanup job.
		enqueueJewelryCleanup(0, id, objectKey, jewelryPreviewKey(user.UserID, id))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record upload"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          jewelry.UUID,
		"publicUrl":   jewelry.PublicURL,
		"previewUrl":  jewelry.PreviewURL,
		"jewelryType": jewelry.JewelryType,
	})
}

// HandleListJewelry returns the user's uploads, newest first.
// Security: API Key required via router middleware
func HandleListJewelry(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	offset, limit := parsePagination(c)
	repo := repository.GetGlobalFactory().GetJewelryRepository()

	uploads, err := repo.ListByUserID(user.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to list uploads"})
	}
	total, err := repo.CountByUserID(user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count uploads"})
	}

	items := make([]fiber.Map, 0, len(uploads))
	for i := range uploads {
		j := &uploads[i]
		items = append(items, fiber.Map{
			"id":          j.UUID,
			"publicUrl":   j.PublicURL,
			"previewUrl":  j.PreviewURL,
			"jewelryType": j.JewelryType,
			"filename":    j.OriginalFilename,
			"createdAt":   j.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"jewelry": items, "total": total})
}

// HandleDeleteJewelry schedules removal of an upload and its stored objects.
// Security: API Key required via router middleware
func HandleDeleteJewelry(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return unauthorized(c)
	}

	uuid := c.Params("uuid")
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "uuid missing"})
	}

	repo := repository.GetGlobalFactory().GetJewelryRepository()
	jewelry, err := repo.GetByUUIDAndUserID(uuid, user.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Jewelry upload not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load upload"})
	}

	previewKey := ""
	if jewelry.PreviewURL != "" {
		previewKey = jewelryPreviewKey(jewelry.UserID, jewelry.UUID)
	}
	enqueueJewelryCleanup(jewelry.ID, jewelry.UUID, jewelry.StoragePath, previewKey)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func enqueueJewelryCleanup(id uint, uuid, objectKey, previewKey string) {
	payload := jobqueue.JewelryCleanupJobPayload{
		JewelryID:   id,
		JewelryUUID: uuid,
		ObjectKey:   objectKey,
		PreviewKey:  previewKey,
	}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeJewelryCleanup, payload.ToMap()); err != nil {
		fiberlog.Errorf("[API] Failed to enqueue cleanup for jewelry %s: %v", uuid, err)
	}
}

func jewelryObjectKey(userID uint, id, filename string) string {
	return path.Join("jewelry", fmt.Sprintf("%d", userID), id+upload.NormalizedExt(filename))
}

func jewelryPreviewKey(userID uint, id string) string {
	return path.Join("jewelry", fmt.Sprintf("%d", userID), "previews", id+".jpg")
}
