package repository

import (
	"errors"
	"time"

	"github.com/oakbijoux/oakstudio/app/models"
	"gorm.io/gorm"
)

// generationRepository implements the GenerationRepository interface
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation repository instance
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

// Create creates a new generation record
func (r *generationRepository) Create(generation *models.Generation) error {
	return r.db.Create(generation).Error
}

// GetByUUID retrieves a generation by its public UUID
func (r *generationRepository) GetByUUID(uuid string) (*models.Generation, error) {
	var generation models.Generation
	err := r.db.Where("uuid = ?", uuid).First(&generation).Error
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

// GetByUUIDWithSubscription retrieves a generation together with its owning
// user's subscription; the callback receiver needs both to refund credits.
// A missing subscription is not an error: the generation is returned with a
// nil subscription so the callback can still finalize it.
func (r *generationRepository) GetByUUIDWithSubscription(uuid string) (*models.Generation, *models.Subscription, error) {
	var generation models.Generation
	if err := r.db.Where("uuid = ?", uuid).First(&generation).Error; err != nil {
		return nil, nil, err
	}
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", generation.UserID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &generation, nil, nil
		}
		return &generation, nil, err
	}
	return &generation, &sub, nil
}

// ListByUserID lists a user's generations, newest first
func (r *generationRepository) ListByUserID(userID uint, offset, limit int) ([]models.Generation, error) {
	var generations []models.Generation
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&generations).Error
	return generations, err
}

// CountByUserID counts a user's generations
func (r *generationRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Generation{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// MarkProcessing moves a pending generation to processing after a
// successful dispatch.
func (r *generationRepository) MarkProcessing(id uint) error {
	return r.db.Model(&models.Generation{}).
		Where("id = ? AND status = ?", id, models.GenerationStatusPending).
		Update("status", models.GenerationStatusProcessing).Error
}

// nonTerminalStatuses guards the finalizing updates: like the credit
// ledger, a terminal transition is one conditional statement, so two
// racing writers cannot both win.
var nonTerminalStatuses = []string{models.GenerationStatusPending, models.GenerationStatusProcessing}

// MarkCompleted finalizes a generation with its result image. Returns
// false when the row was already terminal.
func (r *generationRepository) MarkCompleted(id uint, resultImageURL string, processingTimeMs *int64) (bool, error) {
	updates := map[string]interface{}{
		"status":           models.GenerationStatusCompleted,
		"result_image_url": resultImageURL,
	}
	if processingTimeMs != nil {
		updates["processing_time_ms"] = processingTimeMs
	}
	result := r.db.Model(&models.Generation{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// MarkFailed finalizes a generation with an error message. Returns false
// when the row was already terminal.
func (r *generationRepository) MarkFailed(id uint, errorMessage string, processingTimeMs *int64) (bool, error) {
	updates := map[string]interface{}{
		"status":        models.GenerationStatusFailed,
		"error_message": errorMessage,
	}
	if processingTimeMs != nil {
		updates["processing_time_ms"] = processingTimeMs
	}
	result := r.db.Model(&models.Generation{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// ListStaleProcessing returns generations stuck in processing since before
// the cutoff, oldest first.
func (r *generationRepository) ListStaleProcessing(cutoff time.Time, limit int) ([]models.Generation, error) {
	var generations []models.Generation
	err := r.db.Where("status = ? AND updated_at < ?", models.GenerationStatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&generations).Error
	return generations, err
}
