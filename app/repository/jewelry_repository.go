package repository

import (
	"github.com/oakbijoux/oakstudio/app/models"
	"gorm.io/gorm"
)

// jewelryRepository implements the JewelryRepository interface
type jewelryRepository struct {
	db *gorm.DB
}

// NewJewelryRepository creates a new jewelry repository instance
func NewJewelryRepository(db *gorm.DB) JewelryRepository {
	return &jewelryRepository{db: db}
}

// Create creates a new jewelry upload record
func (r *jewelryRepository) Create(jewelry *models.JewelryUpload) error {
	return r.db.Create(jewelry).Error
}

// GetByID retrieves a jewelry upload by its ID
func (r *jewelryRepository) GetByID(id uint) (*models.JewelryUpload, error) {
	var jewelry models.JewelryUpload
	err := r.db.First(&jewelry, id).Error
	if err != nil {
		return nil, err
	}
	return &jewelry, nil
}

// GetByUUID retrieves a jewelry upload by its public UUID
func (r *jewelryRepository) GetByUUID(uuid string) (*models.JewelryUpload, error) {
	var jewelry models.JewelryUpload
	err := r.db.Where("uuid = ?", uuid).First(&jewelry).Error
	if err != nil {
		return nil, err
	}
	return &jewelry, nil
}

// GetByUUIDAndUserID retrieves a jewelry upload only if it is owned by the user
func (r *jewelryRepository) GetByUUIDAndUserID(uuid string, userID uint) (*models.JewelryUpload, error) {
	var jewelry models.JewelryUpload
	err := r.db.Where("uuid = ? AND user_id = ?", uuid, userID).First(&jewelry).Error
	if err != nil {
		return nil, err
	}
	return &jewelry, nil
}

// ListByUserID lists a user's uploads, newest first
func (r *jewelryRepository) ListByUserID(userID uint, offset, limit int) ([]models.JewelryUpload, error) {
	var uploads []models.JewelryUpload
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&uploads).Error
	return uploads, err
}

// CountByUserID counts a user's uploads
func (r *jewelryRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.JewelryUpload{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// DeleteByID removes a jewelry upload row
func (r *jewelryRepository) DeleteByID(id uint) error {
	return r.db.Delete(&models.JewelryUpload{}, id).Error
}
