package repository

import (
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// parkRepository implements the ParkRepository interface
type parkRepository struct {
	db *gorm.DB
}

// NewParkRepository creates a new park repository instance
func NewParkRepository(db *gorm.DB) ParkRepository {
	return &parkRepository{db: db}
}

// Create creates a new park in the database
func (r *parkRepository) Create(park *models.Park) error {
	return r.db.Create(park).Error
}

// GetByID retrieves a park by its ID
func (r *parkRepository) GetByID(id uint) (*models.Park, error) {
	var park models.Park
	if err := r.db.First(&park, id).Error; err != nil {
		return nil, err
	}
	return &park, nil
}

// ListByUserID returns all parks on a user's list, oldest first
func (r *parkRepository) ListByUserID(userID uint) ([]models.Park, error) {
	var parks []models.Park
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&parks).Error
	return parks, err
}

// Update persists changes to an existing park
func (r *parkRepository) Update(park *models.Park) error {
	return r.db.Save(park).Error
}

// Delete removes a park by its ID
func (r *parkRepository) Delete(id uint) error {
	return r.db.Delete(&models.Park{}, id).Error
}

// CountByUserID returns how many parks a user has
func (r *parkRepository) CountByUserID(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Park{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
