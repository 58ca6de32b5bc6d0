package repository

import (
	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByAuthSubject(subject string) (*models.User, error)
	GetByReferralCode(code string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Count() (int64, error)
}

// ParkRepository defines the interface for park-related database operations
type ParkRepository interface {
	Create(park *models.Park) error
	GetByID(id uint) (*models.Park, error)
	ListByUserID(userID uint) ([]models.Park, error)
	Update(park *models.Park) error
	Delete(id uint) error
	CountByUserID(userID uint) (int64, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	User UserRepository
	Park ParkRepository
}

// NewRepositories creates all repositories sharing one DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
		Park: NewParkRepository(db),
	}
}
