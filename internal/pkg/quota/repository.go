package quota

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// Repository provides the DB operations the entitlement gate needs.
type Repository interface {
	GetEntitlementByUser(userID uint) (*models.Entitlement, error)
	GetLatestActiveBonus(userID uint, now time.Time) (*models.BonusGrant, error)
	CountParksByUser(userID uint) (int, error)
	GetPickCount(userID uint, day string) (int, error)
	IncrementPickCount(userID uint, day string) error
	CreatePick(pick *models.Pick) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a quota repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetEntitlementByUser(userID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	if err := r.db.Where("user_id = ?", userID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

func (r *gormRepository) GetLatestActiveBonus(userID uint, now time.Time) (*models.BonusGrant, error) {
	var bonus models.BonusGrant
	err := r.db.Where("user_id = ? AND ends_at > ?", userID, now).
		Order("ends_at DESC").
		First(&bonus).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bonus, nil
}

func (r *gormRepository) CountParksByUser(userID uint) (int, error) {
	var n int64
	err := r.db.Model(&models.Park{}).Where("user_id = ?", userID).Count(&n).Error
	return int(n), err
}

func (r *gormRepository) GetPickCount(userID uint, day string) (int, error) {
	var counter models.PickCounter
	err := r.db.Where("user_id = ? AND day = ?", userID, day).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return counter.Count, nil
}

// IncrementPickCount bumps the per-day counter atomically: insert with
// count=1, or count=count+1 when the row already exists. Two concurrent
// picks both land on the same row.
func (r *gormRepository) IncrementPickCount(userID uint, day string) error {
	counter := models.PickCounter{UserID: userID, Day: day, Count: 1}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1")}),
	}).Create(&counter).Error
}

func (r *gormRepository) CreatePick(pick *models.Pick) error {
	return r.db.Create(pick).Error
}
