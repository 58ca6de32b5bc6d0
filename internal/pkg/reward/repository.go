package reward

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// Repository provides the DB operations used by the grantor and the retry loop.
type Repository interface {
	GetEntitlementByUser(userID uint) (*models.Entitlement, error)
	GetLatestActiveBonus(userID uint, now time.Time) (*models.BonusGrant, error)
	CreateBonusGrant(grant *models.BonusGrant) error
	CreateRewardGrant(grant *models.RewardGrant) error
	DiscountCodeExists(code string) (bool, error)

	GetPendingFailureByReferral(referralID uint) (*models.FailedReward, error)
	GetFailedReward(id uint) (*models.FailedReward, error)
	CreateFailedReward(rec *models.FailedReward) error
	SaveFailedReward(rec *models.FailedReward) error
	ListPendingFailures() ([]models.FailedReward, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a reward repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetEntitlementByUser(userID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	if err := r.db.Where("user_id = ?", userID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Absence implies the implicit free tier.
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

func (r *gormRepository) CreateBonusGrant(grant *models.BonusGrant) error {
	return r.db.Create(grant).Error
}

func (r *gormRepository) CreateRewardGrant(grant *models.RewardGrant) error {
	return r.db.Create(grant).Error
}

func (r *gormRepository) DiscountCodeExists(code string) (bool, error) {
	var n int64
	err := r.db.Model(&models.RewardGrant{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) GetPendingFailureByReferral(referralID uint) (*models.FailedReward, error) {
	var rec models.FailedReward
	err := r.db.Where("referral_id = ? AND status = ?", referralID, models.FailedRewardStatusPending).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) GetFailedReward(id uint) (*models.FailedReward, error) {
	var rec models.FailedReward
	if err := r.db.First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) CreateFailedReward(rec *models.FailedReward) error {
	return r.db.Create(rec).Error
}

func (r *gormRepository) SaveFailedReward(rec *models.FailedReward) error {
	return r.db.Save(rec).Error
}

func (r *gormRepository) ListPendingFailures() ([]models.FailedReward, error) {
	var recs []models.FailedReward
	err := r.db.Where("status = ?", models.FailedRewardStatusPending).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}
