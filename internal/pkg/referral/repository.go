package referral

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/app/repository"
)

// Repository provides the DB operations used by the referral ledger.
type Repository interface {
	Create(ref *models.Referral) error
	GetByID(id uint) (*models.Referral, error)
	GetByReferee(refereeID uint) (*models.Referral, error)
	ListByReferrer(referrerID uint) ([]models.Referral, error)
	FindReferrerByCode(code string) (uint, error)
	CountByCodeSince(code string, since time.Time) (int64, error)
	CountRewardedByReferrer(referrerID uint) (int64, error)
	CountRewardedByReferrerSince(referrerID uint, since time.Time) (int64, error)
	// Transition performs a guarded single-statement state change: the pair
	// must be allowed by the status transition table, and the row is updated
	// only if it still holds the expected from status. Returns whether the
	// row was moved.
	Transition(id uint, from, to models.ReferralStatus, updates map[string]interface{}) (bool, error)
	ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Referral, error)
}

type gormRepository struct {
	db    *gorm.DB
	users repository.UserRepository
}

// NewRepository creates a referral repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, users: repository.NewUserRepository(db)}
}

func (r *gormRepository) Create(ref *models.Referral) error {
	return r.db.Create(ref).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Referral, error) {
	var ref models.Referral
	if err := r.db.First(&ref, id).Error; err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *gormRepository) GetByReferee(refereeID uint) (*models.Referral, error) {
	var ref models.Referral
	if err := r.db.Where("referee_id = ?", refereeID).First(&ref).Error; err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *gormRepository) ListByReferrer(referrerID uint) ([]models.Referral, error) {
	var refs []models.Referral
	err := r.db.Where("referrer_id = ?", referrerID).Find(&refs).Error
	return refs, err
}

func (r *gormRepository) FindReferrerByCode(code string) (uint, error) {
	user, err := r.users.GetByReferralCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return user.ID, nil
}

func (r *gormRepository) CountByCodeSince(code string, since time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&models.Referral{}).
		Where("code = ? AND signed_up_at >= ?", code, since).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) CountRewardedByReferrer(referrerID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Referral{}).
		Where("referrer_id = ? AND status = ?", referrerID, models.ReferralStatusRewarded).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) CountRewardedByReferrerSince(referrerID uint, since time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&models.Referral{}).
		Where("referrer_id = ? AND status = ? AND rewarded_at >= ?", referrerID, models.ReferralStatusRewarded, since).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) Transition(id uint, from, to models.ReferralStatus, updates map[string]interface{}) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	tx := r.db.Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Referral, error) {
	var refs []models.Referral
	err := r.db.Where("status = ? AND signed_up_at < ?", models.ReferralStatusPending, cutoff).
		Order("signed_up_at ASC").
		Limit(limit).
		Find(&refs).Error
	return refs, err
}
