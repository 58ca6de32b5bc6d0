package billing

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Resonant-Projects/parkpick/app/models"
	"github.com/Resonant-Projects/parkpick/app/repository"
)

// Repository provides the DB operations webhook reconciliation needs.
type Repository interface {
	GetUserByAuthSubject(subject string) (*models.User, error)
	CreateUser(user *models.User) error
	UpsertEntitlement(sub *NormalizedSubscription) (*models.Entitlement, error)
	CreateWebhookEventIfNew(event *models.BillingWebhookEvent) (bool, error)
	MarkWebhookEventProcessed(provider, providerEventID, processingError string) error
}

type gormRepository struct {
	db    *gorm.DB
	users repository.UserRepository
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, users: repository.NewUserRepository(db)}
}

func (r *gormRepository) GetUserByAuthSubject(subject string) (*models.User, error) {
	user, err := r.users.GetByAuthSubject(subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (r *gormRepository) CreateUser(user *models.User) error {
	return r.users.Create(user)
}

// UpsertEntitlement writes the provider-reported state onto the user's single
// entitlement row, creating it on first contact.
func (r *gormRepository) UpsertEntitlement(sub *NormalizedSubscription) (*models.Entitlement, error) {
	ent := models.Entitlement{
		UserID:                 sub.UserID,
		Tier:                   sub.Tier,
		Status:                 sub.Status,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		PeriodStart:            sub.PeriodStart,
		PeriodEnd:              sub.PeriodEnd,
		IsTrial:                sub.IsTrial,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tier", "status", "provider_subscription_id",
			"period_start", "period_end", "is_trial", "updated_at",
		}),
	}).Create(&ent).Error
	if err != nil {
		return nil, err
	}

	var saved models.Entitlement
	if err := r.db.Where("user_id = ?", sub.UserID).First(&saved).Error; err != nil {
		return nil, err
	}
	return &saved, nil
}

// CreateWebhookEventIfNew records a delivery, returning false when the same
// (provider, event id) pair was already seen.
func (r *gormRepository) CreateWebhookEventIfNew(event *models.BillingWebhookEvent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) MarkWebhookEventProcessed(provider, providerEventID, processingError string) error {
	return r.db.Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Updates(map[string]interface{}{
			"processed_at":     gorm.Expr("CURRENT_TIMESTAMP"),
			"processing_error": processingError,
		}).Error
}
