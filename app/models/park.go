package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Park is one entry in a user's park list.
type Park struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Name      string         `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=1,max=200"`
	PlaceRef  string         `gorm:"type:varchar(191);default:''" json:"place_ref" validate:"max=191"`
	Notes     string         `gorm:"type:text" json:"notes" validate:"max=2000"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Park) Validate() error {
	v := validator.New()

	return v.Struct(p)
}
