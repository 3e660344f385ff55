package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a bookable catalog entry. ProviderID is nullable: a service with
// no owning provider can still be bought, but settlement degrades it to a
// legacy booking with no service request.
type Service struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID  *uuid.UUID `gorm:"column:provider_id;type:uuid;index"`
	Title       string     `gorm:"column:title;type:text;not null"`
	Description string     `gorm:"column:description;type:text;not null;default:''"`
	PriceCents  int        `gorm:"column:price_cents;not null"`
	IsActive    bool       `gorm:"column:is_active;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
