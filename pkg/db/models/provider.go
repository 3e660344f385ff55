package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
)

// Provider is a vetted business offering services on the platform. The three
// earnings columns form the per-provider ledger: total == paid at all times,
// pending never drops below zero.
type Provider struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	BusinessName string    `gorm:"column:business_name;type:text;not null"`
	Bio          string    `gorm:"column:bio;type:text;not null;default:''"`

	Address      *types.Address           `gorm:"column:address;type:jsonb;serializer:json"`
	Verification enums.VerificationStatus `gorm:"column:verification_status;type:text;not null;default:'pending'"`
	IsAvailable  bool                     `gorm:"column:is_available;not null;default:true"`
	IsActive     bool                     `gorm:"column:is_active;not null;default:true"`

	EarningsPendingCents int `gorm:"column:earnings_pending_cents;not null;default:0"`
	EarningsPaidCents    int `gorm:"column:earnings_paid_cents;not null;default:0"`
	EarningsTotalCents   int `gorm:"column:earnings_total_cents;not null;default:0"`

	RatingAverage float64 `gorm:"column:rating_average;not null;default:0"`
	RatingCount   int     `gorm:"column:rating_count;not null;default:0"`

	Services []Service `gorm:"foreignKey:ProviderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
