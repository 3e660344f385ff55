package models

import (
	"time"

	"github.com/google/uuid"
)

// CartRecord is the client-owned staging area converted into bookings and
// service requests at settlement. One active cart per client.
type CartRecord struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID   uuid.UUID  `gorm:"column:client_id;type:uuid;not null;uniqueIndex"`
	TotalCents int        `gorm:"column:total_cents;not null;default:0"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem snapshots a service and its price at add time.
type CartItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID     uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	ServiceID  uuid.UUID `gorm:"column:service_id;type:uuid;not null"`
	PriceCents int       `gorm:"column:price_cents;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
