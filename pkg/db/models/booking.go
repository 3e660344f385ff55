package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/pkg/enums"
)

// Booking is the legacy provider-less record kept for backward compatibility.
// Its lifecycle is a strict subset of the service-request lifecycle.
type Booking struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID  uuid.UUID `gorm:"column:client_id;type:uuid;not null"`
	ServiceID uuid.UUID `gorm:"column:service_id;type:uuid;not null"`

	BookingDate   time.Time           `gorm:"column:booking_date;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	TotalCents    int                 `gorm:"column:total_cents;not null"`
	Status        enums.BookingStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	SessionRef *string `gorm:"column:session_ref;type:text"`
	PaymentRef *string `gorm:"column:payment_ref;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
