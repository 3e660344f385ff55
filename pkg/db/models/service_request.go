package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
)

// ServiceRequest is one client's request for one unit of a provider's service.
// TotalCents is immutable once set; payment/payout fields are mutated only by
// the request state machine and the checkout reconciler.
type ServiceRequest struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID   uuid.UUID `gorm:"column:client_id;type:uuid;not null"`
	ProviderID uuid.UUID `gorm:"column:provider_id;type:uuid;not null"`
	ServiceID  uuid.UUID `gorm:"column:service_id;type:uuid;not null"`

	RequestedAt   time.Time      `gorm:"column:requested_at;not null"`
	PreferredDate time.Time      `gorm:"column:preferred_date;not null"`
	PreferredTime string         `gorm:"column:preferred_time;type:text;not null;default:''"`
	Address       *types.Address `gorm:"column:address;type:jsonb;serializer:json"`
	Description   string         `gorm:"column:description;type:text;not null;default:''"`

	TotalCents    int                 `gorm:"column:total_cents;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'online'"`

	Status           enums.RequestStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	ProviderResponse enums.ProviderResponse `gorm:"column:provider_response;type:text;not null;default:'pending'"`
	DeclinedReason   string                 `gorm:"column:declined_reason;type:text;not null;default:''"`
	PaymentStatus    enums.PaymentStatus    `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PayoutStatus     enums.PayoutStatus     `gorm:"column:payout_status;type:text;not null;default:'pending'"`

	SessionRef *string `gorm:"column:session_ref;type:text"`
	PaymentRef *string `gorm:"column:payment_ref;type:text"`

	CompletedAt  *time.Time `gorm:"column:completed_at"`
	ClientRating *int       `gorm:"column:client_rating"`
	ClientReview *string    `gorm:"column:client_review;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
