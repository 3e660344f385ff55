package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutSettlement is the durable idempotency anchor for settle: exactly one
// row may exist per (session_ref, client_id) pair, enforced by a unique index.
// The row is inserted in the same transaction as the bookings and requests it
// covers, so a concurrent duplicate settle either observes it or fails the
// insert and re-reads.
type CheckoutSettlement struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionRef string    `gorm:"column:session_ref;type:text;not null;uniqueIndex:idx_settlements_session_client"`
	ClientID   uuid.UUID `gorm:"column:client_id;type:uuid;not null;uniqueIndex:idx_settlements_session_client"`
	LineCount  int       `gorm:"column:line_count;not null"`
	TotalCents int       `gorm:"column:total_cents;not null"`
	SettledAt  time.Time `gorm:"column:settled_at;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
