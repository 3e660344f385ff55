package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/pkg/enums"
)

// Notification stores in-app notification payloads for clients and providers.
type Notification struct {
	ID            uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID   uuid.UUID              `gorm:"type:uuid;not null;index"`
	RecipientRole enums.ActorRole        `gorm:"type:text;not null"`
	Type          enums.NotificationType `gorm:"type:text;not null"`
	Title         string                 `gorm:"type:text;not null"`
	Message       string                 `gorm:"type:text;not null"`
	RelatedID     *uuid.UUID             `gorm:"type:uuid"`
	ReadAt        *time.Time             `gorm:"type:timestamptz"`
	CreatedAt     time.Time              `gorm:"type:timestamptz;default:now()"`
}
