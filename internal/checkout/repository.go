package checkout

import (
	"context"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages the durable settlement markers. The unique constraint on
// (session_ref, client_id) is the correctness backstop for concurrent settles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.CheckoutSettlement) error
	FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) (*models.CheckoutSettlement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.CheckoutSettlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) (*models.CheckoutSettlement, error) {
	var settlement models.CheckoutSettlement
	if err := r.db.WithContext(ctx).
		First(&settlement, "session_ref = ? AND client_id = ?", sessionRef, clientID).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}
