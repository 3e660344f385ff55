package cart

import (
	"context"
	"errors"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages the per-client cart and its items. The checkout
// reconciler reuses it inside the settlement transaction via WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByClientID(ctx context.Context, clientID uuid.UUID) (*models.CartRecord, error)
	FindOrCreateByClientID(ctx context.Context, clientID uuid.UUID) (*models.CartRecord, error)
	AddItem(ctx context.Context, item *models.CartItem) error
	RemoveItems(ctx context.Context, cartID, serviceID uuid.UUID) (int64, error)
	RecalculateTotal(ctx context.Context, cartID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByClientID(ctx context.Context, clientID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("cart_items.created_at ASC")
		}).
		First(&record, "client_id = ?", clientID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindOrCreateByClientID(ctx context.Context, clientID uuid.UUID) (*models.CartRecord, error) {
	record, err := r.FindByClientID(ctx, clientID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.CartRecord{ID: uuid.New(), ClientID: clientID}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, err
	}
	return created, nil
}

func (r *repository) AddItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) RemoveItems(ctx context.Context, cartID, serviceID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("cart_id = ? AND service_id = ?", cartID, serviceID).
		Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}

func (r *repository) RecalculateTotal(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id = ?", cartID).
		Update("total_cents", gorm.Expr(
			"(SELECT COALESCE(SUM(price_cents), 0) FROM cart_items WHERE cart_id = ?)", cartID,
		)).Error
}

func (r *repository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id = ?", cartID).
		Update("total_cents", 0).Error
}
