package providers

import (
	"context"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for providers and their service catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Provider, error)
	FindService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error)
	FindOwnerOfService(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error)
	ApplyRating(ctx context.Context, providerID uuid.UUID, rating int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a provider repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).First(&provider, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) FindService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.db.WithContext(ctx).First(&service, "id = ?", serviceID).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

func (r *repository) FindOwnerOfService(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).
		Joins("JOIN services ON services.provider_id = providers.id").
		Where("services.id = ?", serviceID).
		First(&provider).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

// ApplyRating folds one new rating into the aggregate. Both expressions read
// the pre-update column values, so the average uses the old count.
func (r *repository) ApplyRating(ctx context.Context, providerID uuid.UUID, rating int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"rating_average": gorm.Expr(
				"(rating_average * rating_count + ?) / (rating_count + 1)", float64(rating),
			),
			"rating_count": gorm.Expr("rating_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
