package requests

import (
	"context"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for service requests. State-machine
// transitions load the row with FindByIDForUpdate so two concurrent actions
// on the same request serialize at the database.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ServiceRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) ([]models.ServiceRequest, error)
	ListByClientID(ctx context.Context, clientID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error)
	ListByProviderID(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error)
	Save(ctx context.Context, request *models.ServiceRequest) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a service-request repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ServiceRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var request models.ServiceRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var request models.ServiceRequest
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) ([]models.ServiceRequest, error) {
	var requests []models.ServiceRequest
	if err := r.db.WithContext(ctx).
		Where("session_ref = ? AND client_id = ?", sessionRef, clientID).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListByClientID(ctx context.Context, clientID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
	return r.list(ctx, "client_id = ?", clientID, limit, cursor)
}

func (r *repository) ListByProviderID(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
	return r.list(ctx, "provider_id = ?", providerID, limit, cursor)
}

func (r *repository) list(ctx context.Context, condition string, party uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
	buffered := pagination.LimitWithBuffer(limit)
	normalized := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).Where(condition, party)
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var requests []models.ServiceRequest
	if err := query.Order("created_at DESC, id DESC").Limit(buffered).Find(&requests).Error; err != nil {
		return nil, nil, err
	}
	if len(requests) > normalized {
		next := requests[normalized]
		requests = requests[:normalized]
		return requests, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return requests, nil, nil
}

func (r *repository) Save(ctx context.Context, request *models.ServiceRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}
