package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNoOwningProvider reports a service with no provider attached. Checkout
// treats this as a booking-only line rather than a failure.
var ErrNoOwningProvider = errors.New("service has no owning provider")

// Service exposes provider lookups shared by checkout and the request
// lifecycle. All paths resolving a service to its provider go through
// ResolveOwningProvider.
type Service interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Provider, error)
	GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error)
	ResolveOwningProvider(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error)
	ApplyRating(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, rating int) error
}

type service struct {
	repo Repository
}

// NewService builds a provider service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("provider repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	provider, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "provider not found")
	}
	return provider, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Provider, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	provider, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err, "provider not found for user")
	}
	return provider, nil
}

func (s *service) GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error) {
	if serviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service id required")
	}
	svc, err := s.repo.FindService(ctx, serviceID)
	if err != nil {
		return nil, mapLookupError(err, "service not found")
	}
	return svc, nil
}

func (s *service) ResolveOwningProvider(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error) {
	if serviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service id required")
	}
	provider, err := s.repo.FindOwnerOfService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoOwningProvider
		}
		return nil, err
	}
	return provider, nil
}

func (s *service) ApplyRating(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, rating int) error {
	if providerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	if rating < 1 || rating > 5 {
		return pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	if err := s.repo.WithTx(tx).ApplyRating(ctx, providerID, rating); err != nil {
		return mapLookupError(err, "provider not found")
	}
	return nil
}

func mapLookupError(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return err
}
