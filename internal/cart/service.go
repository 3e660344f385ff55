package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type serviceLoader interface {
	GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error)
}

// Service exposes the client-facing cart operations. Totals are always
// recomputed server-side from the item snapshots.
type Service interface {
	Get(ctx context.Context, clientID uuid.UUID) (*CartDTO, error)
	AddService(ctx context.Context, clientID, serviceID uuid.UUID) (*CartDTO, error)
	RemoveService(ctx context.Context, clientID, serviceID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, clientID uuid.UUID) error
}

// CartDTO is the client-facing cart view.
type CartDTO struct {
	ID         uuid.UUID     `json:"id"`
	ClientID   uuid.UUID     `json:"client_id"`
	TotalCents int           `json:"total_cents"`
	Items      []CartItemDTO `json:"items"`
}

// CartItemDTO is one line of the cart with its price snapshot.
type CartItemDTO struct {
	ID         uuid.UUID `json:"id"`
	ServiceID  uuid.UUID `json:"service_id"`
	PriceCents int       `json:"price_cents"`
}

type service struct {
	repo     Repository
	services serviceLoader
}

// NewService builds the cart service.
func NewService(repo Repository, services serviceLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if services == nil {
		return nil, fmt.Errorf("service loader required")
	}
	return &service{repo: repo, services: services}, nil
}

func (s *service) Get(ctx context.Context, clientID uuid.UUID) (*CartDTO, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	record, err := s.repo.FindOrCreateByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return toCartDTO(record), nil
}

func (s *service) AddService(ctx context.Context, clientID, serviceID uuid.UUID) (*CartDTO, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if serviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service id required")
	}

	catalogEntry, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !catalogEntry.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "service is no longer offered")
	}

	record, err := s.repo.FindOrCreateByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	item := &models.CartItem{
		ID:         uuid.New(),
		CartID:     record.ID,
		ServiceID:  serviceID,
		PriceCents: catalogEntry.PriceCents,
	}
	if err := s.repo.AddItem(ctx, item); err != nil {
		return nil, err
	}
	if err := s.repo.RecalculateTotal(ctx, record.ID); err != nil {
		return nil, err
	}
	return s.reload(ctx, clientID)
}

func (s *service) RemoveService(ctx context.Context, clientID, serviceID uuid.UUID) (*CartDTO, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if serviceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service id required")
	}

	record, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, err
	}

	removed, err := s.repo.RemoveItems(ctx, record.ID, serviceID)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not in cart")
	}
	if err := s.repo.RecalculateTotal(ctx, record.ID); err != nil {
		return nil, err
	}
	return s.reload(ctx, clientID)
}

func (s *service) Clear(ctx context.Context, clientID uuid.UUID) error {
	if clientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	record, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.repo.Clear(ctx, record.ID)
}

func (s *service) reload(ctx context.Context, clientID uuid.UUID) (*CartDTO, error) {
	record, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return toCartDTO(record), nil
}

func toCartDTO(record *models.CartRecord) *CartDTO {
	dto := &CartDTO{
		ID:         record.ID,
		ClientID:   record.ClientID,
		TotalCents: record.TotalCents,
		Items:      make([]CartItemDTO, 0, len(record.Items)),
	}
	for _, item := range record.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			ID:         item.ID,
			ServiceID:  item.ServiceID,
			PriceCents: item.PriceCents,
		})
	}
	return dto
}
