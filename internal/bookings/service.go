package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/ananthuhari/servicehub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes the legacy booking endpoints. Bookings have no provider
// party, so every operation is gated on the owning client alone.
type Service interface {
	List(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*ListResult, error)
	Get(ctx context.Context, clientID, bookingID uuid.UUID) (*models.Booking, error)
	Cancel(ctx context.Context, clientID, bookingID uuid.UUID) (*models.Booking, error)
}

// ListResult wraps returned bookings and the cursor for the next page.
type ListResult struct {
	Items  []models.Booking `json:"items"`
	Cursor string           `json:"cursor"`
}

type service struct {
	repo Repository
}

// NewService builds the bookings service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}

	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := s.repo.ListByClientID(ctx, clientID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}

	encoded := ""
	if next != nil {
		encoded = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: encoded}, nil
}

func (s *service) Get(ctx context.Context, clientID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.ClientID != clientID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another client")
	}
	return booking, nil
}

func (s *service) Cancel(ctx context.Context, clientID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.Get(ctx, clientID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == enums.BookingStatusCancelled {
		return booking, nil
	}
	if !booking.Status.CanTransitionTo(enums.BookingStatusCancelled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("booking in status %s cannot be cancelled", booking.Status))
	}

	updated, err := s.repo.UpdateStatus(ctx, bookingID, booking.Status, enums.BookingStatusCancelled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel booking")
	}
	if !updated {
		// Lost the race against a concurrent transition; report the fresh state.
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking changed concurrently, retry")
	}
	return s.load(ctx, bookingID)
}

func (s *service) load(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, err
	}
	return booking, nil
}
