package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeProviderRepo struct {
	findByIDFn    func(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	findOwnerFn   func(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error)
	applyRatingFn func(ctx context.Context, providerID uuid.UUID, rating int) error
}

func (f *fakeProviderRepo) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeProviderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return &models.Provider{ID: id}, nil
}

func (f *fakeProviderRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Provider, error) {
	return &models.Provider{UserID: userID}, nil
}

func (f *fakeProviderRepo) FindService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error) {
	return &models.Service{ID: serviceID}, nil
}

func (f *fakeProviderRepo) FindOwnerOfService(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error) {
	if f.findOwnerFn != nil {
		return f.findOwnerFn(ctx, serviceID)
	}
	return &models.Provider{ID: uuid.New()}, nil
}

func (f *fakeProviderRepo) ApplyRating(ctx context.Context, providerID uuid.UUID, rating int) error {
	if f.applyRatingFn != nil {
		return f.applyRatingFn(ctx, providerID, rating)
	}
	return nil
}

func TestService_ResolveOwningProviderMissingOwner(t *testing.T) {
	repo := &fakeProviderRepo{
		findOwnerFn: func(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	svc, _ := NewService(repo)

	_, err := svc.ResolveOwningProvider(context.Background(), uuid.New())
	if !errors.Is(err, ErrNoOwningProvider) {
		t.Fatalf("expected ErrNoOwningProvider, got %v", err)
	}
}

func TestService_ResolveOwningProviderPassesThroughFailures(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &fakeProviderRepo{
		findOwnerFn: func(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error) {
			return nil, boom
		},
	}
	svc, _ := NewService(repo)

	_, err := svc.ResolveOwningProvider(context.Background(), uuid.New())
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
}

func TestService_GetByIDMapsNotFound(t *testing.T) {
	repo := &fakeProviderRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	svc, _ := NewService(repo)

	_, err := svc.GetByID(context.Background(), uuid.New())
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_ApplyRatingBounds(t *testing.T) {
	svc, _ := NewService(&fakeProviderRepo{})

	for _, rating := range []int{0, 6, -1} {
		err := svc.ApplyRating(context.Background(), nil, uuid.New(), rating)
		if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("rating %d: expected validation error, got %v", rating, err)
		}
	}
	if err := svc.ApplyRating(context.Background(), nil, uuid.New(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
