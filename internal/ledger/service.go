package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ananthuhari/servicehub-backend/pkg/config"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service applies earnings movements for a provider. Mutating operations take
// the transaction of the request transition that triggered them; they are
// never called outside one.
type Service interface {
	CreditPending(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error
	SettleToPaid(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error
	ReverseOnRefund(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int, payoutSettled bool) error
	Earnings(ctx context.Context, providerID uuid.UUID) (*EarningsSummary, error)
}

// EarningsSummary is the read-side view of a provider's ledger.
type EarningsSummary struct {
	ProviderID   uuid.UUID `json:"provider_id"`
	PendingCents int       `json:"pending_cents"`
	PaidCents    int       `json:"paid_cents"`
	TotalCents   int       `json:"total_cents"`
}

type service struct {
	repo Repository

	// reverseSettledPayouts switches the post-settlement refund behavior:
	// false reverses only the pending bucket, true also walks back paid and
	// total for payouts that already settled.
	reverseSettledPayouts bool
}

// NewService wires the earnings ledger with the provided repository.
func NewService(repo Repository, cfg config.LedgerConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, reverseSettledPayouts: cfg.ReverseSettledPayouts}, nil
}

func (s *service) CreditPending(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error {
	if err := validateMovement(providerID, amountCents); err != nil {
		return err
	}
	return s.wrapNotFound(s.repo.WithTx(tx).CreditPending(ctx, providerID, amountCents))
}

func (s *service) SettleToPaid(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error {
	if err := validateMovement(providerID, amountCents); err != nil {
		return err
	}
	return s.wrapNotFound(s.repo.WithTx(tx).SettleToPaid(ctx, providerID, amountCents))
}

func (s *service) ReverseOnRefund(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int, payoutSettled bool) error {
	if err := validateMovement(providerID, amountCents); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	if payoutSettled && s.reverseSettledPayouts {
		return s.wrapNotFound(repo.ReverseSettled(ctx, providerID, amountCents))
	}
	return s.wrapNotFound(repo.ReversePending(ctx, providerID, amountCents))
}

func (s *service) Earnings(ctx context.Context, providerID uuid.UUID) (*EarningsSummary, error) {
	if providerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	provider, err := s.repo.Earnings(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, err
	}
	return &EarningsSummary{
		ProviderID:   provider.ID,
		PendingCents: provider.EarningsPendingCents,
		PaidCents:    provider.EarningsPaidCents,
		TotalCents:   provider.EarningsTotalCents,
	}, nil
}

func (s *service) wrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
	}
	return err
}

func validateMovement(providerID uuid.UUID, amountCents int) error {
	if providerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	if amountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	return nil
}
