package ledger

import (
	"context"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository mutates the per-provider earnings columns. Every mutation is a
// single UPDATE so concurrent settlements never lose increments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreditPending(ctx context.Context, providerID uuid.UUID, amountCents int) error
	SettleToPaid(ctx context.Context, providerID uuid.UUID, amountCents int) error
	ReversePending(ctx context.Context, providerID uuid.UUID, amountCents int) error
	ReverseSettled(ctx context.Context, providerID uuid.UUID, amountCents int) error
	Earnings(ctx context.Context, providerID uuid.UUID) (*models.Provider, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreditPending(ctx context.Context, providerID uuid.UUID, amountCents int) error {
	return r.update(ctx, providerID, map[string]any{
		"earnings_pending_cents": gorm.Expr("earnings_pending_cents + ?", amountCents),
	})
}

func (r *repository) SettleToPaid(ctx context.Context, providerID uuid.UUID, amountCents int) error {
	return r.update(ctx, providerID, map[string]any{
		"earnings_pending_cents": clampedDecrement("earnings_pending_cents", amountCents),
		"earnings_paid_cents":    gorm.Expr("earnings_paid_cents + ?", amountCents),
		"earnings_total_cents":   gorm.Expr("earnings_total_cents + ?", amountCents),
	})
}

func (r *repository) ReversePending(ctx context.Context, providerID uuid.UUID, amountCents int) error {
	return r.update(ctx, providerID, map[string]any{
		"earnings_pending_cents": clampedDecrement("earnings_pending_cents", amountCents),
	})
}

func (r *repository) ReverseSettled(ctx context.Context, providerID uuid.UUID, amountCents int) error {
	return r.update(ctx, providerID, map[string]any{
		"earnings_paid_cents":  clampedDecrement("earnings_paid_cents", amountCents),
		"earnings_total_cents": clampedDecrement("earnings_total_cents", amountCents),
	})
}

func (r *repository) Earnings(ctx context.Context, providerID uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).
		Select("id", "earnings_pending_cents", "earnings_paid_cents", "earnings_total_cents").
		First(&provider, "id = ?", providerID).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) update(ctx context.Context, providerID uuid.UUID, assignments map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", providerID).
		Updates(assignments)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// clampedDecrement subtracts without letting the column go negative. CASE is
// used instead of GREATEST so the expression also runs on the sqlite driver
// used in tests.
func clampedDecrement(column string, amountCents int) any {
	return gorm.Expr(
		"CASE WHEN "+column+" >= ? THEN "+column+" - ? ELSE 0 END",
		amountCents, amountCents,
	)
}
