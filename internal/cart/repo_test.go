package cart

import (
	"context"
	"testing"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	cartRecords := `
CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL UNIQUE,
  total_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	cartItems := `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  service_id TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(cartRecords).Error)
	require.NoError(t, db.Exec(cartItems).Error)
	return db
}

func addItem(t *testing.T, repo Repository, cartID, serviceID uuid.UUID, priceCents int) {
	t.Helper()

	require.NoError(t, repo.AddItem(context.Background(), &models.CartItem{
		ID:         uuid.New(),
		CartID:     cartID,
		ServiceID:  serviceID,
		PriceCents: priceCents,
	}))
}

func TestFindOrCreateByClientIDCreatesOnce(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	clientID := uuid.New()

	first, err := repo.FindOrCreateByClientID(context.Background(), clientID)
	require.NoError(t, err)
	second, err := repo.FindOrCreateByClientID(context.Background(), clientID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestRecalculateTotalSumsSnapshots(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	record, err := repo.FindOrCreateByClientID(context.Background(), uuid.New())
	require.NoError(t, err)

	addItem(t, repo, record.ID, uuid.New(), 500)
	addItem(t, repo, record.ID, uuid.New(), 300)
	require.NoError(t, repo.RecalculateTotal(context.Background(), record.ID))

	reloaded, err := repo.FindByClientID(context.Background(), record.ClientID)
	require.NoError(t, err)
	assert.Equal(t, 800, reloaded.TotalCents)
	assert.Len(t, reloaded.Items, 2)
}

func TestRemoveItemsDeletesEveryLineForService(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	record, err := repo.FindOrCreateByClientID(context.Background(), uuid.New())
	require.NoError(t, err)

	serviceID := uuid.New()
	addItem(t, repo, record.ID, serviceID, 500)
	addItem(t, repo, record.ID, serviceID, 500)
	addItem(t, repo, record.ID, uuid.New(), 300)

	removed, err := repo.RemoveItems(context.Background(), record.ID, serviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	require.NoError(t, repo.RecalculateTotal(context.Background(), record.ID))
	reloaded, err := repo.FindByClientID(context.Background(), record.ClientID)
	require.NoError(t, err)
	assert.Equal(t, 300, reloaded.TotalCents)
}

func TestClearEmptiesItemsAndTotal(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	record, err := repo.FindOrCreateByClientID(context.Background(), uuid.New())
	require.NoError(t, err)

	addItem(t, repo, record.ID, uuid.New(), 500)
	require.NoError(t, repo.RecalculateTotal(context.Background(), record.ID))
	require.NoError(t, repo.Clear(context.Background(), record.ID))

	reloaded, err := repo.FindByClientID(context.Background(), record.ClientID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Items)
	assert.Zero(t, reloaded.TotalCents)
}
