package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSettlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS checkout_settlements (
  id TEXT PRIMARY KEY,
  session_ref TEXT NOT NULL,
  client_id TEXT NOT NULL,
  line_count INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  settled_at DATETIME NOT NULL,
  created_at DATETIME,
  UNIQUE (session_ref, client_id)
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func settlementRow(sessionRef string, clientID uuid.UUID) *models.CheckoutSettlement {
	return &models.CheckoutSettlement{
		ID:         uuid.New(),
		SessionRef: sessionRef,
		ClientID:   clientID,
		LineCount:  2,
		TotalCents: 800,
		SettledAt:  time.Now().UTC(),
	}
}

func TestRepository_CreateEnforcesSessionClientUniqueness(t *testing.T) {
	db := setupSettlementTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	clientID := uuid.New()

	require.NoError(t, repo.Create(ctx, settlementRow("cs_1", clientID)))

	err := repo.Create(ctx, settlementRow("cs_1", clientID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUniqueViolation(err))

	// Same session for another client, and another session for the same
	// client, are both fine.
	assert.NoError(t, repo.Create(ctx, settlementRow("cs_1", uuid.New())))
	assert.NoError(t, repo.Create(ctx, settlementRow("cs_2", clientID)))
}

func TestRepository_ConcurrentCreatesInsertExactlyOnce(t *testing.T) {
	db := setupSettlementTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single pooled connection keeps every goroutine on the same
	// in-memory database.
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	clientID := uuid.New()

	const inserters = 8
	results := make(chan error, inserters)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < inserters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- repo.Create(context.Background(), settlementRow("cs_race", clientID))
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case pkgerrors.IsUniqueViolation(err):
			losses++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, inserters-1, losses)
}

func TestRepository_FindBySessionAndClient(t *testing.T) {
	db := setupSettlementTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	clientID := uuid.New()

	created := settlementRow("cs_find", clientID)
	require.NoError(t, repo.Create(ctx, created))

	found, err := repo.FindBySessionAndClient(ctx, "cs_find", clientID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, 800, found.TotalCents)

	_, err = repo.FindBySessionAndClient(ctx, "cs_find", uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
