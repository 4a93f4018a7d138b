package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/models"
	"sessionbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProvider(t *testing.T, db *DB, slug string) *models.Provider {
	t.Helper()
	price := 50.0
	p := &models.Provider{
		Slug:           slug,
		DisplayName:    "Provider " + slug,
		Timezone:       "Europe/Berlin",
		Schedule:       schedule.Default(),
		SessionMinutes: 60,
		BreakMinutes:   15,
		DefaultPrice:   &price,
	}
	require.NoError(t, db.UpsertProvider(context.Background(), p))
	return p
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", dsn(":memory:"))
	assert.Contains(t, dsn("/data/app.db"), "_journal_mode=WAL")
	assert.Contains(t, dsn("file:/data/app.db?mode=rwc"), "mode=rwc&_txlock=immediate")
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	p := seedProvider(t, db, "rollback")
	ctx := context.Background()

	boom := assert.AnError
	err := db.WithTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.CreateBooking(ctx, newBooking(p.ID, time.Now().Add(time.Hour), 60)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bookings, err := db.ListBookings(ctx, p.ID, time.Now().Add(-24*time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestJobRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, ok, err := db.GetJobRun(ctx, models.JobAutoComplete)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.SetJobRun(ctx, models.JobAutoComplete, at))
	require.NoError(t, db.SetJobRun(ctx, models.JobAutoComplete, at.Add(time.Hour)))

	got, ok, err := db.GetJobRun(ctx, models.JobAutoComplete)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at.Add(time.Hour), got)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	_, err = db.GetBooking(ctx, 1)
	assert.Error(t, err)
	_, err = db.GetProviderBySlug(ctx, "x")
	assert.Error(t, err)
	_, err = db.GetPendingSyncTasks(ctx, 10)
	assert.Error(t, err)
	err = db.WithTx(ctx, nil)
	assert.Error(t, err)
}
