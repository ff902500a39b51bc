// Package storagetest opens migrated, seeded in-memory databases for tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// NewSQLite returns an in-memory SQLite database with every migration applied.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = storage.NewMigrationManager(db, "sqlite").Migrate(ctx)
	require.NoError(t, err)

	return db
}

// NewSeeded returns repositories over a migrated database loaded with the default reference data.
func NewSeeded(t testing.TB) (*sql.DB, *storage.Repositories) {
	t.Helper()

	db := NewSQLite(t)
	repos := storage.NewRepositories(db)
	require.NoError(t, storage.Seed(context.Background(), repos, nil, nil))

	return db, repos
}

// Epoch is the fixed time the demo ledger is seeded at.
var Epoch = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

// NewDemo returns a seeded database that also carries the demo compatibility and purchase ledger.
func NewDemo(t testing.TB) (*sql.DB, *storage.Repositories) {
	t.Helper()

	db, repos := NewSeeded(t)
	require.NoError(t, storage.SeedDemoLedger(context.Background(), repos, Epoch))

	return db, repos
}
