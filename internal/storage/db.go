package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/machineparts/parts-assistant/internal/config"
)

// Open opens the configured database and verifies connectivity.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return openSQLite(ctx, cfg.SQLite)
	case "postgres":
		return openPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func openSQLite(ctx context.Context, cfg config.SQLiteConfig) (*sql.DB, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	dsn += "?_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps in-memory databases shared and serializes writers.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 || cfg.Path == "" || cfg.Path == ":memory:" {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if cfg.JournalMode != "" && cfg.Path != "" && cfg.Path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+cfg.JournalMode); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}

	return db, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}
