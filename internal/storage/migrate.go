package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationManager applies the embedded schema migrations.
type MigrationManager struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	files  fs.FS
}

// NewMigrationManager creates a migration manager for the given driver.
func NewMigrationManager(db *sql.DB, driver string) *MigrationManager {
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return &MigrationManager{
		db:     db,
		driver: driver,
		files:  sub,
	}
}

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool
	Pending  []string
	Applied  []string
	Total    int
}

// CheckMigrations reports which migrations are still pending.
func (m *MigrationManager) CheckMigrations(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := m.listMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Total: len(migrations)}
	for _, name := range migrations {
		if applied[migrationVersion(name)] {
			status.Applied = append(status.Applied, name)
		} else {
			status.Pending = append(status.Pending, name)
		}
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// RunMigrations runs all pending migrations in order.
func (m *MigrationManager) RunMigrations(ctx context.Context, status *MigrationStatus) error {
	if len(status.Pending) == 0 {
		return nil
	}

	pending := append([]string(nil), status.Pending...)
	sort.Strings(pending)

	for _, name := range pending {
		if err := m.runMigration(ctx, name); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	return nil
}

// Migrate checks and applies every pending migration.
func (m *MigrationManager) Migrate(ctx context.Context) (*MigrationStatus, error) {
	status, err := m.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.RunMigrations(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (m *MigrationManager) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	switch m.driver {
	case "sqlite", "":
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrationFiles returns the migration files for the driver, sorted.
// SQLite prefers a "_sqlite.sql" variant when one exists; Postgres ignores those variants.
func (m *MigrationManager) listMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	sqliteMigrations := make(map[string]string)
	regularMigrations := make(map[string]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqliteMigrations[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			regularMigrations[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	var migrations []string
	for base, regular := range regularMigrations {
		if m.driver == "sqlite" || m.driver == "" {
			if variant, ok := sqliteMigrations[base]; ok {
				migrations = append(migrations, variant)
				continue
			}
		}
		migrations = append(migrations, regular)
	}
	if m.driver == "sqlite" || m.driver == "" {
		for base, variant := range sqliteMigrations {
			if _, ok := regularMigrations[base]; !ok {
				migrations = append(migrations, variant)
			}
		}
	}

	sort.Strings(migrations)
	return migrations, nil
}

func (m *MigrationManager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) runMigration(ctx context.Context, name string) error {
	data, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, migrationVersion(name)); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// migrationVersion strips the extension and driver suffix so both variants record the same version.
func migrationVersion(name string) string {
	name = strings.TrimSuffix(name, ".sql")
	return strings.TrimSuffix(name, "_sqlite")
}
