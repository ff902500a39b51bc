package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Common errors
var (
	ErrNotFound    = errors.New("record not found")
	ErrConflict    = errors.New("record conflict")
	ErrUnavailable = errors.New("storage unavailable")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxBeginner is implemented by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Repositories bundles every repository over one connection.
type Repositories struct {
	Taxonomy      *TaxonomyRepository
	Compatibility *CompatibilityRepository
	Purchases     *PurchaseRepository
	FBT           *FrequentlyBoughtTogetherRepository
	Conversations *ConversationRepository
	Escalations   *EscalationRepository
	Knowledge     *KnowledgeRepository
	Analytics     *AnalyticsRepository
}

// NewRepositories creates all repositories.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Taxonomy:      NewTaxonomyRepository(db),
		Compatibility: NewCompatibilityRepository(db),
		Purchases:     NewPurchaseRepository(db),
		FBT:           NewFrequentlyBoughtTogetherRepository(db),
		Conversations: NewConversationRepository(db),
		Escalations:   NewEscalationRepository(db),
		Knowledge:     NewKnowledgeRepository(db),
		Analytics:     NewAnalyticsRepository(db),
	}
}

// WithTx runs fn with repositories bound to one transaction, committing when fn returns nil.
// Errors from fn are returned unchanged.
func WithTx(ctx context.Context, db TxBeginner, fn func(*Repositories) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

// wrapErr maps driver errors onto the package sentinels.
// sql.ErrNoRows becomes ErrNotFound, constraint violations become ErrConflict
// and anything else is a storage failure.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConflict) {
		return err
	}
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %s: %w", ErrConflict, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// isConstraintViolation recognizes sqlite constraint failures and postgres
// integrity_constraint_violation (class 23) errors.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	return false
}

// dbTime normalizes timestamps before they are written so both drivers order them consistently.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTime(*t)
	return &v
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return values, nil
}

func encodeRaw(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

func scanRows[T any](rows *sql.Rows, op string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}
