package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CompatibilityRepository handles compatibility_matrix operations.
type CompatibilityRepository struct {
	db DB
}

// NewCompatibilityRepository creates a new compatibility repository.
func NewCompatibilityRepository(db DB) *CompatibilityRepository {
	return &CompatibilityRepository{db: db}
}

// Get retrieves the record for a (model, product) pair.
func (r *CompatibilityRepository) Get(ctx context.Context, machineModelID, productID string) (*CompatibilityRecord, error) {
	rec := &CompatibilityRecord{}
	var level string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, machine_model_id, product_id, compatibility_level, confidence_score, is_original, notes, created_at
		FROM compatibility_matrix
		WHERE machine_model_id = $1 AND product_id = $2
	`, machineModelID, productID).Scan(
		&rec.ID, &rec.MachineModelID, &rec.ProductID, &level,
		&rec.ConfidenceScore, &rec.IsOriginal, &rec.Notes, &rec.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("get compatibility", err)
	}
	rec.CompatibilityLevel = CompatibilityLevel(level)
	return rec, nil
}

// Upsert creates or replaces the record for the pair. One record exists per pair.
func (r *CompatibilityRepository) Upsert(ctx context.Context, rec *CompatibilityRecord) error {
	if !rec.CompatibilityLevel.Valid() {
		return fmt.Errorf("invalid compatibility level %q", rec.CompatibilityLevel)
	}
	if rec.ConfidenceScore < 0 || rec.ConfidenceScore > 100 {
		return fmt.Errorf("compatibility confidence %.2f outside [0,100]", rec.ConfidenceScore)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO compatibility_matrix (id, machine_model_id, product_id, compatibility_level, confidence_score, is_original, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (machine_model_id, product_id) DO UPDATE SET
			compatibility_level = excluded.compatibility_level,
			confidence_score = excluded.confidence_score,
			is_original = excluded.is_original,
			notes = excluded.notes
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.MachineModelID, rec.ProductID, string(rec.CompatibilityLevel),
		rec.ConfidenceScore, rec.IsOriginal, rec.Notes, dbTime(rec.CreatedAt),
	)
	return wrapErr("upsert compatibility", err)
}

// PurchaseRepository handles the append-only purchase_history ledger.
type PurchaseRepository struct {
	db DB
}

// NewPurchaseRepository creates a new purchase repository.
func NewPurchaseRepository(db DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Append records a purchase.
func (r *PurchaseRepository) Append(ctx context.Context, p *PurchaseRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_history (id, customer_id, machine_model_id, product_id, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.CustomerID, p.MachineModelID, p.ProductID, dbTime(p.PurchasedAt))
	return wrapErr("append purchase", err)
}

// TopProductsByModel returns products bought for a model, most purchased first.
func (r *PurchaseRepository) TopProductsByModel(ctx context.Context, machineModelID string, limit int) ([]ProductCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, COUNT(*) AS cnt
		FROM purchase_history
		WHERE machine_model_id = $1
		GROUP BY product_id
		ORDER BY cnt DESC, product_id ASC
		LIMIT $2
	`, machineModelID, limit)
	if err != nil {
		return nil, wrapErr("top products by model", err)
	}
	return scanRows(rows, "top products by model", func(rows *sql.Rows) (ProductCount, error) {
		var pc ProductCount
		err := rows.Scan(&pc.ProductID, &pc.Count)
		return pc, err
	})
}

// ListByModel returns every purchase recorded for a model, oldest first.
func (r *PurchaseRepository) ListByModel(ctx context.Context, machineModelID string) ([]*PurchaseRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, machine_model_id, product_id, purchased_at
		FROM purchase_history
		WHERE machine_model_id = $1
		ORDER BY purchased_at ASC, id ASC
	`, machineModelID)
	if err != nil {
		return nil, wrapErr("list purchases by model", err)
	}
	return scanRows(rows, "list purchases by model", func(rows *sql.Rows) (*PurchaseRecord, error) {
		p := &PurchaseRecord{}
		err := rows.Scan(&p.ID, &p.CustomerID, &p.MachineModelID, &p.ProductID, &p.PurchasedAt)
		return p, err
	})
}

// ListModelIDs returns the distinct models that have purchase history.
func (r *PurchaseRepository) ListModelIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT machine_model_id FROM purchase_history ORDER BY machine_model_id ASC
	`)
	if err != nil {
		return nil, wrapErr("list purchase models", err)
	}
	return scanRows(rows, "list purchase models", func(rows *sql.Rows) (string, error) {
		var id string
		err := rows.Scan(&id)
		return id, err
	})
}

// FrequentlyBoughtTogetherRepository handles precomputed co-purchase rows.
type FrequentlyBoughtTogetherRepository struct {
	db DB
}

// NewFrequentlyBoughtTogetherRepository creates a new FBT repository.
func NewFrequentlyBoughtTogetherRepository(db DB) *FrequentlyBoughtTogetherRepository {
	return &FrequentlyBoughtTogetherRepository{db: db}
}

// ListByProduct returns associations of a product, highest score first, one row per related product.
// Rows scoped to another model are skipped; unscoped rows apply only where the model has no row of its own.
func (r *FrequentlyBoughtTogetherRepository) ListByProduct(ctx context.Context, productID, machineModelID string, limit int) ([]*FrequentlyBoughtTogether, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, related_product_id, machine_model_id, frequency_score, updated_at
		FROM (
			SELECT id, product_id, related_product_id, machine_model_id, frequency_score, updated_at,
				ROW_NUMBER() OVER (
					PARTITION BY related_product_id
					ORDER BY CASE WHEN machine_model_id IS NULL THEN 1 ELSE 0 END ASC, frequency_score DESC, id ASC
				) AS rn
			FROM frequently_bought_together
			WHERE product_id = $1
			  AND related_product_id <> $1
			  AND (machine_model_id IS NULL OR machine_model_id = $2)
		) ranked
		WHERE rn = 1
		ORDER BY frequency_score DESC, related_product_id ASC
		LIMIT $3
	`, productID, machineModelID, limit)
	if err != nil {
		return nil, wrapErr("list frequently bought together", err)
	}
	return scanRows(rows, "list frequently bought together", scanFBT)
}

// ListByModel returns every association scoped to a model.
func (r *FrequentlyBoughtTogetherRepository) ListByModel(ctx context.Context, machineModelID string) ([]*FrequentlyBoughtTogether, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, related_product_id, machine_model_id, frequency_score, updated_at
		FROM frequently_bought_together
		WHERE machine_model_id = $1
		ORDER BY product_id ASC, frequency_score DESC, related_product_id ASC
	`, machineModelID)
	if err != nil {
		return nil, wrapErr("list frequently bought together by model", err)
	}
	return scanRows(rows, "list frequently bought together by model", scanFBT)
}

func scanFBT(rows *sql.Rows) (*FrequentlyBoughtTogether, error) {
	f := &FrequentlyBoughtTogether{}
	err := rows.Scan(&f.ID, &f.ProductID, &f.RelatedProductID, &f.MachineModelID, &f.FrequencyScore, &f.UpdatedAt)
	return f, err
}

// Upsert inserts a single association.
func (r *FrequentlyBoughtTogetherRepository) Upsert(ctx context.Context, f *FrequentlyBoughtTogether) error {
	return insertFBT(ctx, r.db, f)
}

func insertFBT(ctx context.Context, db DB, f *FrequentlyBoughtTogether) error {
	if f.ProductID == f.RelatedProductID {
		return fmt.Errorf("%w: product %s cannot be related to itself", ErrConflict, f.ProductID)
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO frequently_bought_together (id, product_id, related_product_id, machine_model_id, frequency_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			frequency_score = excluded.frequency_score, updated_at = excluded.updated_at
	`, f.ID, f.ProductID, f.RelatedProductID, f.MachineModelID, f.FrequencyScore, dbTime(f.UpdatedAt))
	return wrapErr("upsert frequently bought together", err)
}

// ReplaceForModel atomically swaps every association scoped to a model.
// The repository must be backed by a connection that can begin transactions.
func (r *FrequentlyBoughtTogetherRepository) ReplaceForModel(ctx context.Context, machineModelID string, rows []*FrequentlyBoughtTogether) error {
	beginner, ok := r.db.(TxBeginner)
	if !ok {
		return fmt.Errorf("replace frequently bought together: connection does not support transactions")
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin replace frequently bought together", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frequently_bought_together WHERE machine_model_id = $1`, machineModelID); err != nil {
		return wrapErr("clear frequently bought together", err)
	}

	for _, f := range rows {
		model := machineModelID
		f.MachineModelID = &model
		if err := insertFBT(ctx, tx, f); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit frequently bought together", err)
	}
	return nil
}
