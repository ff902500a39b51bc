package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// ErrInvalidCatalog is returned when a document has error-severity problems.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Importer validates catalog documents and upserts them in one transaction.
type Importer struct {
	db     storage.TxBeginner
	repos  *storage.Repositories
	logger *observability.Logger
}

// ImportResult summarizes one import.
type ImportResult struct {
	Tables   []storage.SeedTable `json:"tables"`
	Rows     int                 `json:"rows"`
	Problems []ParseError        `json:"problems,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// NewImporter creates a new catalog importer.
func NewImporter(db storage.TxBeginner, repos *storage.Repositories, logger *observability.Logger) *Importer {
	return &Importer{db: db, repos: repos, logger: logger}
}

// Import validates doc against itself and the stored taxonomy, then upserts every row.
// Nothing is written when validation fails or any upsert fails.
func (i *Importer) Import(ctx context.Context, doc *CatalogDocument, progress storage.SeedProgress) (*ImportResult, error) {
	start := time.Now()

	known, err := i.knownIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Problems: Validate(doc, known)}
	if HasErrors(result.Problems) {
		i.logger.Warn().Int("problems", len(result.Problems)).Msg("Catalog rejected")
		return result, fmt.Errorf("%w: %s", ErrInvalidCatalog, firstError(result.Problems))
	}

	data, err := doc.ToSeedData()
	if err != nil {
		return result, err
	}
	result.Tables = data.Tables()

	err = storage.WithTx(ctx, i.db, func(tx *storage.Repositories) error {
		return storage.Seed(ctx, tx, data, func(table string, done, total int) {
			result.Rows++
			if progress != nil {
				progress(table, done, total)
			}
		})
	})
	if err != nil {
		return result, fmt.Errorf("import catalog: %w", err)
	}

	result.Duration = time.Since(start)
	i.logger.Info().
		Int("rows", result.Rows).
		Int("warnings", len(result.Problems)).
		Dur("duration", result.Duration).
		Msg("Catalog imported")

	return result, nil
}

func (i *Importer) knownIDs(ctx context.Context) (KnownIDs, error) {
	known := KnownIDs{
		MachineTypes:  map[string]bool{},
		Manufacturers: map[string]bool{},
		Categories:    map[string]bool{},
	}

	types, err := i.repos.Taxonomy.ListMachineTypes(ctx)
	if err != nil {
		return known, err
	}
	for _, t := range types {
		known.MachineTypes[t.ID] = true
	}

	mfrs, err := i.repos.Taxonomy.ListManufacturers(ctx)
	if err != nil {
		return known, err
	}
	for _, m := range mfrs {
		known.Manufacturers[m.ID] = true
	}

	cats, err := i.repos.Taxonomy.ListCategories(ctx)
	if err != nil {
		return known, err
	}
	for _, c := range cats {
		// Only roots can be parents.
		if c.ParentID == nil {
			known.Categories[c.ID] = true
		}
	}
	return known, nil
}

func firstError(problems []ParseError) string {
	for _, p := range problems {
		if p.Severity == "error" {
			return p.Error()
		}
	}
	return ""
}
