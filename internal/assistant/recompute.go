package assistant

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// RecomputeProgress is called after each machine model is rebuilt.
type RecomputeProgress func(machineModelID string, done, total int)

// RecomputeReport summarizes one recompute run.
type RecomputeReport struct {
	Models   int           `json:"models"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Recomputer rebuilds frequently-bought-together rows from purchase history. It runs out of band.
type Recomputer struct {
	purchases   *storage.PurchaseRepository
	fbt         *storage.FrequentlyBoughtTogetherRepository
	concurrency int
	logger      *observability.Logger
	now         func() time.Time
}

// NewRecomputer creates a new recomputer with the given fan-out.
func NewRecomputer(purchases *storage.PurchaseRepository, fbt *storage.FrequentlyBoughtTogetherRepository, concurrency int, logger *observability.Logger) *Recomputer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Recomputer{
		purchases:   purchases,
		fbt:         fbt,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// RecomputeAll rebuilds the rows of every machine model that has purchases.
func (r *Recomputer) RecomputeAll(ctx context.Context, progress RecomputeProgress) (*RecomputeReport, error) {
	start := time.Now()

	models, err := r.purchases.ListModelIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchased models: %w", err)
	}

	var (
		mu     sync.Mutex
		done   int
		rows   int
		report = &RecomputeReport{Models: len(models)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, modelID := range models {
		g.Go(func() error {
			n, err := r.RecomputeModel(gctx, modelID)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			rows += n
			if progress != nil {
				progress(modelID, done, len(models))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Rows = rows
	report.Duration = time.Since(start)

	r.logger.Info().
		Int("models", report.Models).
		Int("rows", report.Rows).
		Dur("duration", report.Duration).
		Msg("Recomputed frequently bought together")

	return report, nil
}

// RecomputeModel replaces the rows of one machine model and returns how many were written.
func (r *Recomputer) RecomputeModel(ctx context.Context, machineModelID string) (int, error) {
	purchases, err := r.purchases.ListByModel(ctx, machineModelID)
	if err != nil {
		return 0, fmt.Errorf("list purchases for %s: %w", machineModelID, err)
	}

	rows := ComputeFrequentlyBoughtTogether(purchases, r.now().UTC())
	if err := r.fbt.ReplaceForModel(ctx, machineModelID, rows); err != nil {
		return 0, fmt.Errorf("replace frequently bought together for %s: %w", machineModelID, err)
	}
	return len(rows), nil
}

// ComputeFrequentlyBoughtTogether derives co-purchase scores. Purchases by the same customer on the
// same UTC day form one order; anonymous purchases are ignored. The score of (a, b) is the share of
// orders containing a that also contain b, as a rounded percentage.
func ComputeFrequentlyBoughtTogether(purchases []*storage.PurchaseRecord, updatedAt time.Time) []*storage.FrequentlyBoughtTogether {
	orders := make(map[string]map[string]struct{})
	for _, p := range purchases {
		if p.CustomerID == nil || *p.CustomerID == "" {
			continue
		}
		key := *p.CustomerID + "|" + p.PurchasedAt.UTC().Format(time.DateOnly)
		if orders[key] == nil {
			orders[key] = make(map[string]struct{})
		}
		orders[key][p.ProductID] = struct{}{}
	}

	containing := make(map[string]int)
	co := make(map[[2]string]int)
	for _, products := range orders {
		for a := range products {
			containing[a]++
			for b := range products {
				if a != b {
					co[[2]string{a, b}]++
				}
			}
		}
	}

	rows := make([]*storage.FrequentlyBoughtTogether, 0, len(co))
	for pair, n := range co {
		rows = append(rows, &storage.FrequentlyBoughtTogether{
			ProductID:        pair[0],
			RelatedProductID: pair[1],
			FrequencyScore:   math.Round(100 * float64(n) / float64(containing[pair[0]])),
			UpdatedAt:        updatedAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.FrequencyScore != b.FrequencyScore {
			return a.FrequencyScore > b.FrequencyScore
		}
		return a.RelatedProductID < b.RelatedProductID
	})
	return rows
}
