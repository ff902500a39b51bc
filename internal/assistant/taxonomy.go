package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

const taxonomySnapshotVersion = "v1"

// Taxonomy is an immutable snapshot of the reference data used for matching.
type Taxonomy struct {
	MachineTypes  []*storage.MachineType    `json:"machineTypes"`
	Manufacturers []*storage.Manufacturer   `json:"manufacturers"`
	Models        []*storage.MachineModel   `json:"models"`
	Categories    []*storage.PartCategory   `json:"categories"`
	Symptoms      []*storage.SymptomMapping `json:"symptoms"`
	LoadedAt      time.Time                 `json:"loadedAt"`
}

// CategoryNode is a root part category with its children.
type CategoryNode struct {
	*storage.PartCategory
	Children []*storage.PartCategory `json:"children,omitempty"`
}

// CategoryTree returns the two-level category tree ordered by sort order, then id.
func (t *Taxonomy) CategoryTree() []CategoryNode {
	var roots []CategoryNode
	children := make(map[string][]*storage.PartCategory)

	for _, c := range t.Categories {
		if c.ParentID == nil {
			roots = append(roots, CategoryNode{PartCategory: c})
		} else {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	byOrder := func(a, b *storage.PartCategory) bool {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	}
	sort.Slice(roots, func(i, j int) bool { return byOrder(roots[i].PartCategory, roots[j].PartCategory) })
	for i := range roots {
		kids := children[roots[i].ID]
		sort.Slice(kids, func(a, b int) bool { return byOrder(kids[a], kids[b]) })
		roots[i].Children = kids
	}
	return roots
}

// Manufacturer returns the manufacturer with the given id.
func (t *Taxonomy) Manufacturer(id string) *storage.Manufacturer {
	for _, m := range t.Manufacturers {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Model returns the machine model with the given id.
func (t *Taxonomy) Model(id string) *storage.MachineModel {
	for _, m := range t.Models {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// TaxonomyLoader loads taxonomy snapshots, caching them and collapsing concurrent loads.
type TaxonomyLoader struct {
	repo   *storage.TaxonomyRepository
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewTaxonomyLoader creates a new loader. cacheClient may be nil to disable caching.
func NewTaxonomyLoader(repo *storage.TaxonomyRepository, cacheClient cache.Client, ttl time.Duration, logger *observability.Logger) *TaxonomyLoader {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TaxonomyLoader{
		repo:   repo,
		cache:  cacheClient,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Load returns the current snapshot. Storage failures propagate; a stale snapshot is never substituted.
func (l *TaxonomyLoader) Load(ctx context.Context) (*Taxonomy, error) {
	key := cache.TaxonomyCacheKey(taxonomySnapshotVersion)

	if l.cache != nil {
		data, err := l.cache.Get(ctx, key)
		switch {
		case err == nil:
			var snap Taxonomy
			if err := json.Unmarshal(data, &snap); err == nil {
				return &snap, nil
			}
			l.logger.Warn().Str("key", key).Msg("Discarding undecodable taxonomy snapshot")
		case !errors.Is(err, cache.ErrCacheMiss):
			l.logger.Warn().Err(err).Msg("Taxonomy cache read failed")
		}
	}

	v, err, shared := l.group.Do(key, func() (any, error) {
		return l.loadFromStore(ctx)
	})
	if err != nil {
		return nil, err
	}

	snap := v.(*Taxonomy)
	if !shared && l.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
				l.logger.Warn().Err(err).Msg("Taxonomy cache write failed")
			}
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot so the next Load reads storage.
func (l *TaxonomyLoader) Invalidate(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, cache.TaxonomyCacheKey(taxonomySnapshotVersion))
}

func (l *TaxonomyLoader) loadFromStore(ctx context.Context) (*Taxonomy, error) {
	types, err := l.repo.ListMachineTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load machine types: %w", err)
	}
	mfrs, err := l.repo.ListManufacturers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manufacturers: %w", err)
	}
	models, err := l.repo.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load machine models: %w", err)
	}
	cats, err := l.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load part categories: %w", err)
	}
	symptoms, err := l.repo.ListSymptoms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load symptom mappings: %w", err)
	}

	l.logger.Debug().
		Int("machine_types", len(types)).
		Int("manufacturers", len(mfrs)).
		Int("models", len(models)).
		Int("symptoms", len(symptoms)).
		Msg("Loaded taxonomy snapshot")

	return &Taxonomy{
		MachineTypes:  types,
		Manufacturers: mfrs,
		Models:        models,
		Categories:    cats,
		Symptoms:      symptoms,
		LoadedAt:      l.now(),
	}, nil
}
