package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// TaxonomyRepository handles machine types, manufacturers, models, part categories and symptoms.
type TaxonomyRepository struct {
	db DB
}

// NewTaxonomyRepository creates a new taxonomy repository.
func NewTaxonomyRepository(db DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db}
}

// UpsertMachineType creates or replaces a machine type.
func (r *TaxonomyRepository) UpsertMachineType(ctx context.Context, mt *MachineType) error {
	query := `
		INSERT INTO machine_types (id, name, name_pl, icon, popularity_score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, name_pl = excluded.name_pl,
			icon = excluded.icon, popularity_score = excluded.popularity_score
	`
	_, err := r.db.ExecContext(ctx, query, mt.ID, mt.Name, mt.NameLocalized, mt.Icon, mt.PopularityScore)
	return wrapErr("upsert machine type", err)
}

// ListMachineTypes returns all machine types, most popular first.
func (r *TaxonomyRepository) ListMachineTypes(ctx context.Context) ([]*MachineType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, name_pl, icon, popularity_score
		FROM machine_types
		ORDER BY popularity_score DESC, id ASC
	`)
	if err != nil {
		return nil, wrapErr("list machine types", err)
	}
	return scanRows(rows, "list machine types", func(rows *sql.Rows) (*MachineType, error) {
		mt := &MachineType{}
		err := rows.Scan(&mt.ID, &mt.Name, &mt.NameLocalized, &mt.Icon, &mt.PopularityScore)
		return mt, err
	})
}

// UpsertManufacturer creates or replaces a manufacturer.
func (r *TaxonomyRepository) UpsertManufacturer(ctx context.Context, m *Manufacturer) error {
	query := `
		INSERT INTO manufacturers (id, name, aliases, machine_type_id, country, region, popularity_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, aliases = excluded.aliases, machine_type_id = excluded.machine_type_id,
			country = excluded.country, region = excluded.region, popularity_score = excluded.popularity_score
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Name, encodeStrings(m.Aliases), m.MachineTypeID, m.Country, m.Region, m.PopularityScore,
	)
	return wrapErr("upsert manufacturer", err)
}

// ListManufacturers returns all manufacturers, most popular first.
func (r *TaxonomyRepository) ListManufacturers(ctx context.Context) ([]*Manufacturer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, aliases, machine_type_id, country, region, popularity_score
		FROM manufacturers
		ORDER BY popularity_score DESC, id ASC
	`)
	if err != nil {
		return nil, wrapErr("list manufacturers", err)
	}
	return scanRows(rows, "list manufacturers", func(rows *sql.Rows) (*Manufacturer, error) {
		m := &Manufacturer{}
		var aliases string
		if err := rows.Scan(&m.ID, &m.Name, &aliases, &m.MachineTypeID, &m.Country, &m.Region, &m.PopularityScore); err != nil {
			return nil, err
		}
		var err error
		m.Aliases, err = decodeStrings(aliases)
		return m, err
	})
}

// UpsertModel creates or replaces a machine model.
func (r *TaxonomyRepository) UpsertModel(ctx context.Context, m *MachineModel) error {
	if m.YearFrom != nil && m.YearTo != nil && *m.YearFrom > *m.YearTo {
		return fmt.Errorf("model %s: year_from %d after year_to %d", m.ID, *m.YearFrom, *m.YearTo)
	}

	specs := "{}"
	if len(m.Specs) > 0 {
		data, err := json.Marshal(m.Specs)
		if err != nil {
			return fmt.Errorf("encode model specs: %w", err)
		}
		specs = string(data)
	}

	query := `
		INSERT INTO machine_models (id, name, manufacturer_id, year_from, year_to, power_hp, weight_kg, specs, popularity_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, manufacturer_id = excluded.manufacturer_id,
			year_from = excluded.year_from, year_to = excluded.year_to,
			power_hp = excluded.power_hp, weight_kg = excluded.weight_kg,
			specs = excluded.specs, popularity_score = excluded.popularity_score
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Name, m.ManufacturerID, m.YearFrom, m.YearTo, m.PowerHP, m.WeightKG, specs, m.PopularityScore,
	)
	return wrapErr("upsert machine model", err)
}

const modelColumns = `id, name, manufacturer_id, year_from, year_to, power_hp, weight_kg, specs, popularity_score`

func scanModel(row interface{ Scan(...any) error }) (*MachineModel, error) {
	m := &MachineModel{}
	var specs string
	if err := row.Scan(&m.ID, &m.Name, &m.ManufacturerID, &m.YearFrom, &m.YearTo,
		&m.PowerHP, &m.WeightKG, &specs, &m.PopularityScore); err != nil {
		return nil, err
	}
	if specs != "" && specs != "{}" {
		if err := json.Unmarshal([]byte(specs), &m.Specs); err != nil {
			return nil, fmt.Errorf("decode model specs: %w", err)
		}
	}
	return m, nil
}

// ListModels returns all machine models, most popular first.
func (r *TaxonomyRepository) ListModels(ctx context.Context) ([]*MachineModel, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM machine_models ORDER BY popularity_score DESC, id ASC`)
	if err != nil {
		return nil, wrapErr("list machine models", err)
	}
	return scanRows(rows, "list machine models", func(rows *sql.Rows) (*MachineModel, error) {
		return scanModel(rows)
	})
}

// GetModel retrieves a machine model by ID.
func (r *TaxonomyRepository) GetModel(ctx context.Context, id string) (*MachineModel, error) {
	m, err := scanModel(r.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM machine_models WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get machine model", err)
	}
	return m, nil
}

// UpsertCategory creates or replaces a part category, enforcing the two-level tree.
func (r *TaxonomyRepository) UpsertCategory(ctx context.Context, c *PartCategory) error {
	if c.ParentID != nil {
		if *c.ParentID == c.ID {
			return fmt.Errorf("%w: category %s cannot be its own parent", ErrConflict, c.ID)
		}
		parent, err := r.GetCategory(ctx, *c.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: parent category %s does not exist", ErrConflict, *c.ParentID)
			}
			return err
		}
		if parent.ParentID != nil {
			return fmt.Errorf("%w: parent category %s is not a root", ErrConflict, parent.ID)
		}

		var children int
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM part_categories WHERE parent_id = $1`, c.ID).Scan(&children)
		if err != nil {
			return wrapErr("count child categories", err)
		}
		if children > 0 {
			return fmt.Errorf("%w: category %s has children and cannot become a child", ErrConflict, c.ID)
		}
	}

	query := `
		INSERT INTO part_categories (id, name, name_pl, parent_id, icon, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, name_pl = excluded.name_pl, parent_id = excluded.parent_id,
			icon = excluded.icon, sort_order = excluded.sort_order
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.NameLocalized, c.ParentID, c.Icon, c.SortOrder)
	return wrapErr("upsert part category", err)
}

// GetCategory retrieves a part category by ID.
func (r *TaxonomyRepository) GetCategory(ctx context.Context, id string) (*PartCategory, error) {
	c := &PartCategory{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, name_pl, parent_id, icon, sort_order FROM part_categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.NameLocalized, &c.ParentID, &c.Icon, &c.SortOrder)
	if err != nil {
		return nil, wrapErr("get part category", err)
	}
	return c, nil
}

// ListCategories returns all part categories, roots first, then by sort order.
func (r *TaxonomyRepository) ListCategories(ctx context.Context) ([]*PartCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, name_pl, parent_id, icon, sort_order
		FROM part_categories
		ORDER BY CASE WHEN parent_id IS NULL THEN 0 ELSE 1 END, sort_order ASC, id ASC
	`)
	if err != nil {
		return nil, wrapErr("list part categories", err)
	}
	return scanRows(rows, "list part categories", func(rows *sql.Rows) (*PartCategory, error) {
		c := &PartCategory{}
		err := rows.Scan(&c.ID, &c.Name, &c.NameLocalized, &c.ParentID, &c.Icon, &c.SortOrder)
		return c, err
	})
}

// UpsertSymptom creates or replaces a symptom mapping.
func (r *TaxonomyRepository) UpsertSymptom(ctx context.Context, s *SymptomMapping) error {
	if s.ConfidenceScore < 0 || s.ConfidenceScore > 100 {
		return fmt.Errorf("symptom %s: confidence %.2f outside [0,100]", s.ID, s.ConfidenceScore)
	}
	query := `
		INSERT INTO symptom_mappings (id, symptom_text, symptom_text_pl, category, subcategory, confidence_score, keywords)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			symptom_text = excluded.symptom_text, symptom_text_pl = excluded.symptom_text_pl,
			category = excluded.category, subcategory = excluded.subcategory,
			confidence_score = excluded.confidence_score, keywords = excluded.keywords
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.SymptomText, s.SymptomTextPL, s.Category, s.Subcategory, s.ConfidenceScore, encodeStrings(s.Keywords),
	)
	return wrapErr("upsert symptom mapping", err)
}

// ListSymptoms returns all symptom mappings, highest confidence first.
func (r *TaxonomyRepository) ListSymptoms(ctx context.Context) ([]*SymptomMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symptom_text, symptom_text_pl, category, subcategory, confidence_score, keywords
		FROM symptom_mappings
		ORDER BY confidence_score DESC, id ASC
	`)
	if err != nil {
		return nil, wrapErr("list symptom mappings", err)
	}
	return scanRows(rows, "list symptom mappings", func(rows *sql.Rows) (*SymptomMapping, error) {
		s := &SymptomMapping{}
		var keywords string
		if err := rows.Scan(&s.ID, &s.SymptomText, &s.SymptomTextPL, &s.Category, &s.Subcategory,
			&s.ConfidenceScore, &keywords); err != nil {
			return nil, err
		}
		var err error
		s.Keywords, err = decodeStrings(keywords)
		return s, err
	})
}
