package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
	"github.com/machineparts/parts-assistant/internal/storage/storagetest"
)

const doosanCatalog = `
manufacturers:
  - id: doosan
    name: Doosan
    aliases: [Develon]
    machine_type: excavator
    country: KR
    region: asia
    popularity: 70
models:
  - id: doosan-dx225
    name: Doosan DX225LC
    manufacturer: doosan
    year_from: 2012
    year_to: 2020
    power_hp: 165
    specs:
      engine: DL06
categories:
  - id: oil-filters
    name: Oil filters
    name_pl: Filtry oleju
    parent: filters
    sort_order: 1
intents:
  - id: intent-100
    name: WARRANTY
    patterns: [warranty claim]
    keywords: [warranty, guarantee]
    threshold: 40
    action: show_warranty
    metadata:
      category: after_sales
`

func TestParseCatalog_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("machine_typez: []\n"))
	require.Error(t, err)

	doc, err := ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Models)
}

func TestValidate_Problems(t *testing.T) {
	from, to := 2020, 2010
	doc := &CatalogDocument{
		MachineTypes: []MachineTypeDoc{{ID: "excavator", Name: "Excavator"}, {ID: "excavator", Name: "Dup"}},
		Manufacturers: []ManufacturerDoc{
			{ID: "acme", Name: "Acme", MachineType: "hovercraft"},
		},
		Models: []ModelDoc{
			{ID: "acme-1", Name: "Acme 1", Manufacturer: "nobody", YearFrom: &from, YearTo: &to},
		},
		Categories: []CategoryDoc{
			{ID: "root", Name: "Root"},
			{ID: "child", Name: "Child", Parent: "root"},
			{ID: "grandchild", Name: "Grandchild", Parent: "child"},
			{ID: "loop", Name: "Loop", Parent: "loop"},
		},
		Intents: []IntentDoc{{ID: "intent-x", Name: "X", Action: "noop", Threshold: 40}},
	}

	problems := Validate(doc, KnownIDs{})
	require.True(t, HasErrors(problems))

	var messages []string
	for _, p := range problems {
		messages = append(messages, p.Error())
	}
	assert.Contains(t, messages, "machine_types excavator: duplicate id")
	assert.Contains(t, messages, `manufacturers acme: unknown machine type "hovercraft"`)
	assert.Contains(t, messages, `models acme-1: unknown manufacturer "nobody"`)
	assert.Contains(t, messages, "models acme-1: year_from 2020 is after year_to 2010")
	assert.Contains(t, messages, `categories grandchild: parent "child" is not a root category`)
	assert.Contains(t, messages, "categories loop: category cannot be its own parent")
	assert.Contains(t, messages, "intents intent-x: no patterns or keywords, the intent can never match")
}

func TestToSeedData_RootsFirst(t *testing.T) {
	doc := &CatalogDocument{
		Categories: []CategoryDoc{
			{ID: "seals", Name: "Seals", Parent: "hydraulics"},
			{ID: "hydraulics", Name: "Hydraulics"},
		},
	}

	data, err := doc.ToSeedData()
	require.NoError(t, err)
	require.Len(t, data.Categories, 2)
	assert.Equal(t, "hydraulics", data.Categories[0].ID)
	assert.Nil(t, data.Categories[0].ParentID)
	assert.Equal(t, "hydraulics", *data.Categories[1].ParentID)
}

func TestImporter_Import(t *testing.T) {
	db, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	doc, err := ParseCatalog(strings.NewReader(doosanCatalog))
	require.NoError(t, err)

	var calls int
	result, err := NewImporter(db, repos, observability.NopLogger()).Import(ctx, doc, func(string, int, int) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 4, result.Rows)
	assert.Equal(t, 4, calls)
	assert.Empty(t, result.Problems)

	model, err := repos.Taxonomy.GetModel(ctx, "doosan-dx225")
	require.NoError(t, err)
	assert.Equal(t, "doosan", model.ManufacturerID)
	assert.Equal(t, "DL06", model.Specs["engine"])

	cat, err := repos.Taxonomy.GetCategory(ctx, "oil-filters")
	require.NoError(t, err)
	require.NotNil(t, cat.ParentID)
	assert.Equal(t, "filters", *cat.ParentID)

	intents, err := repos.Knowledge.ListIntents(ctx)
	require.NoError(t, err)
	var found *storage.IntentMapping
	for _, im := range intents {
		if im.ID == "intent-100" {
			found = im
		}
	}
	require.NotNil(t, found)
	assert.JSONEq(t, `{"category":"after_sales"}`, string(found.Metadata))
}

func TestImporter_RejectsInvalidWithoutWriting(t *testing.T) {
	db, repos := storagetest.NewSeeded(t)
	ctx := context.Background()

	doc := &CatalogDocument{
		Manufacturers: []ManufacturerDoc{{ID: "doosan", Name: "Doosan", MachineType: "excavator"}},
		Categories:    []CategoryDoc{{ID: "tiny-seals", Name: "Tiny seals", Parent: "seals"}},
	}

	result, err := NewImporter(db, repos, observability.NopLogger()).Import(ctx, doc, nil)
	require.ErrorIs(t, err, ErrInvalidCatalog)
	assert.Contains(t, err.Error(), `unknown parent "seals"`)
	assert.Zero(t, result.Rows)

	mfrs, err := repos.Taxonomy.ListManufacturers(ctx)
	require.NoError(t, err)
	for _, m := range mfrs {
		assert.NotEqual(t, "doosan", m.ID)
	}
}
