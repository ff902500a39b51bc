// Package ingest loads authored catalog files into the reference tables.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/machineparts/parts-assistant/internal/storage"
)

// CatalogDocument is the YAML form of the reference catalog.
type CatalogDocument struct {
	MachineTypes  []MachineTypeDoc  `yaml:"machine_types"`
	Manufacturers []ManufacturerDoc `yaml:"manufacturers"`
	Models        []ModelDoc        `yaml:"models"`
	Categories    []CategoryDoc     `yaml:"categories"`
	Symptoms      []SymptomDoc      `yaml:"symptoms"`
	Intents       []IntentDoc       `yaml:"intents"`
	Knowledge     []KnowledgeDoc    `yaml:"knowledge"`
	QuickReplies  []QuickReplyDoc   `yaml:"quick_replies"`
}

type MachineTypeDoc struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	NamePL     string `yaml:"name_pl"`
	Icon       string `yaml:"icon"`
	Popularity int    `yaml:"popularity"`
}

type ManufacturerDoc struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Aliases     []string `yaml:"aliases"`
	MachineType string   `yaml:"machine_type"`
	Country     string   `yaml:"country"`
	Region      string   `yaml:"region"`
	Popularity  int      `yaml:"popularity"`
}

type ModelDoc struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Manufacturer string            `yaml:"manufacturer"`
	YearFrom     *int              `yaml:"year_from"`
	YearTo       *int              `yaml:"year_to"`
	PowerHP      *int              `yaml:"power_hp"`
	WeightKG     *int              `yaml:"weight_kg"`
	Specs        map[string]string `yaml:"specs"`
	Popularity   int               `yaml:"popularity"`
}

type CategoryDoc struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	NamePL    string `yaml:"name_pl"`
	Parent    string `yaml:"parent"`
	Icon      string `yaml:"icon"`
	SortOrder int    `yaml:"sort_order"`
}

type SymptomDoc struct {
	ID          string   `yaml:"id"`
	Text        string   `yaml:"text"`
	TextPL      string   `yaml:"text_pl"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Confidence  float64  `yaml:"confidence"`
	Keywords    []string `yaml:"keywords"`
}

type IntentDoc struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Patterns  []string       `yaml:"patterns"`
	Keywords  []string       `yaml:"keywords"`
	Threshold float64        `yaml:"threshold"`
	Action    string         `yaml:"action"`
	Metadata  map[string]any `yaml:"metadata"`
}

type KnowledgeDoc struct {
	ID         string   `yaml:"id"`
	Category   string   `yaml:"category"`
	Question   string   `yaml:"question"`
	QuestionPL string   `yaml:"question_pl"`
	Answer     string   `yaml:"answer"`
	AnswerPL   string   `yaml:"answer_pl"`
	Keywords   []string `yaml:"keywords"`
	Priority   int      `yaml:"priority"`
}

type QuickReplyDoc struct {
	ID           string `yaml:"id"`
	Intent       string `yaml:"intent"`
	Text         string `yaml:"text"`
	TextPL       string `yaml:"text_pl"`
	Action       string `yaml:"action"`
	DisplayOrder int    `yaml:"display_order"`
}

// ParseError describes one problem found in a catalog document.
type ParseError struct {
	Section  string
	ID       string
	Message  string
	Severity string // "error" or "warning"
}

func (e ParseError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Section, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Section, e.ID, e.Message)
}

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected.
func ParseCatalog(r io.Reader) (*CatalogDocument, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc CatalogDocument
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &doc, nil
}

// Validate checks the document on its own. References that may point at rows already
// stored (a model's manufacturer, a category's parent) are only checked when the
// referenced id appears in the document or in known.
func Validate(doc *CatalogDocument, known KnownIDs) []ParseError {
	var errs []ParseError
	add := func(section, id, severity, format string, args ...any) {
		errs = append(errs, ParseError{Section: section, ID: id, Message: fmt.Sprintf(format, args...), Severity: severity})
	}

	ids := func(section string, list []string) map[string]bool {
		seen := make(map[string]bool, len(list))
		for _, id := range list {
			if strings.TrimSpace(id) == "" {
				add(section, "", "error", "missing id")
				continue
			}
			if seen[id] {
				add(section, id, "error", "duplicate id")
			}
			seen[id] = true
		}
		return seen
	}

	typeIDs := ids("machine_types", collect(doc.MachineTypes, func(d MachineTypeDoc) string { return d.ID }))
	mfrIDs := ids("manufacturers", collect(doc.Manufacturers, func(d ManufacturerDoc) string { return d.ID }))
	ids("models", collect(doc.Models, func(d ModelDoc) string { return d.ID }))
	catIDs := ids("categories", collect(doc.Categories, func(d CategoryDoc) string { return d.ID }))
	ids("symptoms", collect(doc.Symptoms, func(d SymptomDoc) string { return d.ID }))
	ids("intents", collect(doc.Intents, func(d IntentDoc) string { return d.ID }))
	ids("knowledge", collect(doc.Knowledge, func(d KnowledgeDoc) string { return d.ID }))
	ids("quick_replies", collect(doc.QuickReplies, func(d QuickReplyDoc) string { return d.ID }))

	for _, mt := range doc.MachineTypes {
		if mt.Name == "" {
			add("machine_types", mt.ID, "error", "missing name")
		}
	}

	for _, m := range doc.Manufacturers {
		if m.Name == "" {
			add("manufacturers", m.ID, "error", "missing name")
		}
		if !typeIDs[m.MachineType] && !known.MachineTypes[m.MachineType] {
			add("manufacturers", m.ID, "error", "unknown machine type %q", m.MachineType)
		}
	}

	for _, m := range doc.Models {
		if m.Name == "" {
			add("models", m.ID, "error", "missing name")
		}
		if !mfrIDs[m.Manufacturer] && !known.Manufacturers[m.Manufacturer] {
			add("models", m.ID, "error", "unknown manufacturer %q", m.Manufacturer)
		}
		if m.YearFrom != nil && m.YearTo != nil && *m.YearFrom > *m.YearTo {
			add("models", m.ID, "error", "year_from %d is after year_to %d", *m.YearFrom, *m.YearTo)
		}
	}

	parents := make(map[string]string, len(doc.Categories))
	for _, c := range doc.Categories {
		parents[c.ID] = c.Parent
	}
	for _, c := range doc.Categories {
		if c.Parent == "" {
			continue
		}
		if c.Parent == c.ID {
			add("categories", c.ID, "error", "category cannot be its own parent")
			continue
		}
		if catIDs[c.Parent] {
			if parents[c.Parent] != "" {
				add("categories", c.ID, "error", "parent %q is not a root category", c.Parent)
			}
		} else if !known.Categories[c.Parent] {
			add("categories", c.ID, "error", "unknown parent %q", c.Parent)
		}
	}

	for _, s := range doc.Symptoms {
		if s.Text == "" {
			add("symptoms", s.ID, "error", "missing text")
		}
		if s.Confidence < 0 || s.Confidence > 100 {
			add("symptoms", s.ID, "error", "confidence %.0f outside 0-100", s.Confidence)
		}
		if len(s.Keywords) == 0 {
			add("symptoms", s.ID, "warning", "no keywords")
		}
	}

	for _, im := range doc.Intents {
		if im.Name == "" || im.Action == "" {
			add("intents", im.ID, "error", "name and action are required")
		}
		if im.Threshold < 0 || im.Threshold > 100 {
			add("intents", im.ID, "error", "threshold %.0f outside 0-100", im.Threshold)
		}
		if len(im.Patterns) == 0 && len(im.Keywords) == 0 {
			add("intents", im.ID, "warning", "no patterns or keywords, the intent can never match")
		}
	}

	for _, k := range doc.Knowledge {
		if k.Question == "" || k.Answer == "" {
			add("knowledge", k.ID, "error", "question and answer are required")
		}
	}

	for _, q := range doc.QuickReplies {
		if q.Intent == "" || q.Text == "" {
			add("quick_replies", q.ID, "error", "intent and text are required")
		}
	}

	return errs
}

// KnownIDs lists reference rows that already exist in the store.
type KnownIDs struct {
	MachineTypes  map[string]bool
	Manufacturers map[string]bool
	Categories    map[string]bool
}

// HasErrors reports whether any problem has error severity.
func HasErrors(errs []ParseError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ToSeedData converts the document into storage rows. Root categories come first.
func (doc *CatalogDocument) ToSeedData() (*storage.SeedData, error) {
	data := &storage.SeedData{}

	for _, d := range doc.MachineTypes {
		data.MachineTypes = append(data.MachineTypes, &storage.MachineType{
			ID: d.ID, Name: d.Name, NameLocalized: d.NamePL, Icon: d.Icon, PopularityScore: d.Popularity,
		})
	}
	for _, d := range doc.Manufacturers {
		data.Manufacturers = append(data.Manufacturers, &storage.Manufacturer{
			ID: d.ID, Name: d.Name, Aliases: d.Aliases, MachineTypeID: d.MachineType,
			Country: d.Country, Region: d.Region, PopularityScore: d.Popularity,
		})
	}
	for _, d := range doc.Models {
		data.Models = append(data.Models, &storage.MachineModel{
			ID: d.ID, Name: d.Name, ManufacturerID: d.Manufacturer, YearFrom: d.YearFrom, YearTo: d.YearTo,
			PowerHP: d.PowerHP, WeightKG: d.WeightKG, Specs: d.Specs, PopularityScore: d.Popularity,
		})
	}

	categories := append([]CategoryDoc(nil), doc.Categories...)
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].Parent == "" && categories[j].Parent != ""
	})
	for _, d := range categories {
		c := &storage.PartCategory{ID: d.ID, Name: d.Name, NameLocalized: d.NamePL, Icon: d.Icon, SortOrder: d.SortOrder}
		if d.Parent != "" {
			parent := d.Parent
			c.ParentID = &parent
		}
		data.Categories = append(data.Categories, c)
	}

	for _, d := range doc.Symptoms {
		data.Symptoms = append(data.Symptoms, &storage.SymptomMapping{
			ID: d.ID, SymptomText: d.Text, SymptomTextPL: d.TextPL, Category: d.Category,
			Subcategory: d.Subcategory, ConfidenceScore: d.Confidence, Keywords: d.Keywords,
		})
	}
	for _, d := range doc.Intents {
		im := &storage.IntentMapping{
			ID: d.ID, IntentName: d.Name, Patterns: d.Patterns, Keywords: d.Keywords,
			ConfidenceThreshold: d.Threshold, Action: d.Action,
		}
		if len(d.Metadata) > 0 {
			raw, err := json.Marshal(d.Metadata)
			if err != nil {
				return nil, fmt.Errorf("intent %s metadata: %w", d.ID, err)
			}
			im.Metadata = raw
		}
		data.Intents = append(data.Intents, im)
	}
	for _, d := range doc.Knowledge {
		data.Knowledge = append(data.Knowledge, &storage.KnowledgeEntry{
			ID: d.ID, Category: d.Category, Question: d.Question, QuestionPL: d.QuestionPL,
			Answer: d.Answer, AnswerPL: d.AnswerPL, Keywords: d.Keywords, Priority: d.Priority,
		})
	}
	for _, d := range doc.QuickReplies {
		data.QuickReplies = append(data.QuickReplies, &storage.QuickReply{
			ID: d.ID, Intent: d.Intent, ReplyText: d.Text, ReplyTextPL: d.TextPL,
			Action: d.Action, DisplayOrder: d.DisplayOrder,
		})
	}

	return data, nil
}

func collect[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}
