package assistant

import (
	"context"
	"sort"
	"strings"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// Confidence contributions of each extracted dimension.
const (
	confidenceMachineType  = 25
	confidenceManufacturer = 25
	confidenceModel        = 30
	confidenceIssue        = 20
	maxConfidence          = 100
)

// QueryAnalysis is the structured reading of a free-text query.
// Unmatched dimensions are nil; a query with no matches has confidence 0.
type QueryAnalysis struct {
	Query             string  `json:"query"`
	MachineType       *string `json:"machineType"`
	Manufacturer      *string `json:"manufacturer"`
	Model             *string `json:"model"`
	Issue             *string `json:"issue"`
	SymptomID         *string `json:"symptomId,omitempty"`
	SuggestedCategory *string `json:"suggestedCategory"`
	Subcategory       *string `json:"subcategory,omitempty"`
	Confidence        int     `json:"confidence"`
}

// Interpreter extracts machine and issue information from free text.
type Interpreter struct {
	taxonomy *TaxonomyLoader
	logger   *observability.Logger
}

// NewInterpreter creates a new query interpreter.
func NewInterpreter(taxonomy *TaxonomyLoader, logger *observability.Logger) *Interpreter {
	return &Interpreter{taxonomy: taxonomy, logger: logger}
}

// Analyze interprets query against the current taxonomy. It has no side effects.
func (i *Interpreter) Analyze(ctx context.Context, query string) (*QueryAnalysis, error) {
	snap, err := i.taxonomy.Load(ctx)
	if err != nil {
		return nil, err
	}

	analysis := AnalyzeWith(snap, query)

	i.logger.Debug().
		Str("query", query).
		Int("confidence", analysis.Confidence).
		Msg("Analyzed query")

	return analysis, nil
}

// AnalyzeWith interprets query against a given snapshot.
//
// Matching runs in order: machine type, manufacturer (scoped to the matched type when that
// scope has a match), model (scoped to the matched manufacturer), then symptom. A matched model
// implies its manufacturer, and a manufacturer implies its machine type.
func AnalyzeWith(snap *Taxonomy, query string) *QueryAnalysis {
	q := normalize(query)
	analysis := &QueryAnalysis{Query: query}
	if q == "" {
		return analysis
	}

	var machineType *storage.MachineType
	for _, mt := range rankTypes(snap.MachineTypes) {
		if containsTerm(q, mt.Name) || containsTerm(q, mt.NameLocalized) {
			machineType = mt
			break
		}
	}

	var manufacturer *storage.Manufacturer
	mfrs := rankManufacturers(snap.Manufacturers)
	if machineType != nil {
		manufacturer = firstManufacturer(q, mfrs, machineType.ID)
	}
	if manufacturer == nil {
		manufacturer = firstManufacturer(q, mfrs, "")
	}

	var model *storage.MachineModel
	for _, m := range rankModels(snap.Models) {
		if manufacturer != nil && m.ManufacturerID != manufacturer.ID {
			continue
		}
		if containsTerm(q, m.Name) {
			model = m
			break
		}
	}

	if model != nil && manufacturer == nil {
		manufacturer = snap.Manufacturer(model.ManufacturerID)
	}
	if manufacturer != nil && machineType == nil {
		for _, mt := range snap.MachineTypes {
			if mt.ID == manufacturer.MachineTypeID {
				machineType = mt
				break
			}
		}
	}

	symptom := bestSymptom(q, snap.Symptoms)

	if machineType != nil {
		analysis.MachineType = ptr(machineType.ID)
		analysis.Confidence += confidenceMachineType
	}
	if manufacturer != nil {
		analysis.Manufacturer = ptr(manufacturer.ID)
		analysis.Confidence += confidenceManufacturer
	}
	if model != nil {
		analysis.Model = ptr(model.ID)
		analysis.Confidence += confidenceModel
	}
	if symptom != nil {
		analysis.Issue = ptr(symptom.SymptomText)
		analysis.SymptomID = ptr(symptom.ID)
		analysis.SuggestedCategory = ptr(symptom.Category)
		analysis.Subcategory = ptr(symptom.Subcategory)
		analysis.Confidence += confidenceIssue
	}
	if analysis.Confidence > maxConfidence {
		analysis.Confidence = maxConfidence
	}
	return analysis
}

func firstManufacturer(q string, ranked []*storage.Manufacturer, machineTypeID string) *storage.Manufacturer {
	for _, m := range ranked {
		if machineTypeID != "" && m.MachineTypeID != machineTypeID {
			continue
		}
		if containsTerm(q, m.Name) {
			return m
		}
		for _, alias := range m.Aliases {
			if containsTerm(q, alias) {
				return m
			}
		}
	}
	return nil
}

// bestSymptom prefers a symptom whose own text appears in the query over one matched
// only through a keyword, then higher confidence, then lower id.
func bestSymptom(q string, symptoms []*storage.SymptomMapping) *storage.SymptomMapping {
	var (
		best         *storage.SymptomMapping
		bestStrength int
	)
	for _, s := range symptoms {
		strength := 0
		switch {
		case containsTerm(q, s.SymptomText) || containsTerm(q, s.SymptomTextPL):
			strength = 2
		case anyKeyword(q, s.Keywords):
			strength = 1
		}
		if strength == 0 {
			continue
		}
		if best == nil || strength > bestStrength ||
			(strength == bestStrength && (s.ConfidenceScore > best.ConfidenceScore ||
				(s.ConfidenceScore == best.ConfidenceScore && s.ID < best.ID))) {
			best, bestStrength = s, strength
		}
	}
	return best
}

func anyKeyword(q string, keywords []string) bool {
	for _, k := range keywords {
		if containsTerm(q, k) {
			return true
		}
	}
	return false
}

func rankTypes(in []*storage.MachineType) []*storage.MachineType {
	out := append([]*storage.MachineType(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PopularityScore != out[j].PopularityScore {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func rankManufacturers(in []*storage.Manufacturer) []*storage.Manufacturer {
	out := append([]*storage.Manufacturer(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PopularityScore != out[j].PopularityScore {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func rankModels(in []*storage.MachineModel) []*storage.MachineModel {
	out := append([]*storage.MachineModel(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PopularityScore != out[j].PopularityScore {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SymptomMatch is one ranked symptom classification.
type SymptomMatch struct {
	SymptomID   string  `json:"symptomId"`
	Symptom     string  `json:"symptom"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Confidence  float64 `json:"confidence"`
}

const maxSymptomMatches = 5

// SymptomMapper maps symptom descriptions to part categories.
type SymptomMapper struct {
	taxonomy *TaxonomyLoader
}

// NewSymptomMapper creates a new symptom mapper.
func NewSymptomMapper(taxonomy *TaxonomyLoader) *SymptomMapper {
	return &SymptomMapper{taxonomy: taxonomy}
}

// Map returns up to five categories for text, highest authored confidence first.
// An entry matches when its text contains the input or the input contains one of its keywords.
func (m *SymptomMapper) Map(ctx context.Context, text string) ([]SymptomMatch, error) {
	q := normalize(text)
	if q == "" {
		return []SymptomMatch{}, nil
	}

	snap, err := m.taxonomy.Load(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*storage.SymptomMapping
	for _, s := range snap.Symptoms {
		if strings.Contains(normalize(s.SymptomText), q) ||
			(s.SymptomTextPL != "" && strings.Contains(normalize(s.SymptomTextPL), q)) ||
			anyKeyword(q, s.Keywords) {
			matched = append(matched, s)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ConfidenceScore != matched[j].ConfidenceScore {
			return matched[i].ConfidenceScore > matched[j].ConfidenceScore
		}
		return matched[i].ID < matched[j].ID
	})
	if len(matched) > maxSymptomMatches {
		matched = matched[:maxSymptomMatches]
	}

	out := make([]SymptomMatch, 0, len(matched))
	for _, s := range matched {
		out = append(out, SymptomMatch{
			SymptomID:   s.ID,
			Symptom:     s.SymptomText,
			Category:    s.Category,
			Subcategory: s.Subcategory,
			Confidence:  s.ConfidenceScore,
		})
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }
