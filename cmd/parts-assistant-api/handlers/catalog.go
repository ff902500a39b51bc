package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/monitoring"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// SessionHeader carries the storefront session id on stateless calls.
const SessionHeader = "X-Session-ID"

// CatalogHandler serves query analysis and the reference-data lookups.
type CatalogHandler struct {
	logger      *observability.Logger
	interpreter *assistant.Interpreter
	symptoms    *assistant.SymptomMapper
	validator   *assistant.Validator
	recommender *assistant.Recommender
	taxonomy    *assistant.TaxonomyLoader
	knowledge   *assistant.KnowledgeBase
	recorder    *monitoring.Recorder
}

// CatalogDeps groups the services behind CatalogHandler.
type CatalogDeps struct {
	Interpreter *assistant.Interpreter
	Symptoms    *assistant.SymptomMapper
	Validator   *assistant.Validator
	Recommender *assistant.Recommender
	Taxonomy    *assistant.TaxonomyLoader
	Knowledge   *assistant.KnowledgeBase
	Recorder    *monitoring.Recorder
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(logger *observability.Logger, deps CatalogDeps) *CatalogHandler {
	return &CatalogHandler{
		logger:      logger,
		interpreter: deps.Interpreter,
		symptoms:    deps.Symptoms,
		validator:   deps.Validator,
		recommender: deps.Recommender,
		taxonomy:    deps.Taxonomy,
		knowledge:   deps.Knowledge,
		recorder:    deps.Recorder,
	}
}

// AnalyzeRequestDTO is the body of POST /analyze.
type AnalyzeRequestDTO struct {
	Query      string  `json:"query"`
	CustomerID *string `json:"customerId,omitempty"`
}

// Analyze handles POST /analyze.
func (h *CatalogHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	analysis, err := h.interpreter.Analyze(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if h.recorder != nil {
		err := h.recorder.LogQueryAnalyzed(r.Context(), r.Header.Get(SessionHeader), req.CustomerID, req.Query, analysis, analysis.Confidence, 0)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to record query analytics")
		}
	}

	writeJSON(w, http.StatusOK, analysis)
}

// SymptomRequestDTO is the body of POST /symptoms/map.
type SymptomRequestDTO struct {
	Text string `json:"text"`
}

// SymptomResponseDTO lists ranked symptom matches.
type SymptomResponseDTO struct {
	Matches []assistant.SymptomMatch `json:"matches"`
}

// MapSymptoms handles POST /symptoms/map.
func (h *CatalogHandler) MapSymptoms(w http.ResponseWriter, r *http.Request) {
	var req SymptomRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	matches, err := h.symptoms.Map(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SymptomResponseDTO{Matches: matches})
}

// Compatibility handles GET /compatibility/{modelId}/{productId}.
func (h *CatalogHandler) Compatibility(w http.ResponseWriter, r *http.Request) {
	result, err := h.validator.Validate(r.Context(), chi.URLParam(r, "modelId"), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecommendationResponseDTO lists recommendations for a model.
type RecommendationResponseDTO struct {
	MachineModelID   string                     `json:"machineModelId"`
	CurrentProductID string                     `json:"currentProductId,omitempty"`
	Recommendations  []assistant.Recommendation `json:"recommendations"`
}

// Recommendations handles GET /recommendations/{modelId}.
func (h *CatalogHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelId")
	current := r.URL.Query().Get("currentProductId")

	recs, err := h.recommender.Recommend(r.Context(), modelID, current)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendationResponseDTO{
		MachineModelID:   modelID,
		CurrentProductID: current,
		Recommendations:  recs,
	})
}

// TaxonomyResponseDTO is the full reference-data snapshot with the category tree.
type TaxonomyResponseDTO struct {
	MachineTypes  []*storage.MachineType    `json:"machineTypes"`
	Manufacturers []*storage.Manufacturer   `json:"manufacturers"`
	Models        []*storage.MachineModel   `json:"models"`
	Categories    []assistant.CategoryNode  `json:"categories"`
	Symptoms      []*storage.SymptomMapping `json:"symptoms"`
}

// Taxonomy handles GET /taxonomy.
func (h *CatalogHandler) Taxonomy(w http.ResponseWriter, r *http.Request) {
	snap, err := h.taxonomy.Load(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TaxonomyResponseDTO{
		MachineTypes:  snap.MachineTypes,
		Manufacturers: snap.Manufacturers,
		Models:        snap.Models,
		Categories:    snap.CategoryTree(),
		Symptoms:      snap.Symptoms,
	})
}

// KnowledgeResponseDTO lists matching FAQ answers.
type KnowledgeResponseDTO struct {
	Results []assistant.KnowledgeAnswer `json:"results"`
}

// SearchKnowledge handles GET /knowledge/search.
func (h *CatalogHandler) SearchKnowledge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, r, h.logger, fmt.Errorf("%w: q is required", assistant.ErrInvalidInput))
		return
	}
	limit, err := queryInt(r, "limit", 3)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	results, err := h.knowledge.Search(r.Context(), q, r.URL.Query().Get("language"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, KnowledgeResponseDTO{Results: results})
}
