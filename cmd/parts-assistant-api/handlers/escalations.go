package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// EscalationHandler serves the human escalation queue and support desk status.
type EscalationHandler struct {
	logger        *observability.Logger
	conversations *assistant.ConversationService
	support       *assistant.SupportDesk
	now           func() time.Time
}

// NewEscalationHandler creates a new escalation handler.
func NewEscalationHandler(logger *observability.Logger, conversations *assistant.ConversationService, support *assistant.SupportDesk, now func() time.Time) *EscalationHandler {
	if now == nil {
		now = time.Now
	}
	return &EscalationHandler{
		logger:        logger,
		conversations: conversations,
		support:       support,
		now:           now,
	}
}

// EscalationsResponseDTO lists escalation entries oldest first.
type EscalationsResponseDTO struct {
	Escalations []*storage.EscalationEntry `json:"escalations"`
}

// List handles GET /escalations.
func (h *EscalationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := storage.EscalationStatus(r.URL.Query().Get("status"))
	entries, err := h.conversations.ListEscalations(r.Context(), status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*storage.EscalationEntry{}
	}
	writeJSON(w, http.StatusOK, EscalationsResponseDTO{Escalations: entries})
}

// Queue handles GET /escalations/{id}/queue.
func (h *EscalationHandler) Queue(w http.ResponseWriter, r *http.Request) {
	status, err := h.conversations.QueueStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// AssignDTO is the body of POST /escalations/{id}/assign.
type AssignDTO struct {
	AgentID string `json:"agentId"`
}

// Assign handles POST /escalations/{id}/assign.
func (h *EscalationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entry, err := h.conversations.Assign(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Resolve handles POST /escalations/{id}/resolve.
func (h *EscalationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	entry, err := h.conversations.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// SupportAvailability handles GET /support/availability.
func (h *EscalationHandler) SupportAvailability(w http.ResponseWriter, r *http.Request) {
	language := strings.ToLower(r.URL.Query().Get("language"))
	switch language {
	case "", assistant.LanguageEnglish, assistant.LanguagePolish:
	default:
		writeError(w, r, h.logger, fmt.Errorf("%w: unsupported language %q", assistant.ErrInvalidInput, language))
		return
	}

	status, err := h.support.Availability(r.Context(), h.now(), language)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
