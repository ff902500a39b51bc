package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// ConversationHandler serves the conversation lifecycle and the chat turn.
type ConversationHandler struct {
	logger        *observability.Logger
	conversations *assistant.ConversationService
	chat          *assistant.ChatService
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(logger *observability.Logger, conversations *assistant.ConversationService, chat *assistant.ChatService) *ConversationHandler {
	return &ConversationHandler{
		logger:        logger,
		conversations: conversations,
		chat:          chat,
	}
}

// Start handles POST /conversations.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req assistant.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	conv, err := h.conversations.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /conversations/{id}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// MessagesResponseDTO lists conversation messages oldest first.
type MessagesResponseDTO struct {
	Messages []*storage.ConversationMessage `json:"messages"`
}

// Messages handles GET /conversations/{id}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msgs, err := h.conversations.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponseDTO{Messages: msgs})
}

// PostMessageDTO is the body of POST /conversations/{id}/messages.
type PostMessageDTO struct {
	Role       storage.MessageRole `json:"role"`
	Content    string              `json:"content"`
	Intent     *string             `json:"intent,omitempty"`
	Confidence *float64            `json:"confidence,omitempty"`
}

// PostMessage handles POST /conversations/{id}/messages.
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.conversations.PostMessage(r.Context(), assistant.PostMessageRequest{
		ConversationID: chi.URLParam(r, "id"),
		Role:           req.Role,
		Content:        req.Content,
		Intent:         req.Intent,
		Confidence:     req.Confidence,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// EscalateDTO is the body of POST /conversations/{id}/escalate.
type EscalateDTO struct {
	Priority storage.Priority `json:"priority,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// Escalate handles POST /conversations/{id}/escalate.
func (h *ConversationHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req EscalateDTO
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	entry, err := h.conversations.Escalate(r.Context(), chi.URLParam(r, "id"), req.Priority, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Close handles POST /conversations/{id}/close.
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SetContextDTO is the body of PUT /conversations/{id}/context/{type}.
// A missing or zero ttlSeconds uses the configured TTL; a negative one never expires.
type SetContextDTO struct {
	Data       json.RawMessage `json:"data"`
	TTLSeconds int             `json:"ttlSeconds,omitempty"`
}

// SetContext handles PUT /conversations/{id}/context/{type}.
func (h *ConversationHandler) SetContext(w http.ResponseWriter, r *http.Request) {
	var req SetContextDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	entry, err := h.conversations.SetContext(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "type"), req.Data, ttl)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ContextResponseDTO lists unexpired context entries.
type ContextResponseDTO struct {
	Entries []*storage.ContextEntry `json:"entries"`
}

// GetContext handles GET /conversations/{id}/context.
func (h *ConversationHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	entries, err := h.conversations.GetContext(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponseDTO{Entries: entries})
}

// MachinesResponseDTO lists a customer's remembered machines.
type MachinesResponseDTO struct {
	Machines []*storage.CustomerMachine `json:"machines"`
}

// CustomerMachines handles GET /customers/{customerId}/machines.
func (h *ConversationHandler) CustomerMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := h.conversations.CustomerMachines(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if machines == nil {
		machines = []*storage.CustomerMachine{}
	}
	writeJSON(w, http.StatusOK, MachinesResponseDTO{Machines: machines})
}

// Chat handles POST /chat.
func (h *ConversationHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.chat.Handle(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
