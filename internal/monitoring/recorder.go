// Package monitoring records assistant analytics and publishes escalation notifications.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// Analytics event types.
const (
	EventQueryAnalyzed         = "query_analyzed"
	EventMessageHandled        = "message_handled"
	EventConversationEscalated = "conversation_escalated"
	EventEscalationAssigned    = "escalation_assigned"
	EventEscalationResolved    = "escalation_resolved"
)

// EscalationChannel is the pub/sub channel agent dashboards subscribe to.
const EscalationChannel = "escalations"

// Recorder persists analytics events and fans escalation changes out to subscribers.
type Recorder struct {
	logger    *observability.Logger
	repo      *storage.AnalyticsRepository
	publisher cache.Publisher
	now       func() time.Time
}

// Event is one analytics record before persistence.
type Event struct {
	ConversationID *string
	SessionID      string
	Type           string
	Payload        map[string]any
	OccurredAt     time.Time
}

// EscalationNotice is the message published for every escalation change.
type EscalationNotice struct {
	Event          string                   `json:"event"`
	EntryID        string                   `json:"entryId"`
	ConversationID string                   `json:"conversationId"`
	Priority       storage.Priority         `json:"priority"`
	Status         storage.EscalationStatus `json:"status"`
	AssignedTo     *string                  `json:"assignedTo,omitempty"`
	OccurredAt     time.Time                `json:"occurredAt"`
}

// NewRecorder creates a new analytics recorder. publisher may be nil.
func NewRecorder(logger *observability.Logger, repo *storage.AnalyticsRepository, publisher cache.Publisher) *Recorder {
	return &Recorder{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// RecordEvent stores an analytics event.
func (r *Recorder) RecordEvent(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}

	var payload json.RawMessage
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("encode analytics payload: %w", err)
		}
		payload = data
	}

	r.logger.Debug().
		Str("event_type", event.Type).
		Str("session_id", event.SessionID).
		Msg("Analytics event")

	return r.repo.RecordEvent(ctx, &storage.AnalyticsEvent{
		ID:             uuid.New().String(),
		ConversationID: event.ConversationID,
		SessionID:      event.SessionID,
		EventType:      event.Type,
		Payload:        payload,
		CreatedAt:      event.OccurredAt,
	})
}

// LogQueryAnalyzed records an analyzed query together with a search analytics row.
func (r *Recorder) LogQueryAnalyzed(ctx context.Context, sessionID string, customerID *string, query string, analysis any, confidence int, resultCount int) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	if err := r.repo.RecordSearch(ctx, &storage.SearchAnalytics{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		CustomerID:  customerID,
		Query:       query,
		Analysis:    data,
		Confidence:  float64(confidence),
		ResultCount: resultCount,
		CreatedAt:   r.now(),
	}); err != nil {
		return err
	}

	return r.RecordEvent(ctx, Event{
		SessionID: sessionID,
		Type:      EventQueryAnalyzed,
		Payload: map[string]any{
			"query":      query,
			"confidence": confidence,
		},
	})
}

// LogMessageHandled records one completed assistant turn.
func (r *Recorder) LogMessageHandled(ctx context.Context, conversationID, sessionID, intent string, confidence float64, actions []string) error {
	return r.RecordEvent(ctx, Event{
		ConversationID: &conversationID,
		SessionID:      sessionID,
		Type:           EventMessageHandled,
		Payload: map[string]any{
			"intent":     intent,
			"confidence": confidence,
			"actions":    actions,
		},
	})
}

// LogEscalation records an escalation change and publishes it to agent dashboards.
// A publish failure is logged, not returned.
func (r *Recorder) LogEscalation(ctx context.Context, eventType string, entry *storage.EscalationEntry) error {
	notice := EscalationNotice{
		Event:          eventType,
		EntryID:        entry.ID,
		ConversationID: entry.ConversationID,
		Priority:       entry.Priority,
		Status:         entry.Status,
		AssignedTo:     entry.AssignedTo,
		OccurredAt:     r.now(),
	}

	r.logger.Info().
		Str("event_type", eventType).
		Str("escalation_id", entry.ID).
		Str("conversation_id", entry.ConversationID).
		Str("priority", string(entry.Priority)).
		Msg("Escalation event")

	payload := map[string]any{
		"escalation_id": entry.ID,
		"priority":      string(entry.Priority),
		"status":        string(entry.Status),
		"reason":        entry.Reason,
	}
	if entry.AssignedTo != nil {
		payload["assigned_to"] = *entry.AssignedTo
	}

	conversationID := entry.ConversationID
	if err := r.RecordEvent(ctx, Event{
		ConversationID: &conversationID,
		Type:           eventType,
		Payload:        payload,
		OccurredAt:     notice.OccurredAt,
	}); err != nil {
		return err
	}

	r.publish(ctx, notice)
	return nil
}

func (r *Recorder) publish(ctx context.Context, notice EscalationNotice) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, EscalationChannel, notice); err != nil {
		r.logger.Warn().Err(err).Str("escalation_id", notice.EntryID).Msg("Failed to publish escalation notice")
	}
}

// Events lists recorded events of one type, or all types when eventType is empty, newest first.
func (r *Recorder) Events(ctx context.Context, eventType string, limit int) ([]*storage.AnalyticsEvent, error) {
	return r.repo.ListEvents(ctx, eventType, limit)
}
