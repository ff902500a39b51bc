package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// KnowledgeRepository handles intent mappings, the FAQ knowledge base and quick replies.
type KnowledgeRepository struct {
	db DB
}

// NewKnowledgeRepository creates a new knowledge repository.
func NewKnowledgeRepository(db DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// UpsertIntent creates or replaces an intent mapping.
func (r *KnowledgeRepository) UpsertIntent(ctx context.Context, im *IntentMapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO intent_mappings (id, intent_name, patterns, keywords, confidence_threshold, action, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			intent_name = excluded.intent_name, patterns = excluded.patterns, keywords = excluded.keywords,
			confidence_threshold = excluded.confidence_threshold, action = excluded.action, metadata = excluded.metadata
	`, im.ID, im.IntentName, encodeStrings(im.Patterns), encodeStrings(im.Keywords),
		im.ConfidenceThreshold, im.Action, encodeRaw(im.Metadata, "{}"))
	return wrapErr("upsert intent mapping", err)
}

// ListIntents returns intent mappings ordered by threshold descending, then id.
func (r *KnowledgeRepository) ListIntents(ctx context.Context) ([]*IntentMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, intent_name, patterns, keywords, confidence_threshold, action, metadata
		FROM intent_mappings
		ORDER BY confidence_threshold DESC, id ASC
	`)
	if err != nil {
		return nil, wrapErr("list intent mappings", err)
	}
	return scanRows(rows, "list intent mappings", func(rows *sql.Rows) (*IntentMapping, error) {
		im := &IntentMapping{}
		var patterns, keywords, metadata string
		if err := rows.Scan(&im.ID, &im.IntentName, &patterns, &keywords,
			&im.ConfidenceThreshold, &im.Action, &metadata); err != nil {
			return nil, err
		}
		var err error
		if im.Patterns, err = decodeStrings(patterns); err != nil {
			return nil, err
		}
		if im.Keywords, err = decodeStrings(keywords); err != nil {
			return nil, err
		}
		if metadata != "" && metadata != "{}" {
			im.Metadata = json.RawMessage(metadata)
		}
		return im, nil
	})
}

// UpsertKnowledge creates or replaces a knowledge base entry.
func (r *KnowledgeRepository) UpsertKnowledge(ctx context.Context, k *KnowledgeEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (id, category, question, question_pl, answer, answer_pl, keywords, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			category = excluded.category, question = excluded.question, question_pl = excluded.question_pl,
			answer = excluded.answer, answer_pl = excluded.answer_pl,
			keywords = excluded.keywords, priority = excluded.priority
	`, k.ID, k.Category, k.Question, k.QuestionPL, k.Answer, k.AnswerPL, encodeStrings(k.Keywords), k.Priority)
	return wrapErr("upsert knowledge entry", err)
}

// ListKnowledge returns every knowledge base entry, highest priority first.
func (r *KnowledgeRepository) ListKnowledge(ctx context.Context) ([]*KnowledgeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, question, question_pl, answer, answer_pl, keywords, priority
		FROM knowledge_base
		ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, wrapErr("list knowledge base", err)
	}
	return scanRows(rows, "list knowledge base", func(rows *sql.Rows) (*KnowledgeEntry, error) {
		k := &KnowledgeEntry{}
		var keywords string
		if err := rows.Scan(&k.ID, &k.Category, &k.Question, &k.QuestionPL, &k.Answer, &k.AnswerPL,
			&keywords, &k.Priority); err != nil {
			return nil, err
		}
		var err error
		k.Keywords, err = decodeStrings(keywords)
		return k, err
	})
}

// UpsertQuickReply creates or replaces a quick reply.
func (r *KnowledgeRepository) UpsertQuickReply(ctx context.Context, q *QuickReply) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quick_replies (id, intent, reply_text, reply_text_pl, action, display_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			intent = excluded.intent, reply_text = excluded.reply_text, reply_text_pl = excluded.reply_text_pl,
			action = excluded.action, display_order = excluded.display_order
	`, q.ID, q.Intent, q.ReplyText, q.ReplyTextPL, q.Action, q.DisplayOrder)
	return wrapErr("upsert quick reply", err)
}

// ListQuickReplies returns the quick replies of an intent in display order.
func (r *KnowledgeRepository) ListQuickReplies(ctx context.Context, intent string, limit int) ([]*QuickReply, error) {
	if limit <= 0 {
		limit = 4
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, intent, reply_text, reply_text_pl, action, display_order
		FROM quick_replies
		WHERE intent = $1
		ORDER BY display_order ASC, id ASC
		LIMIT $2
	`, intent, limit)
	if err != nil {
		return nil, wrapErr("list quick replies", err)
	}
	return scanRows(rows, "list quick replies", func(rows *sql.Rows) (*QuickReply, error) {
		q := &QuickReply{}
		err := rows.Scan(&q.ID, &q.Intent, &q.ReplyText, &q.ReplyTextPL, &q.Action, &q.DisplayOrder)
		return q, err
	})
}

// AnalyticsRepository handles assistant and search analytics.
type AnalyticsRepository struct {
	db DB
}

// NewAnalyticsRepository creates a new analytics repository.
func NewAnalyticsRepository(db DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// RecordEvent stores an assistant analytics event.
func (r *AnalyticsRepository) RecordEvent(ctx context.Context, e *AnalyticsEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = dbTime(e.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assistant_analytics (id, conversation_id, session_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ConversationID, e.SessionID, e.EventType, encodeRaw(e.Payload, "{}"), e.CreatedAt)
	return wrapErr("record analytics event", err)
}

// ListEvents returns events of a type (all types when empty), newest first.
func (r *AnalyticsRepository) ListEvents(ctx context.Context, eventType string, limit int) ([]*AnalyticsEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, session_id, event_type, payload, created_at
		FROM assistant_analytics
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY created_at DESC, id ASC
		LIMIT $2
	`, eventType, limit)
	if err != nil {
		return nil, wrapErr("list analytics events", err)
	}
	return scanRows(rows, "list analytics events", func(rows *sql.Rows) (*AnalyticsEvent, error) {
		e := &AnalyticsEvent{}
		var payload string
		err := rows.Scan(&e.ID, &e.ConversationID, &e.SessionID, &e.EventType, &payload, &e.CreatedAt)
		e.Payload = json.RawMessage(payload)
		return e, err
	})
}

// CountEvents returns how many events of a type were recorded.
func (r *AnalyticsRepository) CountEvents(ctx context.Context, eventType string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assistant_analytics WHERE event_type = $1`, eventType).Scan(&n)
	if err != nil {
		return 0, wrapErr("count analytics events", err)
	}
	return n, nil
}

// RecordSearch stores one analyzed query.
func (r *AnalyticsRepository) RecordSearch(ctx context.Context, s *SearchAnalytics) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.CreatedAt = dbTime(s.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO search_analytics (id, session_id, customer_id, query, analysis, confidence, result_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.SessionID, s.CustomerID, s.Query, encodeRaw(s.Analysis, "{}"), s.Confidence, s.ResultCount, s.CreatedAt)
	return wrapErr("record search analytics", err)
}
