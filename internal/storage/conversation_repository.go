package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationRepository handles conversations, their messages, context entries and customer machines.
type ConversationRepository struct {
	db DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	c.StartedAt = dbTime(c.StartedAt)
	c.LastMessageAt = dbTime(c.LastMessageAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, customer_id, session_id, status, language, started_at, last_message_at,
			escalated_at, escalated_to, closed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.CustomerID, c.SessionID, string(c.Status), c.Language, c.StartedAt, c.LastMessageAt,
		dbTimePtr(c.EscalatedAt), c.EscalatedTo, dbTimePtr(c.ClosedAt), encodeRaw(c.Metadata, "{}"))
	return wrapErr("create conversation", err)
}

// GetByID retrieves a conversation by ID.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{}
	var status, metadata string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, session_id, status, language, started_at, last_message_at,
			escalated_at, escalated_to, closed_at, metadata
		FROM conversations
		WHERE id = $1
	`, id).Scan(&c.ID, &c.CustomerID, &c.SessionID, &status, &c.Language, &c.StartedAt, &c.LastMessageAt,
		&c.EscalatedAt, &c.EscalatedTo, &c.ClosedAt, &metadata)
	if err != nil {
		return nil, wrapErr("get conversation", err)
	}
	c.Status = ConversationStatus(status)
	if metadata != "" && metadata != "{}" {
		c.Metadata = json.RawMessage(metadata)
	}
	return c, nil
}

// Transition persists the lifecycle fields of a conversation only while its stored
// status still equals from. A conversation that moved on returns ErrConflict.
func (r *ConversationRepository) Transition(ctx context.Context, c *Conversation, from ConversationStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $1, escalated_at = $2, escalated_to = $3, closed_at = $4
		WHERE id = $5 AND status = $6
	`, string(c.Status), dbTimePtr(c.EscalatedAt), c.EscalatedTo, dbTimePtr(c.ClosedAt), c.ID, string(from))
	if err != nil {
		return wrapErr("transition conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("transition conversation", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: conversation %s is no longer %s", ErrConflict, c.ID, from)
	}
	return nil
}

// Touch advances last_message_at. The stored value never moves backwards.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = CASE WHEN last_message_at > $1 THEN last_message_at ELSE $1 END
		WHERE id = $2
	`, dbTime(at), id)
	if err != nil {
		return wrapErr("touch conversation", err)
	}
	return requireAffected(res, "touch conversation")
}

// CountBySession returns how many conversations a session has started.
func (r *ConversationRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, wrapErr("count conversations", err)
	}
	return n, nil
}

// AppendMessage stores a message with the next sequence number of its conversation
// and advances the conversation's last_message_at.
// Callers serialize appends per conversation; the unique (conversation_id, seq) index backs that up.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *ConversationMessage) error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = dbTime(m.CreatedAt)

	var maxSeq sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM conversation_messages WHERE conversation_id = $1
	`, m.ConversationID).Scan(&maxSeq)
	if err != nil {
		return wrapErr("next message seq", err)
	}
	m.Seq = maxSeq.Int64 + 1

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, seq, role, content, intent, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ConversationID, m.Seq, string(m.Role), m.Content, m.Intent, m.Confidence, m.CreatedAt)
	if err != nil {
		return wrapErr("append message", err)
	}

	return r.Touch(ctx, m.ConversationID, m.CreatedAt)
}

// ListMessages returns the messages of a conversation ordered by created_at, then sequence.
// A positive limit keeps only the most recent messages, still oldest first.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]*ConversationMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, intent, confidence, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`, conversationID)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	msgs, err := scanRows(rows, "list messages", func(rows *sql.Rows) (*ConversationMessage, error) {
		m := &ConversationMessage{}
		var role string
		err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &role, &m.Content, &m.Intent, &m.Confidence, &m.CreatedAt)
		m.Role = MessageRole(role)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// UpsertContext creates or replaces the entry of the given type for a conversation.
func (r *ConversationRepository) UpsertContext(ctx context.Context, e *ContextEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.UpdatedAt = dbTime(e.UpdatedAt)
	e.ExpiresAt = dbTimePtr(e.ExpiresAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assistant_context (id, conversation_id, context_type, context_data, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, context_type) DO UPDATE SET
			context_data = excluded.context_data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, e.ID, e.ConversationID, e.ContextType, encodeRaw(e.Data, "null"), e.ExpiresAt, e.UpdatedAt)
	return wrapErr("upsert context", err)
}

// ListContext returns every stored context entry of a conversation, expired ones included.
func (r *ConversationRepository) ListContext(ctx context.Context, conversationID string) ([]*ContextEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, context_type, context_data, expires_at, updated_at
		FROM assistant_context
		WHERE conversation_id = $1
		ORDER BY context_type ASC
	`, conversationID)
	if err != nil {
		return nil, wrapErr("list context", err)
	}
	return scanRows(rows, "list context", func(rows *sql.Rows) (*ContextEntry, error) {
		e := &ContextEntry{}
		var data string
		err := rows.Scan(&e.ID, &e.ConversationID, &e.ContextType, &data, &e.ExpiresAt, &e.UpdatedAt)
		e.Data = json.RawMessage(data)
		return e, err
	})
}

// DeleteExpiredContext removes entries that expired before now and reports how many were removed.
func (r *ConversationRepository) DeleteExpiredContext(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM assistant_context WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, dbTime(now))
	if err != nil {
		return 0, wrapErr("delete expired context", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete expired context", err)
	}
	return n, nil
}

// UpsertCustomerMachine records a mention of a customer's machine.
// A repeated mention refreshes last_mentioned_at and keeps an existing primary flag.
func (r *ConversationRepository) UpsertCustomerMachine(ctx context.Context, m *CustomerMachine) (*CustomerMachine, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.LastMentionedAt = dbTime(m.LastMentionedAt)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.LastMentionedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_machines (id, customer_id, machine_type_id, manufacturer_id, machine_model_id,
			year, nickname, is_primary, last_mentioned_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (customer_id, machine_model_id) DO UPDATE SET
			machine_type_id = COALESCE(excluded.machine_type_id, customer_machines.machine_type_id),
			manufacturer_id = COALESCE(excluded.manufacturer_id, customer_machines.manufacturer_id),
			year = COALESCE(excluded.year, customer_machines.year),
			nickname = COALESCE(excluded.nickname, customer_machines.nickname),
			is_primary = (customer_machines.is_primary OR excluded.is_primary),
			last_mentioned_at = excluded.last_mentioned_at
	`, m.ID, m.CustomerID, m.MachineTypeID, m.ManufacturerID, m.MachineModelID,
		m.Year, m.Nickname, m.IsPrimary, m.LastMentionedAt, dbTime(m.CreatedAt))
	if err != nil {
		return nil, wrapErr("upsert customer machine", err)
	}

	stored := &CustomerMachine{}
	err = r.db.QueryRowContext(ctx, `SELECT `+customerMachineColumns+`
		FROM customer_machines WHERE customer_id = $1 AND machine_model_id = $2
	`, m.CustomerID, m.MachineModelID).Scan(customerMachineFields(stored)...)
	if err != nil {
		return nil, wrapErr("reload customer machine", err)
	}
	return stored, nil
}

const customerMachineColumns = `id, customer_id, machine_type_id, manufacturer_id, machine_model_id,
	year, nickname, is_primary, last_mentioned_at, created_at`

func customerMachineFields(m *CustomerMachine) []any {
	return []any{&m.ID, &m.CustomerID, &m.MachineTypeID, &m.ManufacturerID, &m.MachineModelID,
		&m.Year, &m.Nickname, &m.IsPrimary, &m.LastMentionedAt, &m.CreatedAt}
}

// ListCustomerMachines returns a customer's machines, most recently mentioned first.
func (r *ConversationRepository) ListCustomerMachines(ctx context.Context, customerID string) ([]*CustomerMachine, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+customerMachineColumns+`
		FROM customer_machines
		WHERE customer_id = $1
		ORDER BY last_mentioned_at DESC, id ASC
	`, customerID)
	if err != nil {
		return nil, wrapErr("list customer machines", err)
	}
	return scanRows(rows, "list customer machines", func(rows *sql.Rows) (*CustomerMachine, error) {
		m := &CustomerMachine{}
		err := rows.Scan(customerMachineFields(m)...)
		return m, err
	})
}

// CountCustomerMachines returns how many machines a customer has on record.
func (r *ConversationRepository) CountCustomerMachines(ctx context.Context, customerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customer_machines WHERE customer_id = $1`, customerID).Scan(&n)
	if err != nil {
		return 0, wrapErr("count customer machines", err)
	}
	return n, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// EscalationRepository handles escalation_queue operations.
type EscalationRepository struct {
	db DB
}

// NewEscalationRepository creates a new escalation repository.
func NewEscalationRepository(db DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `id, conversation_id, customer_id, priority, reason, status, assigned_to, assigned_at, resolved_at, created_at`

func scanEscalation(row interface{ Scan(...any) error }) (*EscalationEntry, error) {
	e := &EscalationEntry{}
	var priority, status string
	if err := row.Scan(&e.ID, &e.ConversationID, &e.CustomerID, &priority, &e.Reason, &status,
		&e.AssignedTo, &e.AssignedAt, &e.ResolvedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Priority = Priority(priority)
	e.Status = EscalationStatus(status)
	return e, nil
}

// Create inserts a new queue entry.
func (r *EscalationRepository) Create(ctx context.Context, e *EscalationEntry) error {
	if !e.Priority.Valid() {
		return fmt.Errorf("invalid escalation priority %q", e.Priority)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = EscalationPending
	}
	e.CreatedAt = dbTime(e.CreatedAt)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escalation_queue (`+escalationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.ConversationID, e.CustomerID, string(e.Priority), e.Reason, string(e.Status),
		e.AssignedTo, dbTimePtr(e.AssignedAt), dbTimePtr(e.ResolvedAt), e.CreatedAt)
	return wrapErr("create escalation", err)
}

// GetByID retrieves a queue entry by ID.
func (r *EscalationRepository) GetByID(ctx context.Context, id string) (*EscalationEntry, error) {
	e, err := scanEscalation(r.db.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalation_queue WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get escalation", err)
	}
	return e, nil
}

// Transition persists a status change, provided the stored status still equals from.
// A lost race surfaces as ErrConflict.
func (r *EscalationRepository) Transition(ctx context.Context, e *EscalationEntry, from EscalationStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escalation_queue
		SET status = $1, assigned_to = $2, assigned_at = $3, resolved_at = $4
		WHERE id = $5 AND status = $6
	`, string(e.Status), e.AssignedTo, dbTimePtr(e.AssignedAt), dbTimePtr(e.ResolvedAt), e.ID, string(from))
	if err != nil {
		return wrapErr("transition escalation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("transition escalation", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: escalation %s is no longer %s", ErrConflict, e.ID, from)
	}
	return nil
}

// List returns entries with the given status, or all entries when status is empty, oldest first.
func (r *EscalationRepository) List(ctx context.Context, status EscalationStatus) ([]*EscalationEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+escalationColumns+` FROM escalation_queue ORDER BY created_at ASC, id ASC`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+escalationColumns+`
			FROM escalation_queue WHERE status = $1 ORDER BY created_at ASC, id ASC
		`, string(status))
	}
	if err != nil {
		return nil, wrapErr("list escalations", err)
	}
	return scanRows(rows, "list escalations", func(rows *sql.Rows) (*EscalationEntry, error) {
		return scanEscalation(rows)
	})
}

// CountPending returns the number of entries waiting for an agent.
func (r *EscalationRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_queue WHERE status = $1`, string(EscalationPending)).Scan(&n)
	if err != nil {
		return 0, wrapErr("count pending escalations", err)
	}
	return n, nil
}
