package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/monitoring"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// StartRequest opens a conversation.
type StartRequest struct {
	SessionID  string  `json:"sessionId"`
	CustomerID *string `json:"customerId,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// PostMessageRequest appends one message to a conversation.
type PostMessageRequest struct {
	ConversationID string              `json:"conversationId"`
	Role           storage.MessageRole `json:"role"`
	Content        string              `json:"content"`
	Intent         *string             `json:"intent,omitempty"`
	Confidence     *float64            `json:"confidence,omitempty"`
}

// QueueStatus is an escalation entry's place in the pending queue.
// Position is 1-based and zero once the entry has left the queue.
type QueueStatus struct {
	Entry                *storage.EscalationEntry `json:"entry"`
	Position             int                      `json:"position"`
	PendingCount         int                      `json:"pendingCount"`
	EstimatedWaitMinutes int                      `json:"estimatedWaitMinutes"`
}

// ConversationService owns the conversation lifecycle and the escalation queue.
// Mutations are serialized per conversation id.
type ConversationService struct {
	repos    *storage.Repositories
	db       storage.TxBeginner
	recorder *monitoring.Recorder
	cache    cache.Client
	cfg      config.AssistantConfig
	logger   *observability.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// ConversationOption customizes a ConversationService.
type ConversationOption func(*ConversationService)

// WithRecorder records escalation analytics and publishes escalation notices.
func WithRecorder(r *monitoring.Recorder) ConversationOption {
	return func(s *ConversationService) { s.recorder = r }
}

// WithContextCache mirrors context entries into a cache.
func WithContextCache(c cache.Client) ConversationOption {
	return func(s *ConversationService) { s.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ConversationOption {
	return func(s *ConversationService) { s.now = now }
}

// NewConversationService creates a new conversation service. db is used to run
// multi-row transitions atomically; when nil they run without a transaction.
func NewConversationService(repos *storage.Repositories, db storage.TxBeginner, cfg config.AssistantConfig, logger *observability.Logger, opts ...ConversationOption) *ConversationService {
	s := &ConversationService{
		repos:  repos,
		db:     db,
		cfg:    cfg,
		logger: logger,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConversationService) clock() time.Time {
	return s.now().UTC()
}

// inTx runs fn inside a transaction when one is available.
func (s *ConversationService) inTx(ctx context.Context, fn func(*storage.Repositories) error) error {
	if s.db == nil {
		return fn(s.repos)
	}
	return storage.WithTx(ctx, s.db, fn)
}

// Start opens a new active conversation.
func (s *ConversationService) Start(ctx context.Context, req StartRequest) (*storage.Conversation, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	language := req.Language
	if language == "" {
		language = s.cfg.DefaultLanguage
	}

	now := s.clock()
	conv := &storage.Conversation{
		CustomerID:    req.CustomerID,
		SessionID:     req.SessionID,
		Status:        storage.ConversationActive,
		Language:      language,
		StartedAt:     now,
		LastMessageAt: now,
	}
	if err := s.repos.Conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	s.logger.WithSession(conv.SessionID).WithConversation(conv.ID).Info().
		Str("language", conv.Language).
		Msg("Conversation started")

	return conv, nil
}

// Get returns a conversation by id.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*storage.Conversation, error) {
	conv, err := s.repos.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", conversationID, err)
	}
	return conv, nil
}

// PostMessage appends a message and advances last_message_at. Closed conversations reject messages.
func (s *ConversationService) PostMessage(ctx context.Context, req PostMessageRequest) (*storage.ConversationMessage, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	conv, err := s.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == storage.ConversationClosed {
		return nil, fmt.Errorf("%w: conversation %s is closed", ErrInvalidState, conv.ID)
	}

	msg := &storage.ConversationMessage{
		ConversationID: conv.ID,
		Role:           req.Role,
		Content:        req.Content,
		Intent:         req.Intent,
		Confidence:     req.Confidence,
		CreatedAt:      s.clock(),
	}
	err = s.inTx(ctx, func(r *storage.Repositories) error {
		return r.Conversations.AppendMessage(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// History returns up to limit most recent messages, oldest first. A non-positive limit uses the configured default.
func (s *ConversationService) History(ctx context.Context, conversationID string, limit int) ([]*storage.ConversationMessage, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	msgs, err := s.repos.Conversations.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Escalate hands an active conversation to the human queue. An empty priority uses the configured default.
func (s *ConversationService) Escalate(ctx context.Context, conversationID string, priority storage.Priority, reason string) (*storage.EscalationEntry, error) {
	if priority == "" {
		priority = storage.Priority(s.cfg.DefaultPriority)
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	var entry *storage.EscalationEntry
	err := s.inTx(ctx, func(r *storage.Repositories) error {
		conv, err := r.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("get conversation %s: %w", conversationID, err)
		}
		if conv.Status != storage.ConversationActive {
			return fmt.Errorf("%w: conversation %s is %s", ErrInvalidState, conv.ID, conv.Status)
		}

		now := s.clock()
		conv.Status = storage.ConversationEscalated
		conv.EscalatedAt = &now
		if err := r.Conversations.Transition(ctx, conv, storage.ConversationActive); err != nil {
			return transitionErr("mark conversation escalated", err)
		}

		entry = &storage.EscalationEntry{
			ConversationID: conv.ID,
			CustomerID:     conv.CustomerID,
			Priority:       priority,
			Reason:         reason,
			Status:         storage.EscalationPending,
			CreatedAt:      now,
		}
		if err := r.Escalations.Create(ctx, entry); err != nil {
			return fmt.Errorf("create escalation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithConversation(conversationID).Info().
		Str("escalation_id", entry.ID).
		Str("priority", string(entry.Priority)).
		Str("reason", reason).
		Msg("Conversation escalated")
	s.recordEscalation(ctx, monitoring.EventConversationEscalated, entry)

	return entry, nil
}

// Assign lets an agent claim a pending entry.
func (s *ConversationService) Assign(ctx context.Context, entryID, agentID string) (*storage.EscalationEntry, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}

	current, err := s.getEscalation(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(current.ConversationID)
	defer unlock()

	var entry *storage.EscalationEntry
	err = s.inTx(ctx, func(r *storage.Repositories) error {
		e, err := r.Escalations.GetByID(ctx, entryID)
		if err != nil {
			return fmt.Errorf("get escalation %s: %w", entryID, err)
		}
		if e.Status != storage.EscalationPending {
			return fmt.Errorf("%w: escalation %s is %s", ErrInvalidState, e.ID, e.Status)
		}

		now := s.clock()
		agent := agentID
		e.Status = storage.EscalationAssigned
		e.AssignedTo = &agent
		e.AssignedAt = &now
		if err := r.Escalations.Transition(ctx, e, storage.EscalationPending); err != nil {
			return transitionErr("transition escalation", err)
		}

		conv, err := r.Conversations.GetByID(ctx, e.ConversationID)
		if err != nil {
			return fmt.Errorf("get conversation %s: %w", e.ConversationID, err)
		}
		conv.EscalatedTo = &agent
		if err := r.Conversations.Transition(ctx, conv, conv.Status); err != nil {
			return transitionErr("record assigned agent", err)
		}

		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithConversation(entry.ConversationID).Info().
		Str("escalation_id", entry.ID).
		Str("agent_id", agentID).
		Msg("Escalation assigned")
	s.recordEscalation(ctx, monitoring.EventEscalationAssigned, entry)

	return entry, nil
}

// Resolve closes out an assigned entry. The conversation itself stays escalated until closed.
func (s *ConversationService) Resolve(ctx context.Context, entryID string) (*storage.EscalationEntry, error) {
	current, err := s.getEscalation(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(current.ConversationID)
	defer unlock()

	e, err := s.getEscalation(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.Status != storage.EscalationAssigned {
		return nil, fmt.Errorf("%w: escalation %s is %s", ErrInvalidState, e.ID, e.Status)
	}

	now := s.clock()
	e.Status = storage.EscalationResolved
	e.ResolvedAt = &now
	if err := s.repos.Escalations.Transition(ctx, e, storage.EscalationAssigned); err != nil {
		return nil, transitionErr("transition escalation", err)
	}

	s.logger.WithConversation(e.ConversationID).Info().
		Str("escalation_id", e.ID).
		Msg("Escalation resolved")
	s.recordEscalation(ctx, monitoring.EventEscalationResolved, e)

	return e, nil
}

// Close ends an active or escalated conversation.
func (s *ConversationService) Close(ctx context.Context, conversationID string) (*storage.Conversation, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == storage.ConversationClosed {
		return nil, fmt.Errorf("%w: conversation %s is already closed", ErrInvalidState, conv.ID)
	}

	now := s.clock()
	from := conv.Status
	conv.Status = storage.ConversationClosed
	conv.ClosedAt = &now
	if err := s.repos.Conversations.Transition(ctx, conv, from); err != nil {
		return nil, transitionErr("close conversation", err)
	}
	s.dropCachedContext(ctx, conv.ID)

	s.logger.WithSession(conv.SessionID).WithConversation(conv.ID).Info().Msg("Conversation closed")
	return conv, nil
}

// ListEscalations returns entries with the given status, or all entries for an empty status, oldest first.
func (s *ConversationService) ListEscalations(ctx context.Context, status storage.EscalationStatus) ([]*storage.EscalationEntry, error) {
	switch status {
	case "", storage.EscalationPending, storage.EscalationAssigned, storage.EscalationResolved:
	default:
		return nil, fmt.Errorf("%w: unknown escalation status %q", ErrInvalidInput, status)
	}
	entries, err := s.repos.Escalations.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	return entries, nil
}

// QueueStatus reports where an entry sits among pending entries and the estimated wait.
func (s *ConversationService) QueueStatus(ctx context.Context, entryID string) (*QueueStatus, error) {
	entry, err := s.getEscalation(ctx, entryID)
	if err != nil {
		return nil, err
	}

	pending, err := s.repos.Escalations.List(ctx, storage.EscalationPending)
	if err != nil {
		return nil, fmt.Errorf("list pending escalations: %w", err)
	}

	status := &QueueStatus{Entry: entry, PendingCount: len(pending)}
	if entry.Status != storage.EscalationPending {
		return status, nil
	}
	for i, e := range pending {
		if e.ID == entry.ID {
			status.Position = i + 1
			break
		}
	}
	status.EstimatedWaitMinutes = status.Position * s.cfg.WaitMinutesPerPosition
	return status, nil
}

// SetContext stores a context entry. A positive ttl sets the expiry, zero uses the configured
// context TTL and a negative ttl keeps the entry until it is replaced.
func (s *ConversationService) SetContext(ctx context.Context, conversationID, contextType string, data json.RawMessage, ttl time.Duration) (*storage.ContextEntry, error) {
	if strings.TrimSpace(contextType) == "" {
		return nil, fmt.Errorf("%w: context type is required", ErrInvalidInput)
	}
	if len(data) == 0 || !json.Valid(data) {
		return nil, fmt.Errorf("%w: context data must be valid JSON", ErrInvalidInput)
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	now := s.clock()
	if ttl == 0 {
		ttl = s.cfg.ContextTTL
	}
	entry := &storage.ContextEntry{
		ConversationID: conversationID,
		ContextType:    contextType,
		Data:           data,
		UpdatedAt:      now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	if err := s.repos.Conversations.UpsertContext(ctx, entry); err != nil {
		return nil, fmt.Errorf("set context: %w", err)
	}
	s.cacheContext(ctx, entry, ttl)

	return entry, nil
}

// GetContext returns the unexpired context entries of a conversation.
func (s *ConversationService) GetContext(ctx context.Context, conversationID string) ([]*storage.ContextEntry, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	entries, err := s.repos.Conversations.ListContext(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}

	now := s.clock()
	live := make([]*storage.ContextEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	return live, nil
}

// ContextValue returns one unexpired context entry, or ErrNotFound.
func (s *ConversationService) ContextValue(ctx context.Context, conversationID, contextType string) (*storage.ContextEntry, error) {
	now := s.clock()

	if s.cache != nil {
		data, err := s.cache.Get(ctx, cache.ConversationContextKey(conversationID, contextType))
		if err == nil {
			var entry storage.ContextEntry
			if json.Unmarshal(data, &entry) == nil && !entry.Expired(now) {
				return &entry, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Context cache read failed")
		}
	}

	entries, err := s.repos.Conversations.ListContext(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	for _, e := range entries {
		if e.ContextType == contextType && !e.Expired(now) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("context %s of conversation %s: %w", contextType, conversationID, ErrNotFound)
}

// PurgeExpiredContext deletes expired context entries. Readers never depend on it.
func (s *ConversationService) PurgeExpiredContext(ctx context.Context) (int64, error) {
	n, err := s.repos.Conversations.DeleteExpiredContext(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("purge expired context: %w", err)
	}
	return n, nil
}

// RememberMachine records that a customer mentioned a machine model. The first machine a
// customer mentions becomes primary; later ones never demote it.
func (s *ConversationService) RememberMachine(ctx context.Context, customerID string, analysis *QueryAnalysis) (*storage.CustomerMachine, error) {
	if customerID == "" || analysis == nil || analysis.Model == nil {
		return nil, fmt.Errorf("%w: customer id and model are required", ErrInvalidInput)
	}

	unlock := s.locks.Lock("customer:" + customerID)
	defer unlock()

	count, err := s.repos.Conversations.CountCustomerMachines(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("count customer machines: %w", err)
	}

	machine, err := s.repos.Conversations.UpsertCustomerMachine(ctx, &storage.CustomerMachine{
		CustomerID:      customerID,
		MachineTypeID:   analysis.MachineType,
		ManufacturerID:  analysis.Manufacturer,
		MachineModelID:  *analysis.Model,
		IsPrimary:       count == 0,
		LastMentionedAt: s.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("remember customer machine: %w", err)
	}
	return machine, nil
}

// CustomerMachines lists a customer's machines, most recently mentioned first.
func (s *ConversationService) CustomerMachines(ctx context.Context, customerID string) ([]*storage.CustomerMachine, error) {
	machines, err := s.repos.Conversations.ListCustomerMachines(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer machines: %w", err)
	}
	return machines, nil
}

// PendingCount returns the number of entries waiting for an agent.
func (s *ConversationService) PendingCount(ctx context.Context) (int, error) {
	n, err := s.repos.Escalations.CountPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending escalations: %w", err)
	}
	return n, nil
}

func (s *ConversationService) getEscalation(ctx context.Context, entryID string) (*storage.EscalationEntry, error) {
	e, err := s.repos.Escalations.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("get escalation %s: %w", entryID, err)
	}
	return e, nil
}

func (s *ConversationService) cacheContext(ctx context.Context, entry *storage.ContextEntry, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.cfg.ContextTTL
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := cache.ConversationContextKey(entry.ConversationID, entry.ContextType)
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Context cache write failed")
	}
}

// dropCachedContext removes every mirrored context entry of a conversation.
func (s *ConversationService) dropCachedContext(ctx context.Context, conversationID string) {
	if s.cache == nil {
		return
	}
	prefix := cache.ConversationContextKey(conversationID) + ":"
	if err := s.cache.DeleteByPrefix(ctx, prefix); err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("Context cache cleanup failed")
	}
}

func (s *ConversationService) recordEscalation(ctx context.Context, eventType string, entry *storage.EscalationEntry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.LogEscalation(ctx, eventType, entry); err != nil {
		s.logger.Warn().Err(err).Str("escalation_id", entry.ID).Msg("Failed to record escalation event")
	}
}

// transitionErr reports a lost compare-and-set as ErrInvalidState.
func transitionErr(op string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
