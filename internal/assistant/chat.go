package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/monitoring"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// ContextCurrentMachine holds the machine resolved so far in a conversation.
const ContextCurrentMachine = "current_machine"

// Action types returned with an assistant turn.
const (
	ActionLaunchSearch          = "launch_search"
	ActionPrefillSearch         = "prefill_search"
	ActionValidateCompatibility = "validate_compatibility"
	ActionShowOrderHistory      = "show_order_history"
	ActionEscalateToHuman       = "escalate_to_human"
	ActionShowRecommendations   = "show_recommendations"
)

// ChatRequest is one inbound customer message.
type ChatRequest struct {
	ConversationID string  `json:"conversationId,omitempty"`
	SessionID      string  `json:"sessionId"`
	CustomerID     *string `json:"customerId,omitempty"`
	Language       string  `json:"language,omitempty"`
	Message        string  `json:"message"`
}

// Action is a client-side instruction attached to an assistant reply.
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// ChatResponse is the assistant's reply to one message.
type ChatResponse struct {
	ConversationID string                   `json:"conversationId"`
	Language       string                   `json:"language"`
	Message        string                   `json:"message"`
	Intent         *DetectedIntent          `json:"intent"`
	Analysis       *QueryAnalysis           `json:"analysis"`
	Actions        []Action                 `json:"actions"`
	QuickReplies   []QuickReplyOption       `json:"quickReplies"`
	Knowledge      []KnowledgeAnswer        `json:"knowledge"`
	Escalation     *storage.EscalationEntry `json:"escalation,omitempty"`
}

// CurrentMachine is the machine the conversation is about.
type CurrentMachine struct {
	MachineType  *string `json:"machineType,omitempty"`
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`
}

// ChatService runs a full assistant turn on top of the other services.
type ChatService struct {
	conversations *ConversationService
	interpreter   *Interpreter
	intents       *IntentDetector
	recommender   *Recommender
	knowledge     *KnowledgeBase
	taxonomy      *TaxonomyLoader
	recorder      *monitoring.Recorder
	cfg           config.AssistantConfig
	supportPhone  string
	logger        *observability.Logger
}

// ChatDeps groups the collaborators of a ChatService.
type ChatDeps struct {
	Conversations *ConversationService
	Interpreter   *Interpreter
	Intents       *IntentDetector
	Recommender   *Recommender
	Knowledge     *KnowledgeBase
	Taxonomy      *TaxonomyLoader
	Recorder      *monitoring.Recorder // optional
}

// NewChatService creates a new chat service.
func NewChatService(deps ChatDeps, cfg config.AssistantConfig, support config.SupportConfig, logger *observability.Logger) *ChatService {
	return &ChatService{
		conversations: deps.Conversations,
		interpreter:   deps.Interpreter,
		intents:       deps.Intents,
		recommender:   deps.Recommender,
		knowledge:     deps.Knowledge,
		taxonomy:      deps.Taxonomy,
		recorder:      deps.Recorder,
		cfg:           cfg,
		supportPhone:  support.Phone,
		logger:        logger,
	}
}

// Handle processes one customer message and returns the assistant's reply.
func (c *ChatService) Handle(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	conv, err := c.openConversation(ctx, req)
	if err != nil {
		return nil, err
	}
	log := c.logger.WithContext(ctx).WithSession(conv.SessionID).WithConversation(conv.ID)

	language := req.Language
	if language == "" {
		language = conv.Language
	}

	intent, err := c.intents.Detect(ctx, req.Message)
	if err != nil {
		return nil, err
	}
	analysis, err := c.interpreter.Analyze(ctx, req.Message)
	if err != nil {
		return nil, err
	}

	intentName, intentConf := intent.Name, intent.Confidence
	if _, err := c.conversations.PostMessage(ctx, PostMessageRequest{
		ConversationID: conv.ID,
		Role:           storage.RoleUser,
		Content:        req.Message,
		Intent:         &intentName,
		Confidence:     &intentConf,
	}); err != nil {
		return nil, err
	}

	current, err := c.mergeCurrentMachine(ctx, conv.ID, analysis)
	if err != nil {
		return nil, err
	}

	if conv.CustomerID != nil && analysis.Model != nil {
		if _, err := c.conversations.RememberMachine(ctx, *conv.CustomerID, analysis); err != nil {
			return nil, err
		}
	}

	snap, err := c.taxonomy.Load(ctx)
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{
		ConversationID: conv.ID,
		Language:       language,
		Intent:         intent,
		Analysis:       analysis,
		Message:        composeResponse(intent.Name, language, c.facts(snap, analysis, current)),
	}

	resp.Actions, err = c.actions(ctx, intent.Name, analysis, current, conv.CustomerID)
	if err != nil {
		return nil, err
	}

	if group := quickReplyGroup(intent.Name); group != "" {
		resp.QuickReplies, err = c.knowledge.QuickReplies(ctx, group, language, c.cfg.QuickReplyLimit)
		if err != nil {
			return nil, err
		}
	}
	if resp.QuickReplies == nil {
		resp.QuickReplies = []QuickReplyOption{}
	}

	resp.Knowledge, err = c.knowledge.Search(ctx, req.Message, language, c.cfg.KnowledgeResultLimit)
	if err != nil {
		return nil, err
	}

	assistantConf := intent.Confidence
	if _, err := c.conversations.PostMessage(ctx, PostMessageRequest{
		ConversationID: conv.ID,
		Role:           storage.RoleAssistant,
		Content:        resp.Message,
		Intent:         &intentName,
		Confidence:     &assistantConf,
	}); err != nil {
		return nil, err
	}

	if reason := c.escalationReason(intent, analysis); reason != "" && conv.Status == storage.ConversationActive {
		entry, err := c.conversations.Escalate(ctx, conv.ID, escalationPriority(intent), reason)
		switch {
		case errors.Is(err, ErrInvalidState):
			log.Debug().Msg("Conversation already escalated")
		case err != nil:
			return nil, err
		default:
			resp.Escalation = entry
		}
	}

	c.record(ctx, conv, req, resp)

	log.Info().
		Str("intent", intent.Name).
		Float64("intent_confidence", intent.Confidence).
		Int("analysis_confidence", analysis.Confidence).
		Int("actions", len(resp.Actions)).
		Msg("Handled chat message")

	return resp, nil
}

func (c *ChatService) openConversation(ctx context.Context, req ChatRequest) (*storage.Conversation, error) {
	if req.ConversationID == "" {
		return c.conversations.Start(ctx, StartRequest{
			SessionID:  req.SessionID,
			CustomerID: req.CustomerID,
			Language:   req.Language,
		})
	}

	conv, err := c.conversations.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == storage.ConversationClosed {
		return nil, fmt.Errorf("%w: conversation %s is closed", ErrInvalidState, conv.ID)
	}
	if conv.CustomerID == nil && req.CustomerID != nil {
		conv.CustomerID = req.CustomerID
	}
	return conv, nil
}

// mergeCurrentMachine folds newly resolved machine fields into the conversation context.
func (c *ChatService) mergeCurrentMachine(ctx context.Context, conversationID string, analysis *QueryAnalysis) (*CurrentMachine, error) {
	current := &CurrentMachine{}

	entry, err := c.conversations.ContextValue(ctx, conversationID, ContextCurrentMachine)
	switch {
	case err == nil:
		if err := json.Unmarshal(entry.Data, current); err != nil {
			c.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Discarding unreadable current machine")
			current = &CurrentMachine{}
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if analysis.MachineType == nil && analysis.Manufacturer == nil && analysis.Model == nil {
		return current, nil
	}

	if analysis.Model != nil {
		current.Model = analysis.Model
	}
	if analysis.Manufacturer != nil {
		current.Manufacturer = analysis.Manufacturer
	}
	if analysis.MachineType != nil {
		current.MachineType = analysis.MachineType
	}

	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode current machine: %w", err)
	}
	if _, err := c.conversations.SetContext(ctx, conversationID, ContextCurrentMachine, data, 0); err != nil {
		return nil, err
	}
	return current, nil
}

func (c *ChatService) facts(snap *Taxonomy, analysis *QueryAnalysis, current *CurrentMachine) responseFacts {
	f := responseFacts{SupportPhone: c.supportPhone}

	if analysis.Model != nil {
		f.Model = modelName(snap, *analysis.Model)
	}
	if analysis.Manufacturer != nil {
		if m := snap.Manufacturer(*analysis.Manufacturer); m != nil {
			f.Manufacturer = m.Name
		}
	}
	if analysis.MachineType != nil {
		for _, mt := range snap.MachineTypes {
			if mt.ID == *analysis.MachineType {
				f.MachineType = mt.Name
			}
		}
	}
	if analysis.Issue != nil {
		f.Symptom = *analysis.Issue
	}
	if analysis.SuggestedCategory != nil {
		f.SymptomCategory = *analysis.SuggestedCategory
	}
	if current.Model != nil {
		f.CurrentModel = modelName(snap, *current.Model)
	}
	return f
}

func modelName(snap *Taxonomy, id string) string {
	if m := snap.Model(id); m != nil {
		return m.Name
	}
	return id
}

func (c *ChatService) actions(ctx context.Context, intent string, analysis *QueryAnalysis, current *CurrentMachine, customerID *string) ([]Action, error) {
	actions := []Action{}

	switch intent {
	case IntentSearchGuide, IntentTechnicalIssue:
		switch {
		case analysis.Model != nil && analysis.SuggestedCategory != nil:
			actions = append(actions, Action{Type: ActionLaunchSearch, Data: map[string]any{
				"machineModel": *analysis.Model,
				"category":     *analysis.SuggestedCategory,
				"subcategory":  deref(analysis.Subcategory),
				"autoFill":     true,
			}})
		case current.MachineType != nil || current.Manufacturer != nil || current.Model != nil:
			actions = append(actions, Action{Type: ActionPrefillSearch, Data: machineData(current)})
		}

	case IntentCompatibilityCheck:
		if current.Model != nil {
			actions = append(actions, Action{Type: ActionValidateCompatibility, Data: map[string]any{
				"machineModel": *current.Model,
			}})
		}

	case IntentReorder:
		actions = append(actions, Action{Type: ActionShowOrderHistory, Data: map[string]any{
			"customerId": deref(customerID),
		}})

	case IntentRecommendation:
		if current.Model != nil && c.cfg.RecommendationsInReplies {
			recs, err := c.recommender.Recommend(ctx, *current.Model, "")
			if err != nil {
				return nil, err
			}
			actions = append(actions, Action{Type: ActionShowRecommendations, Data: map[string]any{
				"machineModel":    *current.Model,
				"recommendations": recs,
			}})
		}

	case IntentEscalate:
		actions = append(actions, Action{Type: ActionEscalateToHuman, Data: map[string]any{
			"priority": string(escalationPriorityOr(c.cfg.DefaultPriority)),
		}})
	}
	return actions, nil
}

// escalationReason returns why the turn should be handed to a human, or "" to stay automated.
func (c *ChatService) escalationReason(intent *DetectedIntent, analysis *QueryAnalysis) string {
	if intent.Name == IntentEscalate {
		return "customer requested a human agent"
	}
	threshold := c.cfg.AutoEscalateBelow
	if threshold > 0 && float64(analysis.Confidence) < threshold && intent.Confidence < threshold {
		return fmt.Sprintf("low confidence: analysis %d, intent %.0f", analysis.Confidence, intent.Confidence)
	}
	return ""
}

// escalationPriority reads the priority authored on the intent, leaving "" for the configured default.
func escalationPriority(intent *DetectedIntent) storage.Priority {
	if len(intent.Metadata) == 0 {
		return ""
	}
	var meta struct {
		Priority storage.Priority `json:"priority"`
	}
	if err := json.Unmarshal(intent.Metadata, &meta); err != nil || !meta.Priority.Valid() {
		return ""
	}
	return meta.Priority
}

func escalationPriorityOr(fallback string) storage.Priority {
	if p := storage.Priority(fallback); p.Valid() {
		return p
	}
	return storage.PriorityMedium
}

func (c *ChatService) record(ctx context.Context, conv *storage.Conversation, req ChatRequest, resp *ChatResponse) {
	if c.recorder == nil {
		return
	}

	actionTypes := make([]string, 0, len(resp.Actions))
	for _, a := range resp.Actions {
		actionTypes = append(actionTypes, a.Type)
	}

	if err := c.recorder.LogMessageHandled(ctx, conv.ID, conv.SessionID, resp.Intent.Name, resp.Intent.Confidence, actionTypes); err != nil {
		c.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Failed to record chat analytics")
	}
	if err := c.recorder.LogQueryAnalyzed(ctx, conv.SessionID, conv.CustomerID, req.Message, resp.Analysis, resp.Analysis.Confidence, len(resp.Actions)); err != nil {
		c.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Failed to record search analytics")
	}
}

func machineData(m *CurrentMachine) map[string]any {
	data := map[string]any{}
	if m.MachineType != nil {
		data["type"] = *m.MachineType
	}
	if m.Manufacturer != nil {
		data["manufacturer"] = *m.Manufacturer
	}
	if m.Model != nil {
		data["model"] = *m.Model
	}
	return data
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
