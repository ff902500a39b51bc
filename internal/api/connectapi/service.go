// Package connectapi exposes the assistant operations as unary Connect procedures.
package connectapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// ServiceName is the fully-qualified Connect service name.
const ServiceName = "partsassistant.v1.AssistantService"

// Procedure paths.
const (
	AnalyzeProcedure               = "/" + ServiceName + "/Analyze"
	MapSymptomsProcedure           = "/" + ServiceName + "/MapSymptoms"
	ValidateCompatibilityProcedure = "/" + ServiceName + "/ValidateCompatibility"
	RecommendProcedure             = "/" + ServiceName + "/Recommend"
	StartConversationProcedure     = "/" + ServiceName + "/StartConversation"
	PostMessageProcedure           = "/" + ServiceName + "/PostMessage"
	EscalateProcedure              = "/" + ServiceName + "/Escalate"
	AssignEscalationProcedure      = "/" + ServiceName + "/AssignEscalation"
	ResolveEscalationProcedure     = "/" + ServiceName + "/ResolveEscalation"
	ChatProcedure                  = "/" + ServiceName + "/Chat"
	SupportAvailabilityProcedure   = "/" + ServiceName + "/SupportAvailability"
)

// AssistantService implements the Connect assistant service.
type AssistantService struct {
	logger        *observability.Logger
	interpreter   *assistant.Interpreter
	symptoms      *assistant.SymptomMapper
	validator     *assistant.Validator
	recommender   *assistant.Recommender
	conversations *assistant.ConversationService
	chat          *assistant.ChatService
	support       *assistant.SupportDesk
	now           func() time.Time
}

// Deps groups the services behind AssistantService.
type Deps struct {
	Interpreter   *assistant.Interpreter
	Symptoms      *assistant.SymptomMapper
	Validator     *assistant.Validator
	Recommender   *assistant.Recommender
	Conversations *assistant.ConversationService
	Chat          *assistant.ChatService
	Support       *assistant.SupportDesk
	Now           func() time.Time
}

// NewAssistantService creates a new assistant service.
func NewAssistantService(logger *observability.Logger, deps Deps) *AssistantService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AssistantService{
		logger:        logger,
		interpreter:   deps.Interpreter,
		symptoms:      deps.Symptoms,
		validator:     deps.Validator,
		recommender:   deps.Recommender,
		conversations: deps.Conversations,
		chat:          deps.Chat,
		support:       deps.Support,
		now:           now,
	}
}

// AnalyzeRequest is the Analyze request message.
type AnalyzeRequest struct {
	Query string `json:"query"`
}

// MapSymptomsRequest is the MapSymptoms request message.
type MapSymptomsRequest struct {
	Text string `json:"text"`
}

// MapSymptomsResponse is the MapSymptoms response message.
type MapSymptomsResponse struct {
	Matches []assistant.SymptomMatch `json:"matches"`
}

// CompatibilityRequest is the ValidateCompatibility request message.
type CompatibilityRequest struct {
	MachineModelID string `json:"machine_model_id"`
	ProductID      string `json:"product_id"`
}

// RecommendRequest is the Recommend request message.
type RecommendRequest struct {
	MachineModelID   string `json:"machine_model_id"`
	CurrentProductID string `json:"current_product_id,omitempty"`
}

// RecommendResponse is the Recommend response message.
type RecommendResponse struct {
	Recommendations []assistant.Recommendation `json:"recommendations"`
}

// EscalateRequest is the Escalate request message.
type EscalateRequest struct {
	ConversationID string           `json:"conversation_id"`
	Priority       storage.Priority `json:"priority,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// AssignEscalationRequest is the AssignEscalation request message.
type AssignEscalationRequest struct {
	EscalationID string `json:"escalation_id"`
	AgentID      string `json:"agent_id"`
}

// ResolveEscalationRequest is the ResolveEscalation request message.
type ResolveEscalationRequest struct {
	EscalationID string `json:"escalation_id"`
}

// SupportAvailabilityRequest is the SupportAvailability request message.
type SupportAvailabilityRequest struct {
	Language string `json:"language,omitempty"`
}

// Analyze handles Connect query analysis.
func (s *AssistantService) Analyze(ctx context.Context, req *connect.Request[AnalyzeRequest]) (*connect.Response[assistant.QueryAnalysis], error) {
	analysis, err := s.interpreter.Analyze(ctx, req.Msg.Query)
	if err != nil {
		return nil, s.toConnectError("Analyze", err)
	}
	return connect.NewResponse(analysis), nil
}

// MapSymptoms handles Connect symptom mapping.
func (s *AssistantService) MapSymptoms(ctx context.Context, req *connect.Request[MapSymptomsRequest]) (*connect.Response[MapSymptomsResponse], error) {
	matches, err := s.symptoms.Map(ctx, req.Msg.Text)
	if err != nil {
		return nil, s.toConnectError("MapSymptoms", err)
	}
	return connect.NewResponse(&MapSymptomsResponse{Matches: matches}), nil
}

// ValidateCompatibility handles Connect compatibility checks.
func (s *AssistantService) ValidateCompatibility(ctx context.Context, req *connect.Request[CompatibilityRequest]) (*connect.Response[assistant.CompatibilityResult], error) {
	result, err := s.validator.Validate(ctx, req.Msg.MachineModelID, req.Msg.ProductID)
	if err != nil {
		return nil, s.toConnectError("ValidateCompatibility", err)
	}
	return connect.NewResponse(result), nil
}

// Recommend handles Connect recommendations.
func (s *AssistantService) Recommend(ctx context.Context, req *connect.Request[RecommendRequest]) (*connect.Response[RecommendResponse], error) {
	if req.Msg.MachineModelID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("machine_model_id is required"))
	}
	recs, err := s.recommender.Recommend(ctx, req.Msg.MachineModelID, req.Msg.CurrentProductID)
	if err != nil {
		return nil, s.toConnectError("Recommend", err)
	}
	return connect.NewResponse(&RecommendResponse{Recommendations: recs}), nil
}

// StartConversation handles Connect conversation creation.
func (s *AssistantService) StartConversation(ctx context.Context, req *connect.Request[assistant.StartRequest]) (*connect.Response[storage.Conversation], error) {
	conv, err := s.conversations.Start(ctx, *req.Msg)
	if err != nil {
		return nil, s.toConnectError("StartConversation", err)
	}
	return connect.NewResponse(conv), nil
}

// PostMessage handles Connect message appends.
func (s *AssistantService) PostMessage(ctx context.Context, req *connect.Request[assistant.PostMessageRequest]) (*connect.Response[storage.ConversationMessage], error) {
	msg, err := s.conversations.PostMessage(ctx, *req.Msg)
	if err != nil {
		return nil, s.toConnectError("PostMessage", err)
	}
	return connect.NewResponse(msg), nil
}

// Escalate handles Connect escalations.
func (s *AssistantService) Escalate(ctx context.Context, req *connect.Request[EscalateRequest]) (*connect.Response[storage.EscalationEntry], error) {
	entry, err := s.conversations.Escalate(ctx, req.Msg.ConversationID, req.Msg.Priority, req.Msg.Reason)
	if err != nil {
		return nil, s.toConnectError("Escalate", err)
	}
	return connect.NewResponse(entry), nil
}

// AssignEscalation handles Connect agent assignment.
func (s *AssistantService) AssignEscalation(ctx context.Context, req *connect.Request[AssignEscalationRequest]) (*connect.Response[storage.EscalationEntry], error) {
	entry, err := s.conversations.Assign(ctx, req.Msg.EscalationID, req.Msg.AgentID)
	if err != nil {
		return nil, s.toConnectError("AssignEscalation", err)
	}
	return connect.NewResponse(entry), nil
}

// ResolveEscalation handles Connect escalation resolution.
func (s *AssistantService) ResolveEscalation(ctx context.Context, req *connect.Request[ResolveEscalationRequest]) (*connect.Response[storage.EscalationEntry], error) {
	entry, err := s.conversations.Resolve(ctx, req.Msg.EscalationID)
	if err != nil {
		return nil, s.toConnectError("ResolveEscalation", err)
	}
	return connect.NewResponse(entry), nil
}

// Chat handles a Connect chat turn.
func (s *AssistantService) Chat(ctx context.Context, req *connect.Request[assistant.ChatRequest]) (*connect.Response[assistant.ChatResponse], error) {
	resp, err := s.chat.Handle(ctx, *req.Msg)
	if err != nil {
		return nil, s.toConnectError("Chat", err)
	}
	return connect.NewResponse(resp), nil
}

// SupportAvailability handles Connect support desk status.
func (s *AssistantService) SupportAvailability(ctx context.Context, req *connect.Request[SupportAvailabilityRequest]) (*connect.Response[assistant.SupportStatus], error) {
	status, err := s.support.Availability(ctx, s.now(), req.Msg.Language)
	if err != nil {
		return nil, s.toConnectError("SupportAvailability", err)
	}
	return connect.NewResponse(status), nil
}

// Handler returns an http.Handler serving every procedure, rooted at "/".
func (s *AssistantService) Handler(opts ...connect.HandlerOption) http.Handler {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AnalyzeProcedure, connect.NewUnaryHandler(AnalyzeProcedure, s.Analyze, opts...))
	mux.Handle(MapSymptomsProcedure, connect.NewUnaryHandler(MapSymptomsProcedure, s.MapSymptoms, opts...))
	mux.Handle(ValidateCompatibilityProcedure, connect.NewUnaryHandler(ValidateCompatibilityProcedure, s.ValidateCompatibility, opts...))
	mux.Handle(RecommendProcedure, connect.NewUnaryHandler(RecommendProcedure, s.Recommend, opts...))
	mux.Handle(StartConversationProcedure, connect.NewUnaryHandler(StartConversationProcedure, s.StartConversation, opts...))
	mux.Handle(PostMessageProcedure, connect.NewUnaryHandler(PostMessageProcedure, s.PostMessage, opts...))
	mux.Handle(EscalateProcedure, connect.NewUnaryHandler(EscalateProcedure, s.Escalate, opts...))
	mux.Handle(AssignEscalationProcedure, connect.NewUnaryHandler(AssignEscalationProcedure, s.AssignEscalation, opts...))
	mux.Handle(ResolveEscalationProcedure, connect.NewUnaryHandler(ResolveEscalationProcedure, s.ResolveEscalation, opts...))
	mux.Handle(ChatProcedure, connect.NewUnaryHandler(ChatProcedure, s.Chat, opts...))
	mux.Handle(SupportAvailabilityProcedure, connect.NewUnaryHandler(SupportAvailabilityProcedure, s.SupportAvailability, opts...))
	return mux
}

// toConnectError maps assistant errors onto Connect codes.
func (s *AssistantService) toConnectError(op string, err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, assistant.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, assistant.ErrInvalidState):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, assistant.ErrConflict):
		code = connect.CodeAborted
	case errors.Is(err, assistant.ErrInvalidInput):
		code = connect.CodeInvalidArgument
	case errors.Is(err, assistant.ErrStorageUnavailable):
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}
	if code == connect.CodeInternal || code == connect.CodeUnavailable {
		s.logger.Error().Err(err).Str("procedure", op).Msg("Connect call failed")
	}
	return connect.NewError(code, err)
}
