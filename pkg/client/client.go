// Package client provides the public Go SDK for the parts assistant Connect service.
package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/machineparts/parts-assistant/internal/api/connectapi"
	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// Message types shared with the server.
type (
	QueryAnalysis       = assistant.QueryAnalysis
	SymptomMatch        = assistant.SymptomMatch
	CompatibilityResult = assistant.CompatibilityResult
	Recommendation      = assistant.Recommendation
	ChatRequest         = assistant.ChatRequest
	ChatResponse        = assistant.ChatResponse
	SupportStatus       = assistant.SupportStatus
	StartRequest        = assistant.StartRequest
	PostMessageRequest  = assistant.PostMessageRequest
	Conversation        = storage.Conversation
	Message             = storage.ConversationMessage
	EscalationEntry     = storage.EscalationEntry
	Priority            = storage.Priority
)

// Client is the public SDK client for the parts assistant.
type Client struct {
	analyze   *connect.Client[connectapi.AnalyzeRequest, assistant.QueryAnalysis]
	symptoms  *connect.Client[connectapi.MapSymptomsRequest, connectapi.MapSymptomsResponse]
	compat    *connect.Client[connectapi.CompatibilityRequest, assistant.CompatibilityResult]
	recommend *connect.Client[connectapi.RecommendRequest, connectapi.RecommendResponse]
	start     *connect.Client[assistant.StartRequest, storage.Conversation]
	post      *connect.Client[assistant.PostMessageRequest, storage.ConversationMessage]
	escalate  *connect.Client[connectapi.EscalateRequest, storage.EscalationEntry]
	assign    *connect.Client[connectapi.AssignEscalationRequest, storage.EscalationEntry]
	resolve   *connect.Client[connectapi.ResolveEscalationRequest, storage.EscalationEntry]
	chat      *connect.Client[assistant.ChatRequest, assistant.ChatResponse]
	support   *connect.Client[connectapi.SupportAvailabilityRequest, assistant.SupportStatus]
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the Connect mount point, e.g. http://localhost:8086/connect.
	BaseURL    string
	HTTPClient connect.HTTPClient
	// Headers are sent with every call.
	Headers http.Header
}

// New creates a new parts assistant client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086/connect"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	opts := []connect.ClientOption{connectapi.WithJSON()}
	if len(cfg.Headers) > 0 {
		opts = append(opts, connect.WithInterceptors(headerInterceptor(cfg.Headers)))
	}
	hc := cfg.HTTPClient

	return &Client{
		analyze:   connect.NewClient[connectapi.AnalyzeRequest, assistant.QueryAnalysis](hc, base+connectapi.AnalyzeProcedure, opts...),
		symptoms:  connect.NewClient[connectapi.MapSymptomsRequest, connectapi.MapSymptomsResponse](hc, base+connectapi.MapSymptomsProcedure, opts...),
		compat:    connect.NewClient[connectapi.CompatibilityRequest, assistant.CompatibilityResult](hc, base+connectapi.ValidateCompatibilityProcedure, opts...),
		recommend: connect.NewClient[connectapi.RecommendRequest, connectapi.RecommendResponse](hc, base+connectapi.RecommendProcedure, opts...),
		start:     connect.NewClient[assistant.StartRequest, storage.Conversation](hc, base+connectapi.StartConversationProcedure, opts...),
		post:      connect.NewClient[assistant.PostMessageRequest, storage.ConversationMessage](hc, base+connectapi.PostMessageProcedure, opts...),
		escalate:  connect.NewClient[connectapi.EscalateRequest, storage.EscalationEntry](hc, base+connectapi.EscalateProcedure, opts...),
		assign:    connect.NewClient[connectapi.AssignEscalationRequest, storage.EscalationEntry](hc, base+connectapi.AssignEscalationProcedure, opts...),
		resolve:   connect.NewClient[connectapi.ResolveEscalationRequest, storage.EscalationEntry](hc, base+connectapi.ResolveEscalationProcedure, opts...),
		chat:      connect.NewClient[assistant.ChatRequest, assistant.ChatResponse](hc, base+connectapi.ChatProcedure, opts...),
		support:   connect.NewClient[connectapi.SupportAvailabilityRequest, assistant.SupportStatus](hc, base+connectapi.SupportAvailabilityProcedure, opts...),
	}
}

// Analyze extracts machine and issue information from a free-text query.
func (c *Client) Analyze(ctx context.Context, query string) (*QueryAnalysis, error) {
	return call(ctx, c.analyze, &connectapi.AnalyzeRequest{Query: query})
}

// MapSymptoms ranks known symptoms against a problem description.
func (c *Client) MapSymptoms(ctx context.Context, text string) ([]SymptomMatch, error) {
	resp, err := call(ctx, c.symptoms, &connectapi.MapSymptomsRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// ValidateCompatibility checks whether a product fits a machine model.
func (c *Client) ValidateCompatibility(ctx context.Context, machineModelID, productID string) (*CompatibilityResult, error) {
	return call(ctx, c.compat, &connectapi.CompatibilityRequest{MachineModelID: machineModelID, ProductID: productID})
}

// Recommend returns frequently-bought-together products for a model. currentProductID may be empty.
func (c *Client) Recommend(ctx context.Context, machineModelID, currentProductID string) ([]Recommendation, error) {
	resp, err := call(ctx, c.recommend, &connectapi.RecommendRequest{
		MachineModelID:   machineModelID,
		CurrentProductID: currentProductID,
	})
	if err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// StartConversation opens a conversation for a session.
func (c *Client) StartConversation(ctx context.Context, req StartRequest) (*Conversation, error) {
	return call(ctx, c.start, &req)
}

// PostMessage appends a message to a conversation.
func (c *Client) PostMessage(ctx context.Context, req PostMessageRequest) (*Message, error) {
	return call(ctx, c.post, &req)
}

// Chat runs one assistant turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return call(ctx, c.chat, &req)
}

// Escalate hands a conversation to the human queue. An empty priority uses the server default.
func (c *Client) Escalate(ctx context.Context, conversationID string, priority Priority, reason string) (*EscalationEntry, error) {
	return call(ctx, c.escalate, &connectapi.EscalateRequest{
		ConversationID: conversationID,
		Priority:       priority,
		Reason:         reason,
	})
}

// AssignEscalation gives a pending entry to an agent.
func (c *Client) AssignEscalation(ctx context.Context, escalationID, agentID string) (*EscalationEntry, error) {
	return call(ctx, c.assign, &connectapi.AssignEscalationRequest{EscalationID: escalationID, AgentID: agentID})
}

// ResolveEscalation marks an assigned entry resolved.
func (c *Client) ResolveEscalation(ctx context.Context, escalationID string) (*EscalationEntry, error) {
	return call(ctx, c.resolve, &connectapi.ResolveEscalationRequest{EscalationID: escalationID})
}

// SupportAvailability reports whether human agents are on duty.
func (c *Client) SupportAvailability(ctx context.Context, language string) (*SupportStatus, error) {
	return call(ctx, c.support, &connectapi.SupportAvailabilityRequest{Language: language})
}

// IsNotFound reports whether err means the addressed record does not exist.
func IsNotFound(err error) bool { return connect.CodeOf(err) == connect.CodeNotFound }

// IsInvalidState reports whether err is a rejected lifecycle transition.
func IsInvalidState(err error) bool { return connect.CodeOf(err) == connect.CodeFailedPrecondition }

// IsInvalidInput reports whether err is a rejected request.
func IsInvalidInput(err error) bool { return connect.CodeOf(err) == connect.CodeInvalidArgument }

// IsUnavailable reports whether the server's storage could not be reached.
func IsUnavailable(err error) bool { return connect.CodeOf(err) == connect.CodeUnavailable }

// ErrorMessage returns the server's message without the Connect code prefix.
func ErrorMessage(err error) string {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func headerInterceptor(headers http.Header) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			for key, values := range headers {
				for _, v := range values {
					req.Header().Add(key, v)
				}
			}
			return next(ctx, req)
		}
	}
}
