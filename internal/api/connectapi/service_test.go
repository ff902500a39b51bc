package connectapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/app"
	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
	"github.com/machineparts/parts-assistant/internal/storage/storagetest"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()

	db, _ := storagetest.NewDemo(t)

	logger := observability.NopLogger()
	a := app.New(config.DefaultConfig(), logger, db, cache.NewMemoryClient(100))
	t.Cleanup(func() { _ = a.Cache.Close() })

	svc := NewAssistantService(logger, Deps{
		Interpreter:   a.Interpreter,
		Symptoms:      a.Symptoms,
		Validator:     a.Validator,
		Recommender:   a.Recommender,
		Conversations: a.Conversations,
		Chat:          a.Chat,
		Support:       a.Support,
	})

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv, a
}

func TestAssistantService_Analyze(t *testing.T) {
	srv, _ := newTestServer(t)
	client := connect.NewClient[AnalyzeRequest, assistant.QueryAnalysis](srv.Client(), srv.URL+AnalyzeProcedure, WithJSON())

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&AnalyzeRequest{Query: "pump not working on CAT 320D"}))
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Msg.Confidence)
	assert.Equal(t, "cat-320d", *resp.Msg.Model)
}

func TestAssistantService_ValidateCompatibility(t *testing.T) {
	srv, _ := newTestServer(t)
	client := connect.NewClient[CompatibilityRequest, assistant.CompatibilityResult](srv.Client(), srv.URL+ValidateCompatibilityProcedure, WithJSON())

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&CompatibilityRequest{
		MachineModelID: "cat-320d",
		ProductID:      "prod_hyd_pump_320d",
	}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Compatible)
	assert.Equal(t, "Original part - 100% perfect match", resp.Msg.Reason)
}

func TestAssistantService_EscalationFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	start := connect.NewClient[assistant.StartRequest, storage.Conversation](srv.Client(), srv.URL+StartConversationProcedure, WithJSON())
	escalate := connect.NewClient[EscalateRequest, storage.EscalationEntry](srv.Client(), srv.URL+EscalateProcedure, WithJSON())
	resolve := connect.NewClient[ResolveEscalationRequest, storage.EscalationEntry](srv.Client(), srv.URL+ResolveEscalationProcedure, WithJSON())

	conv, err := start.CallUnary(ctx, connect.NewRequest(&assistant.StartRequest{SessionID: "sess-1"}))
	require.NoError(t, err)

	entry, err := escalate.CallUnary(ctx, connect.NewRequest(&EscalateRequest{ConversationID: conv.Msg.ID}))
	require.NoError(t, err)
	assert.Equal(t, storage.EscalationPending, entry.Msg.Status)

	_, err = resolve.CallUnary(ctx, connect.NewRequest(&ResolveEscalationRequest{EscalationID: entry.Msg.ID}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = escalate.CallUnary(ctx, connect.NewRequest(&EscalateRequest{ConversationID: "missing"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestAssistantService_Recommend_RequiresModel(t *testing.T) {
	srv, _ := newTestServer(t)
	client := connect.NewClient[RecommendRequest, RecommendResponse](srv.Client(), srv.URL+RecommendProcedure, WithJSON())

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&RecommendRequest{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestAssistantService_StorageUnavailable(t *testing.T) {
	srv, a := newTestServer(t)
	require.NoError(t, a.DB.Close())

	client := connect.NewClient[assistant.StartRequest, storage.Conversation](srv.Client(), srv.URL+StartConversationProcedure, WithJSON())
	_, err := client.CallUnary(context.Background(), connect.NewRequest(&assistant.StartRequest{SessionID: "sess-1"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}
