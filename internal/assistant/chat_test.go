package assistant

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/monitoring"
	"github.com/machineparts/parts-assistant/internal/storage"
)

func TestChatService_Handle_TechnicalIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.chat()

	resp, err := chat.Handle(ctx, ChatRequest{
		SessionID:  "sess-1",
		CustomerID: strPtr("cust-1"),
		Message:    "Pump not working on my CAT 320D, it's broken and there's a problem with pressure",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "en", resp.Language)
	assert.Equal(t, IntentTechnicalIssue, resp.Intent.Name)
	assert.Equal(t, float64(100), resp.Intent.Confidence)
	assert.Equal(t, 100, resp.Analysis.Confidence)
	assert.Equal(t, "sym-001", *resp.Analysis.SymptomID)
	assert.Equal(t,
		`I understand the issue: "Pump not working". This points to category: Hydraulics. Launching search for compatible parts...`,
		resp.Message)

	require.Len(t, resp.Actions, 1)
	assert.Equal(t, ActionLaunchSearch, resp.Actions[0].Type)
	assert.Equal(t, map[string]any{
		"machineModel": "cat-320d",
		"category":     "Hydraulics",
		"subcategory":  "Pumps",
		"autoFill":     true,
	}, resp.Actions[0].Data)

	var replyIDs []string
	for _, qr := range resp.QuickReplies {
		replyIDs = append(replyIDs, qr.ID)
	}
	assert.Equal(t, []string{"qr-005", "qr-006"}, replyIDs)

	require.NotEmpty(t, resp.Knowledge)
	assert.Equal(t, "kb-001", resp.Knowledge[0].ID)
	assert.Nil(t, resp.Escalation)

	history, err := env.convs.History(ctx, resp.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, storage.RoleUser, history[0].Role)
	assert.Equal(t, storage.RoleAssistant, history[1].Role)
	assert.Equal(t, IntentTechnicalIssue, *history[0].Intent)

	entry, err := env.convs.ContextValue(ctx, resp.ConversationID, ContextCurrentMachine)
	require.NoError(t, err)
	assert.JSONEq(t, `{"machineType":"excavator","manufacturer":"cat","model":"cat-320d"}`, string(entry.Data))

	machines, err := env.convs.CustomerMachines(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.True(t, machines[0].IsPrimary)

	for _, eventType := range []string{monitoring.EventMessageHandled, monitoring.EventQueryAnalyzed} {
		n, err := env.repos.Analytics.CountEvents(ctx, eventType)
		require.NoError(t, err)
		assert.Equal(t, 1, n, eventType)
	}
}

func TestChatService_Handle_FollowUpUsesCurrentMachine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.chat()

	first, err := chat.Handle(ctx, ChatRequest{SessionID: "sess-1", Message: "I have a CAT 320D"})
	require.NoError(t, err)

	resp, err := chat.Handle(ctx, ChatRequest{
		ConversationID: first.ConversationID,
		SessionID:      "sess-1",
		Message:        "Does this fit, is this compatible?",
	})
	require.NoError(t, err)

	assert.Equal(t, IntentCompatibilityCheck, resp.Intent.Name)
	assert.Equal(t, 0, resp.Analysis.Confidence)
	assert.Equal(t, "Checking compatibility for CAT 320D... One moment.", resp.Message)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, ActionValidateCompatibility, resp.Actions[0].Type)
	assert.Equal(t, "cat-320d", resp.Actions[0].Data["machineModel"])

	var replyIDs []string
	for _, qr := range resp.QuickReplies {
		replyIDs = append(replyIDs, qr.ID)
	}
	assert.Equal(t, []string{"qr-007", "qr-008"}, replyIDs)

	history, err := env.convs.History(ctx, first.ConversationID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestChatService_Handle_Recommendations(t *testing.T) {
	env := newTestEnv(t)
	chat := env.chat()

	resp, err := chat.Handle(context.Background(), ChatRequest{
		SessionID: "sess-1",
		Message:   "What do you recommend, any advice, should i buy something for my CAT 320D",
	})
	require.NoError(t, err)

	assert.Equal(t, IntentRecommendation, resp.Intent.Name)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, ActionShowRecommendations, resp.Actions[0].Type)

	recs, ok := resp.Actions[0].Data["recommendations"].([]Recommendation)
	require.True(t, ok)
	require.Len(t, recs, 4)
	assert.Equal(t, "prod_hyd_filter", recs[0].ProductID)
	assert.Contains(t, resp.Message, "CAT 320D")
}

func TestChatService_Handle_EscalateIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.chat()

	resp, err := chat.Handle(ctx, ChatRequest{SessionID: "sess-1", Message: "I want to speak to human please call me"})
	require.NoError(t, err)

	assert.Equal(t, IntentEscalate, resp.Intent.Name)
	assert.Contains(t, resp.Message, env.cfg.Support.Phone)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, ActionEscalateToHuman, resp.Actions[0].Type)
	assert.Empty(t, resp.QuickReplies)
	assert.NotNil(t, resp.QuickReplies)

	require.NotNil(t, resp.Escalation)
	assert.Equal(t, storage.PriorityMedium, resp.Escalation.Priority)
	assert.Equal(t, storage.EscalationPending, resp.Escalation.Status)

	conv, err := env.convs.Get(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, storage.ConversationEscalated, conv.Status)

	// A second request on an escalated conversation does not queue it again.
	again, err := chat.Handle(ctx, ChatRequest{
		ConversationID: resp.ConversationID,
		SessionID:      "sess-1",
		Message:        "please call me, speak to human now",
	})
	require.NoError(t, err)
	assert.Nil(t, again.Escalation)

	pending, err := env.convs.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestChatService_Handle_AutoEscalatesLowConfidence(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Assistant.AutoEscalateBelow = 60
	chat := env.chat()

	resp, err := chat.Handle(context.Background(), ChatRequest{SessionID: "sess-1", Message: "xyz qwerty"})
	require.NoError(t, err)

	assert.Equal(t, IntentGeneralHelp, resp.Intent.Name)
	require.NotNil(t, resp.Escalation)
	assert.Equal(t, storage.PriorityMedium, resp.Escalation.Priority)
	assert.Contains(t, resp.Escalation.Reason, "low confidence")
}

func TestChatService_Handle_Polish(t *testing.T) {
	env := newTestEnv(t)
	chat := env.chat()

	resp, err := chat.Handle(context.Background(), ChatRequest{SessionID: "sess-1", Language: LanguagePolish, Message: "Pompa nie działa"})
	require.NoError(t, err)

	assert.Equal(t, LanguagePolish, resp.Language)
	assert.Equal(t, IntentGeneralHelp, resp.Intent.Name)
	assert.Equal(t, "Pump not working", *resp.Analysis.Issue)
	assert.Contains(t, resp.Message, "Jestem tutaj, aby pomóc!")
	require.NotEmpty(t, resp.QuickReplies)
	assert.Equal(t, "Znajdź części do mojej maszyny", resp.QuickReplies[0].Text)
}

func TestChatService_Handle_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.chat()

	_, err := chat.Handle(ctx, ChatRequest{ConversationID: "missing", SessionID: "sess-1", Message: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = chat.Handle(ctx, ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	conv, err := env.convs.Start(ctx, StartRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	_, err = env.convs.Close(ctx, conv.ID)
	require.NoError(t, err)

	_, err = chat.Handle(ctx, ChatRequest{ConversationID: conv.ID, SessionID: "sess-1", Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEscalationPriority(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		want     storage.Priority
	}{
		{"authored priority", `{"priority":"high"}`, storage.PriorityHigh},
		{"unknown priority", `{"priority":"critical"}`, ""},
		{"no priority", `{"show_options":true}`, ""},
		{"no metadata", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escalationPriority(&DetectedIntent{Metadata: json.RawMessage(tt.metadata)})
			assert.Equal(t, tt.want, got)
		})
	}
}
