package monitoring

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
	"github.com/machineparts/parts-assistant/internal/storage/storagetest"
)

func newTestRecorder(t *testing.T, publisher cache.Publisher) (*Recorder, *storage.Repositories) {
	t.Helper()
	db := storagetest.NewSQLite(t)
	repos := storage.NewRepositories(db)
	return NewRecorder(observability.NopLogger(), repos.Analytics, publisher), repos
}

func TestRecorder_RecordEvent_PersistsPayload(t *testing.T) {
	ctx := context.Background()
	rec, repos := newTestRecorder(t, nil)

	conv := "conv-1"
	err := rec.RecordEvent(ctx, Event{
		ConversationID: &conv,
		SessionID:      "sess-1",
		Type:           EventMessageHandled,
		Payload:        map[string]any{"intent": "TECHNICAL_ISSUE"},
	})
	require.NoError(t, err)

	events, err := repos.Analytics.ListEvents(ctx, EventMessageHandled, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sess-1", events[0].SessionID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "TECHNICAL_ISSUE", payload["intent"])
}

func TestRecorder_LogQueryAnalyzed_WritesSearchAndEvent(t *testing.T) {
	ctx := context.Background()
	rec, repos := newTestRecorder(t, nil)

	err := rec.LogQueryAnalyzed(ctx, "sess-2", nil, "pump leaking", map[string]any{"confidence": 20}, 20, 3)
	require.NoError(t, err)

	n, err := repos.Analytics.CountEvents(ctx, EventQueryAnalyzed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_LogEscalation_Publishes(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	msgs, unsubscribe, err := mem.Subscribe(ctx, EscalationChannel)
	require.NoError(t, err)
	defer unsubscribe()

	rec, repos := newTestRecorder(t, mem)
	entry := &storage.EscalationEntry{
		ID:             "esc-1",
		ConversationID: "conv-1",
		Priority:       storage.PriorityHigh,
		Status:         storage.EscalationPending,
		Reason:         "customer request",
	}
	require.NoError(t, rec.LogEscalation(ctx, EventConversationEscalated, entry))

	select {
	case data := <-msgs:
		var notice EscalationNotice
		require.NoError(t, json.Unmarshal(data, &notice))
		assert.Equal(t, "esc-1", notice.EntryID)
		assert.Equal(t, EventConversationEscalated, notice.Event)
		assert.Equal(t, storage.PriorityHigh, notice.Priority)
	case <-time.After(time.Second):
		t.Fatal("escalation notice not published")
	}

	n, err := repos.Analytics.CountEvents(ctx, EventConversationEscalated)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_RecordEvent_StorageUnavailable(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewSQLite(t)
	rec := NewRecorder(observability.NopLogger(), storage.NewAnalyticsRepository(db), nil)
	require.NoError(t, db.Close())

	err := rec.RecordEvent(ctx, Event{SessionID: "s", Type: EventMessageHandled})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
