package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/api/connectapi"
	"github.com/machineparts/parts-assistant/internal/app"
	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/cache"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
	"github.com/machineparts/parts-assistant/internal/storage/storagetest"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *app.App) {
	t.Helper()

	db, _ := storagetest.NewDemo(t)
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	a := app.New(cfg, observability.NopLogger(), db, cache.NewMemoryClient(100))
	t.Cleanup(func() { _ = a.Cache.Close() })

	srv := httptest.NewServer(NewRouter(a, RouterConfig{
		Now: func() time.Time { return storagetest.Epoch },
	}))
	t.Cleanup(srv.Close)
	return srv, a
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRouter_Health(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	var body map[string]string
	status := doJSON(t, http.MethodGet, srv.URL+"/health", nil, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status = doJSON(t, http.MethodGet, srv.URL+"/ready", nil, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestRouter_Analyze(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	var analysis assistant.QueryAnalysis
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/analyze", map[string]string{
		"query": "pump not working on CAT 320D",
	}, &analysis)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 100, analysis.Confidence)
	require.NotNil(t, analysis.Model)
	assert.Equal(t, "cat-320d", *analysis.Model)
}

func TestRouter_Analyze_RejectsUnknownFields(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	var errBody map[string]string
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/analyze", map[string]string{
		"q": "pump",
	}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", errBody["error"])
}

func TestRouter_Compatibility(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	var result assistant.CompatibilityResult
	status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/compatibility/cat-320d/prod_hyd_pump_320d", nil, &result)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, result.Compatible)
	assert.Equal(t, "Original part - 100% perfect match", result.Reason)
}

func TestRouter_ConversationFlow(t *testing.T) {
	srv, _ := newTestApp(t, nil)
	base := srv.URL + "/api/v1"

	var conv storage.Conversation
	status := doJSON(t, http.MethodPost, base+"/conversations", map[string]string{"sessionId": "sess-1"}, &conv)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, storage.ConversationActive, conv.Status)

	var msg storage.ConversationMessage
	status = doJSON(t, http.MethodPost, base+"/conversations/"+conv.ID+"/messages", map[string]string{
		"role":    "user",
		"content": "hello",
	}, &msg)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(1), msg.Seq)

	var entry storage.EscalationEntry
	status = doJSON(t, http.MethodPost, base+"/conversations/"+conv.ID+"/escalate", nil, &entry)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, storage.PriorityMedium, entry.Priority)
	assert.Equal(t, storage.EscalationPending, entry.Status)

	var errBody map[string]string
	status = doJSON(t, http.MethodPost, base+"/conversations/"+conv.ID+"/escalate", nil, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_state", errBody["error"])

	var queue assistant.QueueStatus
	status = doJSON(t, http.MethodGet, base+"/escalations/"+entry.ID+"/queue", nil, &queue)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, queue.Position)

	status = doJSON(t, http.MethodPost, base+"/escalations/"+entry.ID+"/assign", map[string]string{"agentId": "agent-7"}, &entry)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, storage.EscalationAssigned, entry.Status)

	status = doJSON(t, http.MethodPost, base+"/escalations/"+entry.ID+"/resolve", nil, &entry)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, storage.EscalationResolved, entry.Status)

	status = doJSON(t, http.MethodPost, base+"/conversations/"+conv.ID+"/close", nil, &conv)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, storage.ConversationClosed, conv.Status)

	status = doJSON(t, http.MethodGet, base+"/conversations/missing", nil, &errBody)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodGet, base+"/escalations?status=lost", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_Context(t *testing.T) {
	srv, _ := newTestApp(t, nil)
	base := srv.URL + "/api/v1"

	var conv storage.Conversation
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, base+"/conversations", map[string]string{"sessionId": "sess-ctx"}, &conv))

	var entry storage.ContextEntry
	status := doJSON(t, http.MethodPut, base+"/conversations/"+conv.ID+"/context/budget", map[string]any{
		"data":       map[string]int{"max": 500},
		"ttlSeconds": 600,
	}, &entry)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "budget", entry.ContextType)
	assert.NotNil(t, entry.ExpiresAt)

	var entries struct {
		Entries []storage.ContextEntry `json:"entries"`
	}
	status = doJSON(t, http.MethodGet, base+"/conversations/"+conv.ID+"/context", nil, &entries)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, entries.Entries, 1)
	assert.JSONEq(t, `{"max":500}`, string(entries.Entries[0].Data))
}

func TestRouter_Chat(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	var resp assistant.ChatResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/chat", map[string]any{
		"sessionId":  "sess-chat",
		"customerId": "cust-1",
		"message":    "Pump not working on my CAT 320D, it's broken and there's a problem with pressure",
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.ConversationID)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, "TECHNICAL_ISSUE", resp.Intent.Name)
	require.NotEmpty(t, resp.Actions)
	assert.Equal(t, "launch_search", resp.Actions[0].Type)

	var machines struct {
		Machines []storage.CustomerMachine `json:"machines"`
	}
	status = doJSON(t, http.MethodGet, srv.URL+"/api/v1/customers/cust-1/machines", nil, &machines)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, machines.Machines, 1)
	assert.Equal(t, "cat-320d", machines.Machines[0].MachineModelID)
	assert.True(t, machines.Machines[0].IsPrimary)
}

func TestRouter_SupportAndKnowledge(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	var support assistant.SupportStatus
	status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/support/availability", nil, &support)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, support.Available)
	assert.Equal(t, "Europe/Warsaw", support.Timezone)

	var results struct {
		Results []assistant.KnowledgeAnswer `json:"results"`
	}
	status = doJSON(t, http.MethodGet, srv.URL+"/api/v1/knowledge/search?q=shipping", nil, &results)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, results.Results)

	var errBody map[string]string
	status = doJSON(t, http.MethodGet, srv.URL+"/api/v1/knowledge/search", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_ConnectMount(t *testing.T) {
	srv, _ := newTestApp(t, nil)

	client := connect.NewClient[connectapi.AnalyzeRequest, assistant.QueryAnalysis](
		srv.Client(), srv.URL+"/connect"+connectapi.AnalyzeProcedure, connectapi.WithJSON())

	resp, err := client.CallUnary(t.Context(), connect.NewRequest(&connectapi.AnalyzeRequest{Query: "pump not working on CAT 320D"}))
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Msg.Confidence)
}

func TestRouter_RateLimit(t *testing.T) {
	srv, _ := newTestApp(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2}
	})

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil))
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil))

	var errBody map[string]string
	status := doJSON(t, http.MethodGet, srv.URL+"/health", nil, &errBody)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", errBody["error"])
}

func getWithForwardedFor(t *testing.T, url, forwardedFor string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", forwardedFor)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRouter_RateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	srv, _ := newTestApp(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2}
	})

	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/health", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/health", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, getWithForwardedFor(t, srv.URL+"/health", "10.0.0.3"))
}

func TestRouter_RateLimit_TrustedProxyKeysOnForwardedFor(t *testing.T) {
	srv, _ := newTestApp(t, func(cfg *config.Config) {
		cfg.Server.TrustProxy = true
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/health", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/health", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, getWithForwardedFor(t, srv.URL+"/health", "10.0.0.1"))
}

func TestRouter_StorageUnavailable(t *testing.T) {
	srv, a := newTestApp(t, nil)
	require.NoError(t, a.DB.Close())

	var errBody map[string]string
	status := doJSON(t, http.MethodGet, srv.URL+"/ready", nil, &errBody)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "storage_unavailable", errBody["error"])

	status = doJSON(t, http.MethodPost, srv.URL+"/api/v1/conversations", map[string]string{"sessionId": "sess-1"}, &errBody)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
