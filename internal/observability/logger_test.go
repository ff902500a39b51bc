package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONIncludesServiceAndScope(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf, ServiceName: "parts-assistant-test"})

	logger.WithConversation("conv-1").WithOperation("post_message").Info().Str("role", "user").Msg("Message appended")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "parts-assistant-test", line["service"])
	assert.Equal(t, "conv-1", line["conversation_id"])
	assert.Equal(t, "post_message", line["operation"])
	assert.Equal(t, "user", line["role"])
	assert.Equal(t, "Message appended", line["message"])
}

func TestLogger_WithContextAddsRequestAndTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "svc"})

	ctx := ContextWithTraceID(context.Background(), "trace-9")
	ctx = ContextWithRequestID(ctx, "req-3")
	logger.WithContext(ctx).Info().Msg("scoped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trace-9", line["trace_id"])
	assert.Equal(t, "req-3", line["request_id"])
}

func TestLogger_WithSessionScopesLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "svc"})

	logger.WithSession("sess-42").WithConversation("conv-7").Info().Msg("Conversation started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "sess-42", line["session_id"])
	assert.Equal(t, "conv-7", line["conversation_id"])
}

func TestLogger_WithContextWithoutValuesReturnsSameLogger(t *testing.T) {
	logger := NopLogger()
	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warning").String())
	assert.Equal(t, "info", parseLevel("nonsense").String())
	assert.Equal(t, "info", parseLevel("").String())
}
