package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")

	l := WithContext(ctx, base)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["http_request_id"])
	assert.Equal(t, "sess-1", entry["session_id"])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "http_request_id")
	assert.NotContains(t, entry, "session_id")
}

func TestReset_AppliesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	Reset(Config{Level: "warn", Output: &buf, Service: "qrpay-test"})
	t.Cleanup(func() { Reset(Config{}) })

	l := WithComponent("store")
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "qrpay-test", entry["service"])
	assert.Equal(t, "store", entry["component"])
}
