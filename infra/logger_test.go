package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerClientWritesErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerClient(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.ErrorWithContextf(context.Background(), errors.New("boom"), "[Image Consumer] failed %s", "a.jpg")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "[Image Consumer] failed a.jpg", record["msg"])
	assert.Equal(t, "boom", record["error"])
}

func TestLoggerClientRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerClient(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.DebugWithContextf(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	logger.WarningWithContextf(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFanoutHandlerDeliversToAll(t *testing.T) {
	var a, b bytes.Buffer
	h := &fanoutHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	}}
	slog.New(h).With(slog.String("service", "media")).Info("hello")

	assert.Contains(t, a.String(), `"service":"media"`)
	assert.Contains(t, b.String(), "service=media")
}
