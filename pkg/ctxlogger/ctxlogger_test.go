package ctxlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandlerAddsCtxAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ContextHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := AppendCtx(context.Background(), slog.String("room_code", "ABC123"))
	ctx = AppendCtx(ctx, slog.String("request_id", "r1"))
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ABC123", rec["room_code"])
	assert.Equal(t, "r1", rec["request_id"])
}

func TestAppendCtxDoesNotShareBacking(t *testing.T) {
	base := AppendCtx(context.Background(), slog.String("a", "1"))
	first := AppendCtx(base, slog.String("b", "2"))
	second := AppendCtx(base, slog.String("c", "3"))

	assert.Len(t, first.Value(slogFields).([]slog.Attr), 2)
	assert.Equal(t, "b", first.Value(slogFields).([]slog.Attr)[1].Key)
	assert.Equal(t, "c", second.Value(slogFields).([]slog.Attr)[1].Key)
}
