package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureops/workbench/common/middleware"
)

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		wantJSON bool
	}{
		{name: "json", format: "json", wantJSON: true},
		{name: "default is json", format: "", wantJSON: true},
		{name: "text", format: "text", wantJSON: false},
		{name: "text upper case", format: "TEXT", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, slog.LevelInfo, tt.format)
			logger.Info("hello", slog.String("k", "v"))

			var decoded map[string]any
			err := json.Unmarshal(buf.Bytes(), &decoded)
			if tt.wantJSON {
				require.NoError(t, err)
				assert.Equal(t, "hello", decoded["msg"])
				assert.Equal(t, "v", decoded["k"])
			} else {
				assert.Error(t, err)
				assert.Contains(t, buf.String(), "msg=hello")
			}
		})
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "json")

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithContext(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		wantReqID string
	}{
		{
			name:      "context with request ID",
			ctx:       context.WithValue(context.Background(), middleware.RequestIDKey, "req-123"),
			wantReqID: "req-123",
		},
		{
			name: "context without request ID",
			ctx:  context.Background(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, slog.LevelDebug, "json")
			logger.InfoContext(tt.ctx, "message")

			var decoded map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
			if tt.wantReqID == "" {
				assert.NotContains(t, decoded, FieldRequestID)
			} else {
				assert.Equal(t, tt.wantReqID, decoded[FieldRequestID])
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug, "text")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "abc")

	logger.DebugContext(ctx, "d")
	logger.InfoContext(ctx, "i")
	logger.WarnContext(ctx, "w")
	logger.ErrorContext(ctx, "e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.Contains(t, line, "request_id=abc")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json").With(Service("respond"))
	logger.Info("started")

	assert.Contains(t, buf.String(), `"service":"respond"`)
}

func TestDiscardAndDefault(t *testing.T) {
	require.NotNil(t, Discard().Logger)
	require.NotNil(t, Default().Logger)
	Discard().Error("never printed")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		" ERROR ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(&buf, slog.LevelInfo, "json"))
	slog.Info("via default")

	assert.Contains(t, buf.String(), "via default")
}
