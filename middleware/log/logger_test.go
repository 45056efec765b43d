package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/GlobalChat/config"
)

func newFileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(&config.LoggingConfig{
		Level:    level,
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)
	return l, path
}

func readEntry(t *testing.T, path string) map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(content), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	t.Run("text format on stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, l)
		l.Debug("hello")
	})

	t.Run("file output is JSON", func(t *testing.T) {
		l, path := newFileLogger(t, "info")
		l.Info("relay delivered", zap.String("dest_guild", "g2"))
		require.NoError(t, l.Close())

		entry := readEntry(t, path)
		assert.Equal(t, "relay delivered", entry["message"])
		assert.Equal(t, "g2", entry["dest_guild"])
		assert.Equal(t, "info", entry["level"])
	})

	t.Run("unwritable file path fails", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{
			Output:   "file",
			FilePath: filepath.Join(t.TempDir(), "missing", "dir", "x.log"),
		})
		assert.Error(t, err)
	})
}

func TestForEvent(t *testing.T) {
	l, path := newFileLogger(t, "debug")
	ctx := WithTraceID(context.Background(), "trace-abc")

	l.ForEvent(ctx, "g1", "c1", "u1").Info("event received")
	require.NoError(t, l.Close())

	entry := readEntry(t, path)
	assert.Equal(t, "trace-abc", entry["trace_id"])
	assert.Equal(t, "g1", entry["guild_id"])
	assert.Equal(t, "c1", entry["channel_id"])
	assert.Equal(t, "u1", entry["author_id"])
}

func TestForEventWithoutGuild(t *testing.T) {
	l, path := newFileLogger(t, "debug")

	l.ForEvent(context.Background(), "", "dm", "u1").Info("direct message")
	require.NoError(t, l.Close())

	entry := readEntry(t, path)
	_, hasGuild := entry["guild_id"]
	assert.False(t, hasGuild)
	_, hasTrace := entry["trace_id"]
	assert.False(t, hasTrace)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, path := newFileLogger(t, "warn")
	l.Info("dropped")
	l.Warn("kept")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "dropped")
	assert.Contains(t, string(content), "kept")
}
