package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var events []map[string]any

	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		var event map[string]any
		require.NoError(t, json.Unmarshal(line, &event))

		events = append(events, event)
	}

	return events
}

func TestZerologAdapterFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewZerologAdapter(&buf, zerolog.DebugLevel)
	logger.Warn("line dropped",
		String("module", "engine"),
		Int("bytes", 2048),
		Uint64("total", 7),
		Bool("gzip", true),
		Duration("elapsed", time.Second),
		Err(errors.New("too large")),
		Any("tags", []string{"env:ci"}),
	)

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "line dropped", event["message"])
	assert.Equal(t, "engine", event["module"])
	assert.InDelta(t, 2048, event["bytes"], 0)
	assert.InDelta(t, 7, event["total"], 0)
	assert.Equal(t, true, event["gzip"])
	assert.Equal(t, "too large", event["error"])
	assert.Equal(t, []any{"env:ci"}, event["tags"])
	assert.Contains(t, event, "time")
}

func TestZerologAdapterLevelFilter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewZerologAdapter(&buf, zerolog.WarnLevel)
	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	events := decodeLines(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, "warn", events[0]["level"])
	assert.Equal(t, "error", events[1]["level"])
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestNewWithDefaults(t *testing.T) {
	assert.IsType(t, &ZerologAdapter{}, NewWithDefaults("development"))
	assert.IsType(t, &ZerologAdapter{}, NewWithDefaults("production"))
	assert.NotNil(t, NewDefault())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(nil))

	f, err := os.CreateTemp(t.TempDir(), "tty")
	require.NoError(t, err)

	defer f.Close()

	assert.False(t, IsTerminal(f))
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	logger, closer, err := NewFileLogger(filepath.Join("diag", "ddship.log"), DefaultRotation(), zerolog.InfoLevel)
	require.NoError(t, err)

	logger.Info("started", String("service", "checkout"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "diag", "ddship.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"checkout"`)
}

func TestNewFileLoggerRejectsTraversal(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := NewFileLogger("../escape.log", DefaultRotation(), zerolog.InfoLevel)
	require.Error(t, err)
}

func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()

	assert.NotPanics(t, func() {
		logger.Debug("x")
		logger.Info("x")
		logger.Warn("x")
		logger.Error("x", Err(errors.New("ignored")))
	})
}
