package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cadence.jsonl")
	logger, closer, err := NewLogger(path, "debug", true)
	require.NoError(t, err)

	logger.Debug("sprint finished", "session_id", "s-1", "api_key", "hunter2")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	for _, key := range []string{"timestamp", "level", "msg", "component"} {
		assert.Contains(t, entry, key)
	}
	assert.Equal(t, "cadence", entry["component"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "[REDACTED]", entry["api_key"])
}

func TestNewHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "warn"))
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestInitOTel_Disabled(t *testing.T) {
	p, err := InitOTel(context.Background(), OTelConfig{})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)

	_, span := StartSpan(context.Background(), p.Tracer, "noop", AttrSessionID.String("s"))
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitOTel_NoneExporter(t *testing.T) {
	p, err := InitOTel(context.Background(), OTelConfig{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	require.NoError(t, err)
	m.Sprints.Add(context.Background(), 1)
	m.SprintConfidence.Record(context.Background(), 0.85)

	_, span := StartServerSpan(context.Background(), p.Tracer, "rpc.sprint", AttrMethod.String("sprint"))
	span.End()
}

func TestInitOTel_UnknownExporter(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true, Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	require.NotNil(t, m)
	m.CleanupDeleted.Add(context.Background(), 3)
	m.RPCDuration.Record(context.Background(), 0.01)
}
