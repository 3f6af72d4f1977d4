package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	return r
}

func TestDefaultRegistry(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, 8, r.Count())

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"cancel", "checkpoint", "init", "list", "metrics", "restore", "sprint", "status"}, names)

	tool, ok := r.Get("sprint")
	require.True(t, ok)
	assert.True(t, tool.Mutating)
	tool.InputSchema[0] = 'X'
	again, _ := r.Get("sprint")
	assert.NotEqual(t, byte('X'), again.InputSchema[0], "Get must return a copy")
}

func TestValidate(t *testing.T) {
	r := newTestRegistry(t)

	cases := []struct {
		name   string
		tool   string
		params string
		ok     bool
	}{
		{"init minimal", "init", `{"task": "build-api"}`, true},
		{"init full", "init", `{"task": "t", "confidence_threshold": 0.8, "max_sprints": 5, "parallel_swarms": 2}`, true},
		{"init missing task", "init", `{}`, false},
		{"init empty task", "init", `{"task": ""}`, false},
		{"init threshold too high", "init", `{"task": "t", "confidence_threshold": 1.5}`, false},
		{"init fractional sprints", "init", `{"task": "t", "max_sprints": 2.5}`, false},
		{"init unknown field", "init", `{"task": "t", "extra": 1}`, false},
		{"status verbose", "status", `{"session_id": "s", "verbose": true}`, true},
		{"status wrong type", "status", `{"session_id": 7}`, false},
		{"list sessions", "list", `{"type": "sessions"}`, true},
		{"list checkpoints needs session", "list", `{"type": "checkpoints"}`, false},
		{"list checkpoints", "list", `{"type": "checkpoints", "session_id": "s"}`, true},
		{"list bad type", "list", `{"type": "sprints"}`, false},
		{"cancel null params", "cancel", `null`, false},
		{"checkpoint", "checkpoint", `{"session_id": "s", "name": "cp"}`, true},
		{"malformed", "status", `{"session_id":`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(tc.tool, []byte(tc.params))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var pe *ParamsError
			assert.True(t, errors.As(err, &pe), "expected ParamsError, got %v", err)
		})
	}

	assert.Error(t, r.Validate("nope", nil))
}

func TestRegister_RejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Tool{Name: ""}))
	assert.Error(t, r.Register(Tool{Name: "broken", InputSchema: json.RawMessage(`{"type": 12}`)}))
	assert.NoError(t, r.Register(Tool{Name: "open"}))
	assert.NoError(t, r.Validate("open", []byte(`{"anything": true}`)))
}

func TestEnableDisable(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Disable("metrics"))
	assert.Len(t, r.Enabled(), 7)
	require.NoError(t, r.Enable("metrics"))
	assert.Len(t, r.Enabled(), 8)
	assert.Error(t, r.Disable("nope"))
}

func TestWriteManifest(t *testing.T) {
	r := newTestRegistry(t)

	var buf bytes.Buffer
	require.NoError(t, r.WriteManifest(&buf, "yaml"))
	var doc struct {
		Tools []struct {
			Name        string         `yaml:"name"`
			InputSchema map[string]any `yaml:"inputSchema"`
		} `yaml:"tools"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Tools, 8)
	assert.Equal(t, "cancel", doc.Tools[0].Name)
	assert.Equal(t, "object", doc.Tools[0].InputSchema["type"])

	buf.Reset()
	require.NoError(t, r.WriteManifest(&buf, "json"))
	assert.True(t, json.Valid(buf.Bytes()))

	assert.Error(t, r.WriteManifest(&buf, "toml"))
}
