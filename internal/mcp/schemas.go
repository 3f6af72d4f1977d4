package mcp

import "encoding/json"

// DefaultTools returns the control methods with their parameter schemas.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name:        "init",
			Description: "Start a new session for a task.",
			Mutating:    true,
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task": {"type": "string", "minLength": 1},
					"confidence_threshold": {"type": "number", "minimum": 0, "maximum": 1},
					"max_sprints": {"type": "integer", "minimum": 1, "maximum": 1000},
					"parallel_swarms": {"type": "integer", "minimum": 1, "maximum": 64}
				},
				"required": ["task"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "status",
			Description: "Show a session summary, optionally with its sprints.",
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "minLength": 1},
					"verbose": {"type": "boolean"}
				},
				"required": ["session_id"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "sprint",
			Description: "Run the next sprint of an active session and score it.",
			Mutating:    true,
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "minLength": 1},
					"objective": {"type": "string"}
				},
				"required": ["session_id"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "checkpoint",
			Description: "Snapshot a session against its latest sprint.",
			Mutating:    true,
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1, "maxLength": 200},
					"description": {"type": "string"}
				},
				"required": ["session_id", "name"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "restore",
			Description: "Return the state captured by a checkpoint.",
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"checkpoint_id": {"type": "string", "minLength": 1}
				},
				"required": ["checkpoint_id"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "list",
			Description: "List sessions, or the checkpoints of a session.",
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"type": {"enum": ["sessions", "checkpoints"]},
					"session_id": {"type": "string", "minLength": 1},
					"status": {"enum": ["", "active", "completed", "failed", "cancelled"]}
				},
				"required": ["type"],
				"additionalProperties": false,
				"if": {"properties": {"type": {"const": "checkpoints"}}},
				"then": {"required": ["session_id"]}
			}`),
		},
		{
			Name:        "cancel",
			Description: "Cancel an active session.",
			Mutating:    true,
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "minLength": 1}
				},
				"required": ["session_id"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "metrics",
			Description: "Aggregate sprint metrics for a session.",
			Enabled:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "minLength": 1},
					"include_resources": {"type": "boolean"}
				},
				"required": ["session_id"],
				"additionalProperties": false
			}`),
		},
	}
}
