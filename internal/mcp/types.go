// Package mcp describes the control methods as MCP-style tools, each with a
// JSON Schema for its parameters.
package mcp

import "encoding/json"

// Tool is one control method exposed to clients.
type Tool struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	InputSchema json.RawMessage `yaml:"-" json:"inputSchema"`
	// Mutating tools change stored state and are audited.
	Mutating bool `yaml:"mutating" json:"mutating"`
	Enabled  bool `yaml:"enabled" json:"enabled"`
}

// ParamsError reports parameters that do not match a tool's schema.
type ParamsError struct {
	Tool    string
	Message string
}

func (e *ParamsError) Error() string {
	return "invalid params for " + e.Tool + ": " + e.Message
}
