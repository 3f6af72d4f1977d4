package mcp

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type manifestTool struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Mutating    bool   `yaml:"mutating" json:"mutating"`
	InputSchema any    `yaml:"inputSchema" json:"inputSchema"`
}

// WriteManifest writes the enabled tools as a YAML or JSON document.
func (r *Registry) WriteManifest(w io.Writer, format string) error {
	tools := r.Enabled()
	out := make([]manifestTool, 0, len(tools))
	for _, t := range tools {
		var schema any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return fmt.Errorf("decode schema for %s: %w", t.Name, err)
			}
		}
		out = append(out, manifestTool{Name: t.Name, Description: t.Description, Mutating: t.Mutating, InputSchema: schema})
	}
	doc := map[string]any{"tools": out}

	switch format {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown manifest format %q", format)
	}
}
