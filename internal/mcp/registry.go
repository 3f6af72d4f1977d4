package mcp

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

func cloneTool(t Tool) Tool {
	t.InputSchema = append([]byte(nil), t.InputSchema...)
	return t
}

// Registry holds the tools and their compiled schemas.
type Registry struct {
	tools map[string]*entry
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// NewDefaultRegistry creates a registry holding DefaultTools.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, t := range DefaultTools() {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles the tool's schema and adds or replaces the tool.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	schema, err := compile(tool.Name, tool.InputSchema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = &entry{tool: cloneTool(tool), schema: schema}
	return nil
}

func compile(name string, raw []byte) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte(`{"type": "object"}`)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return schema, nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return cloneTool(e.tool), true
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, cloneTool(e.tool))
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools
}

// Enabled returns the enabled tools sorted by name.
func (r *Registry) Enabled() []Tool {
	var out []Tool
	for _, t := range r.List() {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// Enable enables a tool.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable disables a tool. Calls to a disabled tool are rejected as unknown.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %q not found", name)
	}
	e.tool.Enabled = on
	return nil
}

// Validate checks params against the named tool's schema. Empty params are
// validated as an empty object.
func (r *Registry) Validate(name string, params []byte) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool %q not found", name)
	}

	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = []byte(`{}`)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return &ParamsError{Tool: name, Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := e.schema.Validate(inst); err != nil {
		return &ParamsError{Tool: name, Message: err.Error()}
	}
	return nil
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
