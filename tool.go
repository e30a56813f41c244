package kage

import (
	"context"
	"encoding/json"
)

// Tool is one agent capability. A single Tool may expose several
// functions to the model: the browser tool alone contributes the whole
// navigation vocabulary (click, type_text, browser_goto, ...).
type Tool interface {
	// Definitions lists the functions this tool adds to the model's
	// vocabulary.
	Definitions() []ToolDefinition

	// Execute runs one of those functions. name is a name returned by
	// Definitions; args is the model's JSON argument object.
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is what a tool hands back to the model. Error carries
// failures the model should see and work around; infrastructure
// failures travel as Go errors instead.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry collects one agent's tools and routes calls to them by
// function name.
type ToolRegistry struct {
	tools []Tool
	owner map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{owner: make(map[string]Tool)}
}

// Add registers every function of t. A name that is already taken stays
// with its first owner, so built-ins cannot be shadowed by tools added
// later.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		if _, taken := r.owner[d.Name]; !taken {
			r.owner[d.Name] = t
		}
	}
}

// AllDefinitions lists every registered function in registration order,
// ready to attach to a ChatRequest.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute routes one call to the tool owning name. An unknown name is
// reported through ToolResult.Error rather than a Go error, so the
// model sees the mistake and the conversation continues.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.owner[name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	return t.Execute(ctx, name, args)
}
