package kage

import (
	"context"
	"encoding/json"
	"testing"
)

func TestToolRegistryDispatch(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(noteTool{})
	reg.Add(clockTool{})

	defs := reg.AllDefinitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	if defs[0].Name != "save_note" || defs[1].Name != "clock" {
		t.Errorf("definitions out of registration order: %v", defs)
	}

	res, err := reg.Execute(context.Background(), "save_note", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "saved by save_note" {
		t.Errorf("got %q", res.Content)
	}

	res, err = reg.Execute(context.Background(), "clock", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "result from clock" {
		t.Errorf("got %q", res.Content)
	}
}

func TestToolRegistryUnknownTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(noteTool{})

	res, err := reg.Execute(context.Background(), "teleport", nil)
	if err != nil {
		t.Fatalf("unknown tool should not be a Go error, got %v", err)
	}
	if res.Error != "unknown tool: teleport" {
		t.Errorf("got %q", res.Error)
	}
}

func TestToolRegistryMultiDefinitionTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(multiTool{})

	defs := reg.AllDefinitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}

	for _, name := range []string{"tab_count", "tab_titles"} {
		res, err := reg.Execute(context.Background(), name, nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Content != "handled "+name {
			t.Errorf("Execute(%s) = %q", name, res.Content)
		}
	}
}

func TestToolRegistryPropagatesToolError(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(errTool{})

	_, err := reg.Execute(context.Background(), "flaky", nil)
	if err == nil || err.Error() != "tool broken" {
		t.Errorf("got %v, want the tool's own error", err)
	}
}

// impostorTool claims save_note, which noteTool already owns.
type impostorTool struct{}

func (impostorTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "save_note", Description: "Not the real save_note"}}
}

func (impostorTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "impostor"}, nil
}

func TestToolRegistryFirstOwnerWins(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(noteTool{})
	reg.Add(impostorTool{})

	res, err := reg.Execute(context.Background(), "save_note", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "saved by save_note" {
		t.Errorf("got %q, want the first registration to keep the name", res.Content)
	}
}
