package kage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nevindra/kage/browser"
)

func findDefinition(t *testing.T, name string) ToolDefinition {
	t.Helper()
	for _, d := range NewBrowserTool(nil).Definitions() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no definition named %q", name)
	return ToolDefinition{}
}

func TestBrowserToolDefinitionOrder(t *testing.T) {
	want := []string{
		"click", "type_text", "scroll", "refresh", "extract_page_content",
		"go_back", "go_forward", "hover", "press_key", "drag", "wait_for",
		"browser_goto", "browser_select_option", "list_tabs", "switch_tab",
		"open_new_tab", "close_tab", "take_note",
	}
	defs := NewBrowserTool(nil).Definitions()
	if len(defs) != len(want) {
		t.Fatalf("len(Definitions()) = %d, want %d", len(defs), len(want))
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("definition %d = %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestBrowserToolSchemasAreObjects(t *testing.T) {
	for _, d := range NewBrowserTool(nil).Definitions() {
		var schema struct {
			Type       string                     `json:"type"`
			Properties map[string]json.RawMessage `json:"properties"`
			Required   []string                   `json:"required"`
		}
		if err := json.Unmarshal(d.Parameters, &schema); err != nil {
			t.Errorf("%s: parameters do not parse: %v", d.Name, err)
			continue
		}
		if schema.Type != "object" {
			t.Errorf("%s: schema type = %q, want %q", d.Name, schema.Type, "object")
		}
		for _, req := range schema.Required {
			if _, ok := schema.Properties[req]; !ok {
				t.Errorf("%s: required field %q missing from properties", d.Name, req)
			}
		}
	}
}

func TestBrowserGotoDescriptionEmphasizesEvidence(t *testing.T) {
	desc := findDefinition(t, "browser_goto").Description
	for _, phrase := range []string{
		"PRIMARY tool for gathering evidence",
		"BEFORE making any factual claims",
		"Never assume information",
		"always navigate to see current content",
	} {
		if !strings.Contains(desc, phrase) {
			t.Errorf("browser_goto description missing %q", phrase)
		}
	}
}

func TestExtractPageContentDescriptionEmphasizesVerification(t *testing.T) {
	desc := findDefinition(t, "extract_page_content").Description
	for _, phrase := range []string{
		"ESSENTIAL for fact verification",
		"Verify information you need to report",
		"BEFORE stating facts from a website",
		"Never make claims about page content without first using this tool",
	} {
		if !strings.Contains(desc, phrase) {
			t.Errorf("extract_page_content description missing %q", phrase)
		}
	}
}

func TestBrowserToolRejectsMalformedArgs(t *testing.T) {
	bt := NewBrowserTool(nil)
	cases := []struct {
		tool string
		args string
	}{
		{"click", `{"bbox_id": "seven"}`},
		{"type_text", `{"bbox_id": 1, "text_content": 42}`},
		{"scroll", `["page", "down"]`},
		{"browser_select_option", `{"bbox_id": 0, "values": "a"}`},
		{"wait_for", `{"time": "soon"}`},
	}
	for _, tc := range cases {
		res, err := bt.Execute(context.Background(), tc.tool, json.RawMessage(tc.args))
		if err != nil {
			t.Fatalf("%s: Execute returned error %v, want soft failure", tc.tool, err)
		}
		if !strings.HasPrefix(res.Error, "invalid args:") {
			t.Errorf("%s: Error = %q, want invalid args prefix", tc.tool, res.Error)
		}
	}
}

func TestBrowserToolUnknownName(t *testing.T) {
	res, err := NewBrowserTool(nil).Execute(context.Background(), "teleport", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute returned error %v, want soft failure", err)
	}
	if res.Error != "unknown tool: teleport" {
		t.Errorf("Error = %q, want %q", res.Error, "unknown tool: teleport")
	}
}

func TestPageContextMessagesEmpty(t *testing.T) {
	if msgs := pageContextMessages(nil, 0); msgs != nil {
		t.Errorf("pageContextMessages(nil) = %v, want nil", msgs)
	}
	if msgs := pageContextMessages(&browser.Observation{}, 0); msgs != nil {
		t.Errorf("pageContextMessages(empty) = %v, want nil", msgs)
	}
}

func TestPageContextMessagesMarkdownOnly(t *testing.T) {
	obs := &browser.Observation{Markdown: "Extracted PDF text."}
	msgs := pageContextMessages(obs, 0)
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Role != "user" {
		t.Errorf("Role = %q, want %q", msg.Role, "user")
	}
	if len(msg.Images) != 0 {
		t.Errorf("len(Images) = %d, want 0", len(msg.Images))
	}
	if !strings.Contains(msg.Content, "Page Content (Markdown):") {
		t.Errorf("Content = %q, want markdown header", msg.Content)
	}
	if strings.Contains(msg.Content, "Current state of the page:") {
		t.Error("state header should require both a screenshot and elements")
	}
}

func TestPageContextMessagesFullPage(t *testing.T) {
	obs := &browser.Observation{
		Screenshot: "aGVsbG8=",
		Elements: []browser.Element{
			{Type: "button", Text: "Submit", ViewportPosition: "in-viewport"},
			{Type: "a", Text: "Docs", ViewportPosition: "in-viewport"},
		},
		Tabs: []browser.Tab{{Index: 0, Title: "Home", Active: true}},
	}
	msgs := pageContextMessages(obs, 0)
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if !strings.Contains(msg.Content, "Current state of the page:") {
		t.Error("missing state header")
	}
	if !strings.Contains(msg.Content, `bbox_id: 0 (<button/>): "Submit"`) {
		t.Errorf("element listing missing from content:\n%s", msg.Content)
	}
	if strings.Contains(msg.Content, "Browser Tabs") {
		t.Error("tab overview should be omitted with a single tab")
	}
	if len(msg.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(msg.Images))
	}
	if msg.Images[0].MimeType != "image/png" {
		t.Errorf("MimeType = %q, want %q", msg.Images[0].MimeType, "image/png")
	}
	if msg.Images[0].Base64 != obs.Screenshot {
		t.Errorf("Base64 = %q, want %q", msg.Images[0].Base64, obs.Screenshot)
	}
}

func TestPageContextMessagesMultiTab(t *testing.T) {
	obs := &browser.Observation{
		Screenshot: "aGVsbG8=",
		Elements:   []browser.Element{{Type: "input", Text: "Search", ViewportPosition: "in-viewport"}},
		Tabs: []browser.Tab{
			{Index: 0, Title: "Home", Active: false},
			{Index: 1, Title: "Results", Active: true},
		},
	}
	msgs := pageContextMessages(obs, 1)
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	content := msgs[0].Content
	tabIdx := strings.Index(content, "Browser Tabs:")
	stateIdx := strings.Index(content, "Current state of the page:")
	if tabIdx < 0 {
		t.Fatal("missing tab overview")
	}
	if stateIdx < 0 {
		t.Fatal("missing state header")
	}
	if tabIdx > stateIdx {
		t.Error("tab overview should precede the state header")
	}
	if !strings.Contains(content, "Currently viewing Tab 1") {
		t.Errorf("content missing active tab line:\n%s", content)
	}
}

func TestPageContextMessagesScreenshotOnly(t *testing.T) {
	obs := &browser.Observation{Screenshot: "aGVsbG8="}
	msgs := pageContextMessages(obs, 0)
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	if msgs[0].Content != "" {
		t.Errorf("Content = %q, want empty", msgs[0].Content)
	}
	if len(msgs[0].Images) != 1 {
		t.Errorf("len(Images) = %d, want 1", len(msgs[0].Images))
	}
}
