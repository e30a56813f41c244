package kage

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/nevindra/kage/browser"
)

// BrowserTool exposes a browser session as the agent's web automation
// functions. Action outcomes are returned as tool content even when the
// action failed — the outcome strings are written for the model, which
// reads them and recovers. The Error field is reserved for malformed
// arguments and unknown tool names.
type BrowserTool struct {
	session *browser.Session
}

// NewBrowserTool wraps a browser session.
func NewBrowserTool(session *browser.Session) *BrowserTool {
	return &BrowserTool{session: session}
}

// Session returns the underlying browser session.
func (t *BrowserTool) Session() *browser.Session {
	return t.session
}

func (t *BrowserTool) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "click",
			Description: "Click on an interactive element identified by its bounding box ID. Use this to click buttons, links, form elements, or any clickable element on the page.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"bbox_id":{"type":"integer","description":"The ID number of the bounding box element to click (from the page annotation)."}},"required":["bbox_id"]}`),
		},
		{
			Name:        "type_text",
			Description: "Type text into an input field, textarea, or other text input element identified by its bounding box ID.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"bbox_id":{"type":"integer","description":"The ID number of the input element to type into."},"text_content":{"type":"string","description":"The text to type into the element."}},"required":["bbox_id","text_content"]}`),
		},
		{
			Name:        "scroll",
			Description: "Scroll the page or a specific element up or down to reveal more content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"target":{"type":"string","description":"Either \"page\" to scroll the entire page, or a bbox_id number to scroll within a specific element."},"direction":{"type":"string","description":"\"up\" or \"down\" to specify scroll direction."}},"required":["target","direction"]}`),
		},
		{
			Name:        "refresh",
			Description: "Refresh the current browser page to get the latest content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "extract_page_content",
			Description: "\"Read\" the entire page's content. Use this when you need to understand the whole page, not just the visible part. It returns a cleaned-up, Markdown-formatted version of the page content. ESSENTIAL for fact verification: Verify information you need to report BEFORE stating facts from a website. Never make claims about page content without first using this tool.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "go_back",
			Description: "Navigate back to the previous page in the browser history.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "go_forward",
			Description: "Navigate forward to the next page in the browser history.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "hover",
			Description: "Hover the mouse over an element to reveal hidden menus or tooltips.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"bbox_id":{"type":"integer","description":"The ID of the element to hover over."}},"required":["bbox_id"]}`),
		},
		{
			Name:        "press_key",
			Description: "Simulate a key press on the keyboard.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"key":{"type":"string","description":"The key to press (e.g., 'Enter', 'Escape', 'ArrowDown'). Modifier combinations like 'Control+A' are supported."}},"required":["key"]}`),
		},
		{
			Name:        "drag",
			Description: "Drag an element from a start position to an end position.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"start_bbox_id":{"type":"integer","description":"The ID of the element to start dragging."},"end_bbox_id":{"type":"integer","description":"The ID of the element to drop onto."}},"required":["start_bbox_id","end_bbox_id"]}`),
		},
		{
			Name:        "wait_for",
			Description: "Wait for a specific condition to be met: a fixed amount of time, or an element appearing or disappearing.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"time":{"type":"number","description":"Time to wait in seconds (maximum 20)."},"bbox_id":{"type":"integer","description":"The ID of an element to wait for."},"state":{"type":"string","description":"\"attached\" to wait for the element to appear, or \"detached\" to wait for it to disappear. Defaults to \"attached\"."}}}`),
		},
		{
			Name:        "browser_goto",
			Description: "Navigate directly to a specific URL. This is your PRIMARY tool for gathering evidence: use it BEFORE making any factual claims about a website. Never assume information from memory or prior knowledge; always navigate to see current content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"The URL to navigate to (http/https prefix is optional)."}},"required":["url"]}`),
		},
		{
			Name:        "browser_select_option",
			Description: "Select one or more options from a dropdown/select element.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"bbox_id":{"type":"integer","description":"The ID number of the select element."},"values":{"type":"array","items":{"type":"string"},"description":"List of option values to select."}},"required":["bbox_id","values"]}`),
		},
		{
			Name:        "list_tabs",
			Description: "List all open browser tabs with their indices, titles, and URLs.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "switch_tab",
			Description: "Switch to a specific browser tab by its index number.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"tab_index":{"type":"integer","description":"The index number of the tab to switch to (from list_tabs)."}},"required":["tab_index"]}`),
		},
		{
			Name:        "open_new_tab",
			Description: "Open a new browser tab, optionally navigating to a specific URL.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to navigate to in the new tab."}}}`),
		},
		{
			Name:        "close_tab",
			Description: "Close a browser tab by its index, or close the current tab if no index is specified.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"tab_index":{"type":"integer","description":"Index of the tab to close. If omitted, closes the current tab."}}}`),
		},
		{
			Name:        "take_note",
			Description: "Take a note for future reference during this session.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"note":{"type":"string","description":"The note to record."}},"required":["note"]}`),
		},
	}
}

func (t *BrowserTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	// Zero-parameter tools may arrive with empty args from some providers.
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}

	switch name {
	case "click":
		var params struct {
			BboxID int `json:"bbox_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.Click(ctx, params.BboxID)}, nil

	case "type_text":
		var params struct {
			BboxID      int    `json:"bbox_id"`
			TextContent string `json:"text_content"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.TypeText(ctx, params.BboxID, params.TextContent)}, nil

	case "scroll":
		var params struct {
			Target    string `json:"target"`
			Direction string `json:"direction"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.Scroll(ctx, params.Target, params.Direction)}, nil

	case "refresh":
		return ToolResult{Content: t.session.Refresh(ctx)}, nil

	case "extract_page_content":
		return ToolResult{Content: t.session.ExtractPageContent(ctx)}, nil

	case "go_back":
		return ToolResult{Content: t.session.GoBack(ctx)}, nil

	case "go_forward":
		return ToolResult{Content: t.session.GoForward(ctx)}, nil

	case "hover":
		var params struct {
			BboxID int `json:"bbox_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.Hover(ctx, params.BboxID)}, nil

	case "press_key":
		var params struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.PressKey(ctx, params.Key)}, nil

	case "drag":
		var params struct {
			StartBboxID int `json:"start_bbox_id"`
			EndBboxID   int `json:"end_bbox_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.Drag(ctx, params.StartBboxID, params.EndBboxID)}, nil

	case "wait_for":
		var params struct {
			Time   *float64 `json:"time"`
			BboxID *int     `json:"bbox_id"`
			State  string   `json:"state"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		if params.State == "" {
			params.State = "attached"
		}
		return ToolResult{Content: t.session.WaitFor(ctx, params.Time, params.BboxID, params.State)}, nil

	case "browser_goto":
		var params struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.Goto(ctx, params.URL)}, nil

	case "browser_select_option":
		var params struct {
			BboxID int      `json:"bbox_id"`
			Values []string `json:"values"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.SelectOption(ctx, params.BboxID, params.Values)}, nil

	case "list_tabs":
		return ToolResult{Content: t.session.ListTabs(ctx)}, nil

	case "switch_tab":
		var params struct {
			TabIndex int `json:"tab_index"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.SwitchTab(ctx, params.TabIndex)}, nil

	case "open_new_tab":
		var params struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.OpenNewTab(ctx, params.URL)}, nil

	case "close_tab":
		var params struct {
			TabIndex *int `json:"tab_index"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.CloseTab(ctx, params.TabIndex)}, nil

	case "take_note":
		var params struct {
			Note string `json:"note"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: t.session.TakeNote(params.Note)}, nil
	}

	return ToolResult{Error: "unknown tool: " + name}, nil
}

// Observe captures a fresh snapshot of the active page and renders it as
// the transient context messages for the next model turn. The returned URL
// is the active page's location, used to decide whether the navigation
// reminder applies.
func (t *BrowserTool) Observe(ctx context.Context) ([]ChatMessage, string, error) {
	obs, err := t.session.Observe(ctx)
	if err != nil {
		return nil, "", err
	}
	return pageContextMessages(obs, t.session.ActiveTabIndex()), obs.URL, nil
}

// pageContextMessages renders an observation as a single consolidated user
// message: the tab overview (only when more than one tab is open), the
// annotated element tree, the page markdown, and the screenshot. Returns
// nil when the observation carries nothing to show.
func pageContextMessages(obs *browser.Observation, activeTab int) []ChatMessage {
	if obs == nil {
		return nil
	}

	var parts []string
	if len(obs.Tabs) > 1 {
		parts = append(parts, browser.FormatTabs(obs.Tabs, activeTab))
	}
	if obs.Screenshot != "" && len(obs.Elements) > 0 {
		parts = append(parts, "Current state of the page:")
	}
	if len(obs.Elements) > 0 {
		parts = append(parts, browser.FormatElements(obs.Elements))
	}
	if obs.Markdown != "" {
		parts = append(parts, browser.FormatMarkdown(obs.Markdown))
	}

	if len(parts) == 0 && obs.Screenshot == "" {
		return nil
	}

	msg := ChatMessage{Role: "user", Content: strings.Join(parts, "\n\n")}
	if obs.Screenshot != "" {
		msg.Images = []ImageData{{MimeType: "image/png", Base64: obs.Screenshot}}
	}
	return []ChatMessage{msg}
}
