package kage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// mockProvider returns scripted responses in sequence. Calling it more
// times than there are responses is a test bug and fails loudly. The
// optional onChat hook observes each request, letting tests assert on
// the exact messages the loop assembled.
type mockProvider struct {
	name      string
	responses []ChatResponse
	onChat    func(ChatRequest)

	mu          sync.Mutex
	calls       int
	streamCalls int
}

func (m *mockProvider) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

func (m *mockProvider) next(req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()
	if m.onChat != nil {
		m.onChat(req)
	}
	if i >= len(m.responses) {
		return ChatResponse{}, errors.New("mockProvider: no scripted response left")
	}
	return m.responses[i], nil
}

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	return m.next(req)
}

// ChatStream emits the scripted content as a single text event. It never
// closes ch; that is the caller's job.
func (m *mockProvider) ChatStream(_ context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	m.mu.Lock()
	m.streamCalls++
	m.mu.Unlock()
	resp, err := m.next(req)
	if err != nil {
		return resp, err
	}
	if resp.Content != "" {
		ch <- StreamEvent{Type: EventText, Content: resp.Content}
	}
	return resp, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Provider = (*mockProvider)(nil)

// --- Tool mocks ---

type noteTool struct{}

func (noteTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "save_note", Description: "Save a note for later"}}
}

func (noteTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "saved by " + name}, nil
}

type clockTool struct{}

func (clockTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "clock", Description: "Report the current time"}}
}

func (clockTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "result from " + name}, nil
}

type errTool struct{}

func (errTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "flaky", Description: "Always fails"}}
}

func (errTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

type multiTool struct{}

func (multiTool) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{Name: "tab_count", Description: "Count open tabs"},
		{Name: "tab_titles", Description: "List open tab titles"},
	}
}

func (multiTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "handled " + name}, nil
}

// --- Store mock ---

// nopStore satisfies Store with no-ops. Embed it in test-specific stores
// that only care about one method.
type nopStore struct{}

func (nopStore) SaveRun(_ context.Context, _ RunRecord) error       { return nil }
func (nopStore) Runs(_ context.Context, _ int) ([]RunRecord, error) { return nil, nil }
func (nopStore) Init(_ context.Context) error                       { return nil }
func (nopStore) Close() error                                       { return nil }

var _ Store = nopStore{}

// drainEvents reads everything from an already-closed stream channel.
func drainEvents(ch chan StreamEvent) []StreamEvent {
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

// eventsOfType filters a drained event slice by type.
func eventsOfType(events []StreamEvent, t StreamEventType) []StreamEvent {
	var out []StreamEvent
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
