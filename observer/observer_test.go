package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nevindra/kage"
)

// fakeProvider streams its chunks as text events, then returns resp/err.
// It leaves ch open, matching the kage.Provider contract.
type fakeProvider struct {
	resp   kage.ChatResponse
	err    error
	chunks []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(context.Context, kage.ChatRequest) (kage.ChatResponse, error) {
	return f.resp, f.err
}

func (f *fakeProvider) ChatStream(_ context.Context, _ kage.ChatRequest, ch chan<- kage.StreamEvent) (kage.ChatResponse, error) {
	for _, c := range f.chunks {
		ch <- kage.StreamEvent{Type: kage.EventText, Content: c}
	}
	return f.resp, f.err
}

type fakeTool struct {
	defs []kage.ToolDefinition
	run  func() (kage.ToolResult, error)
}

func (f *fakeTool) Definitions() []kage.ToolDefinition { return f.defs }

func (f *fakeTool) Execute(context.Context, string, json.RawMessage) (kage.ToolResult, error) {
	return f.run()
}

type fakeRunner struct {
	answer string
	err    error
	events []kage.StreamEvent
}

func (f *fakeRunner) Name() string { return "kage" }

func (f *fakeRunner) Run(context.Context, string) (string, error) { return f.answer, f.err }

func (f *fakeRunner) RunStream(_ context.Context, _ string, ch chan<- kage.StreamEvent) (string, error) {
	for _, ev := range f.events {
		ch <- ev
	}
	return f.answer, f.err
}

// noopInstruments builds Instruments on the global OTEL providers, which are
// no-ops unless Init ran. Good enough to test delegation without a backend.
func noopInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

// drain closes ch (the test owns it) and collects whatever was buffered.
func drain(ch chan kage.StreamEvent) []kage.StreamEvent {
	close(ch)
	var evs []kage.StreamEvent
	for ev := range ch {
		evs = append(evs, ev)
	}
	return evs
}

func TestWrapProviderChat(t *testing.T) {
	want := kage.ChatResponse{
		Content: "The checkout page lists free shipping over $50.",
		Usage:   kage.Usage{InputTokens: 10, OutputTokens: 5},
	}
	op := WrapProvider(&fakeProvider{resp: want}, "gpt-5-mini", noopInstruments(t))

	if got := op.Name(); got != "fake" {
		t.Errorf("Name() = %q, want %q", got, "fake")
	}

	got, err := op.Chat(context.Background(), kage.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
}

func TestWrapProviderChat_Error(t *testing.T) {
	boom := errors.New("provider unavailable")
	op := WrapProvider(&fakeProvider{err: boom}, "m", noopInstruments(t))

	if _, err := op.Chat(context.Background(), kage.ChatRequest{}); !errors.Is(err, boom) {
		t.Errorf("Chat error = %v, want %v", err, boom)
	}
}

func TestWrapProviderChat_ToolRequest(t *testing.T) {
	want := kage.ChatResponse{
		ToolCalls: []kage.ToolCall{
			{ID: "call-1", Name: "browser_goto", Args: json.RawMessage(`{"url":"https://example.com"}`)},
		},
		Usage: kage.Usage{InputTokens: 20, OutputTokens: 15},
	}
	op := WrapProvider(&fakeProvider{resp: want}, "m", noopInstruments(t))

	req := kage.ChatRequest{
		Tools: []kage.ToolDefinition{{Name: "browser_goto", Description: "navigate to a URL"}},
	}
	got, err := op.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "browser_goto" {
		t.Errorf("ToolCalls = %+v, want one browser_goto call", got.ToolCalls)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
}

func TestWrapProviderStream(t *testing.T) {
	want := kage.ChatResponse{
		Content: "hello world",
		Usage:   kage.Usage{InputTokens: 8, OutputTokens: 2},
	}
	op := WrapProvider(&fakeProvider{resp: want, chunks: []string{"hello", " world"}}, "m", noopInstruments(t))

	ch := make(chan kage.StreamEvent, 10)
	got, err := op.ChatStream(context.Background(), kage.ChatRequest{}, ch)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}

	var text string
	for _, ev := range drain(ch) {
		text += ev.Content
	}
	if text != "hello world" {
		t.Errorf("streamed text = %q, want %q", text, "hello world")
	}
}

func TestWrapProviderStream_ChannelStaysOpen(t *testing.T) {
	op := WrapProvider(&fakeProvider{chunks: []string{"hi"}}, "m", noopInstruments(t))

	ch := make(chan kage.StreamEvent, 10)
	if _, err := op.ChatStream(context.Background(), kage.ChatRequest{}, ch); err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	select {
	case ch <- kage.StreamEvent{Type: kage.EventText, Content: "still open"}:
	default:
		t.Fatal("send on ch failed; wrapper closed the caller's channel")
	}
}

func TestWrapToolExecute(t *testing.T) {
	boom := errors.New("browser session closed")
	tests := []struct {
		name   string
		result kage.ToolResult
		err    error
	}{
		{"success", kage.ToolResult{Content: "Clicked element 4: 'Add to cart'"}, nil},
		{"tool-reported failure", kage.ToolResult{Error: "element index 99 out of range"}, nil},
		{"infrastructure error", kage.ToolResult{}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &fakeTool{run: func() (kage.ToolResult, error) { return tt.result, tt.err }}
			ot := WrapTool(inner, noopInstruments(t))

			got, err := ot.Execute(context.Background(), "browser_click", json.RawMessage(`{"index":4}`))
			if !errors.Is(err, tt.err) {
				t.Fatalf("Execute error = %v, want %v", err, tt.err)
			}
			if got != tt.result {
				t.Errorf("Execute = %+v, want %+v", got, tt.result)
			}
		})
	}
}

func TestWrapToolDefinitions(t *testing.T) {
	defs := []kage.ToolDefinition{
		{Name: "browser_click", Description: "click an element by index"},
		{Name: "browser_extract", Description: "extract page content"},
	}
	ot := WrapTool(&fakeTool{defs: defs}, noopInstruments(t))

	got := ot.Definitions()
	if len(got) != 2 || got[0].Name != "browser_click" || got[1].Name != "browser_extract" {
		t.Errorf("Definitions = %+v, want the inner tool's definitions unchanged", got)
	}
}

func TestWrapAgentRun(t *testing.T) {
	boom := errors.New("browser launch failed")
	tests := []struct {
		name   string
		answer string
		err    error
	}{
		{"success", "The cheapest flight is $214 on Tuesday.", nil},
		{"failure", "", boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oa := WrapAgent(&fakeRunner{answer: tt.answer, err: tt.err}, noopInstruments(t))

			got, err := oa.Run(context.Background(), "find the cheapest flight to Tokyo")
			if !errors.Is(err, tt.err) {
				t.Fatalf("Run error = %v, want %v", err, tt.err)
			}
			if got != tt.answer {
				t.Errorf("Run = %q, want %q", got, tt.answer)
			}
		})
	}
}

func TestWrapAgentRun_DeadContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oa := WrapAgent(&fakeRunner{err: context.Canceled}, noopInstruments(t))
	if _, err := oa.Run(ctx, "check the weather"); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want %v", err, context.Canceled)
	}
}

func TestWrapAgentRunStream(t *testing.T) {
	events := []kage.StreamEvent{
		{Type: kage.EventTurnStart, Turn: 1},
		{Type: kage.EventText, Content: "Looking at the results page."},
		{Type: kage.EventFinalAnswer, Content: "done"},
	}
	oa := WrapAgent(&fakeRunner{answer: "done", events: events}, noopInstruments(t))

	if got := oa.Name(); got != "kage" {
		t.Errorf("Name() = %q, want %q", got, "kage")
	}

	ch := make(chan kage.StreamEvent, 10)
	got, err := oa.RunStream(context.Background(), "summarize the results", ch)
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	if got != "done" {
		t.Errorf("RunStream = %q, want %q", got, "done")
	}

	received := drain(ch)
	if len(received) != len(events) {
		t.Fatalf("received %d events, want %d", len(received), len(events))
	}
	for i, ev := range received {
		if ev.Type != events[i].Type {
			t.Errorf("event[%d].Type = %q, want %q", i, ev.Type, events[i].Type)
		}
	}
}
