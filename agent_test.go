package kage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nevindra/kage/chat"
)

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(nil)
	if err == nil || !strings.Contains(err.Error(), "provider is required") {
		t.Errorf("got %v", err)
	}
}

func TestNewFailsAtCapacity(t *testing.T) {
	drainSlots(t)
	for range MaxAgents {
		if err := acquireAgentSlot(); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
	}
	defer func() {
		for range MaxAgents {
			releaseAgentSlot()
		}
	}()

	// The slot check runs before any resource is provisioned, so this
	// fails fast without launching a browser.
	_, err := New(&mockProvider{}, WithChatDisabled())
	var capErr *ErrCapacity
	if !errors.As(err, &capErr) {
		t.Fatalf("got %v, want ErrCapacity", err)
	}
	if LiveAgents() != MaxAgents {
		t.Errorf("failed construction leaked a slot: LiveAgents() = %d", LiveAgents())
	}
}

func TestBuildAgentConfigDefaults(t *testing.T) {
	cfg := buildAgentConfig(nil)
	if cfg.room != chat.DefaultRoom {
		t.Errorf("room = %q, want %q", cfg.room, chat.DefaultRoom)
	}
	if cfg.logger == nil {
		t.Error("logger not defaulted")
	}
	if cfg.name != "" || cfg.cloneDepth != 0 || cfg.chatDisabled {
		t.Errorf("unexpected non-zero defaults: %+v", cfg)
	}
}

func TestBuildAgentConfigOptions(t *testing.T) {
	summarizer := &mockProvider{name: "summarizer"}
	logger := slog.New(slog.DiscardHandler)
	cfg := buildAgentConfig([]Option{
		WithName("calm-heron"),
		WithRoom("research"),
		WithCloneDepth(2),
		WithMaxTurns(25),
		WithHeadless(true),
		WithViewport(1440, 900),
		WithExecPath("/usr/bin/chromium"),
		WithProfileDir("/tmp/kage-profile"),
		WithPermissions("clipboardReadWrite"),
		WithChatDisabled(),
		WithSummarization(true),
		WithSummarizerProvider(summarizer),
		WithStore(nopStore{}),
		WithTools(noteTool{}, clockTool{}),
		WithLogger(logger),
	})

	if cfg.name != "calm-heron" || cfg.room != "research" || cfg.cloneDepth != 2 {
		t.Errorf("identity options not applied: %+v", cfg)
	}
	if cfg.maxTurns != 25 || !cfg.headless || cfg.viewportW != 1440 || cfg.viewportH != 900 {
		t.Errorf("browser/loop options not applied: %+v", cfg)
	}
	if cfg.execPath != "/usr/bin/chromium" || cfg.profileDir != "/tmp/kage-profile" {
		t.Errorf("chrome paths not applied: %+v", cfg)
	}
	if len(cfg.permissions) != 1 || cfg.permissions[0] != "clipboardReadWrite" {
		t.Errorf("permissions = %v", cfg.permissions)
	}
	if !cfg.chatDisabled || !cfg.summarize || cfg.summarizer != summarizer {
		t.Errorf("chat/summarizer options not applied: %+v", cfg)
	}
	if cfg.store == nil || len(cfg.extraTools) != 2 {
		t.Errorf("store/tools options not applied: %+v", cfg)
	}
	if cfg.logger != logger {
		t.Error("logger option not applied")
	}
}

func TestAgentDispatch(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(noteTool{})
	reg.Add(errTool{})
	a := &Agent{registry: reg, logger: nopLogger}

	// Success: content passes through.
	dr := a.dispatch(context.Background(), ToolCall{Name: "save_note"})
	if dr.IsError || dr.Content != "saved by save_note" {
		t.Errorf("got %+v", dr)
	}

	// Tool-level error result: surfaced as an error result for the model.
	dr = a.dispatch(context.Background(), ToolCall{Name: "no_such_tool"})
	if !dr.IsError || dr.Content != "unknown tool: no_such_tool" {
		t.Errorf("got %+v", dr)
	}

	// Go error from Execute: wrapped as an error result, not propagated.
	dr = a.dispatch(context.Background(), ToolCall{Name: "flaky"})
	if !dr.IsError || dr.Content != "Error: tool broken" {
		t.Errorf("got %+v", dr)
	}
}

func TestAgentFetchChat(t *testing.T) {
	mr := miniredis.RunT(t)
	client := chat.New(chat.Config{Addr: mr.Addr()})
	defer client.Close()

	a := &Agent{name: "calm-heron", room: "ops", chat: client, logger: nopLogger}
	ctx := context.Background()

	if err := client.Post(ctx, "ops", "bold-otter", "checking the docs site"); err != nil {
		t.Fatal(err)
	}
	got := a.fetchChat(ctx)
	if !strings.Contains(got, "bold-otter: checking the docs site") {
		t.Errorf("got %q", got)
	}

	mr.Close()
	if got := a.fetchChat(ctx); got != "(group chat unavailable)" {
		t.Errorf("got %q after redis went away", got)
	}
}

func TestAgentAnnounce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := chat.New(chat.Config{Addr: mr.Addr()})
	defer client.Close()

	a := &Agent{name: "calm-heron", room: "ops", chat: client, logger: nopLogger}
	ctx := context.Background()

	a.announce(ctx, "Starting task: compare keyboards")
	records, err := client.History(ctx, "ops", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Message != "Starting task: compare keyboards" {
		t.Errorf("records = %+v", records)
	}

	// Chatless agents skip announcements silently.
	chatless := &Agent{name: "solo", logger: nopLogger}
	chatless.announce(ctx, "nobody hears this")
}

func TestSummarizerProviderFallback(t *testing.T) {
	main := &mockProvider{name: "main"}
	cheap := &mockProvider{name: "cheap"}

	a := &Agent{provider: main}
	if got := a.summarizerProvider(); got != Provider(main) {
		t.Errorf("got %v, want the main provider", got.Name())
	}

	a.summarizer = cheap
	if got := a.summarizerProvider(); got != Provider(cheap) {
		t.Errorf("got %v, want the summarizer", got.Name())
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	a := &Agent{logger: nopLogger}
	a.history = []ChatMessage{UserMessage("original task")}

	snap := a.historySnapshot()
	snap[0].Content = "mutated"

	if a.history[0].Content != "original task" {
		t.Errorf("snapshot mutation reached the agent: %+v", a.history)
	}
}

func TestAgentAccessors(t *testing.T) {
	a := &Agent{name: "calm-heron", room: "ops", cloneDepth: 2, logger: nopLogger}
	if a.Name() != "calm-heron" || a.Room() != "ops" || a.CloneDepth() != 2 {
		t.Errorf("accessors = %q/%q/%d", a.Name(), a.Room(), a.CloneDepth())
	}
}

func TestAgentCloseIdempotent(t *testing.T) {
	drainSlots(t)
	if err := acquireAgentSlot(); err != nil {
		t.Fatal(err)
	}
	a := &Agent{name: "calm-heron", logger: nopLogger}

	if err := a.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if got := LiveAgents(); got != 0 {
		t.Errorf("LiveAgents() = %d after double close, want 0 (slot released once)", got)
	}
}
