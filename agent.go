package kage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nevindra/kage/browser"
	"github.com/nevindra/kage/chat"
)

// startURL is where a freshly launched root session lands before the
// first task. Clones adopt injected sessions and start on about:blank.
const startURL = "https://www.google.com"

// chatContextLimit is how many recent group chat messages are folded
// into the identity message each turn.
const chatContextLimit = 50

// Agent is a web automation agent: an LLM reason/act loop bound to an
// isolated browser session, a group chat room shared with its peers, and
// a delegation tool that spawns parallel clones of itself. Construct
// with New, run tasks with Run or RunStream, and Close when done to
// release the browser and the process-wide agent slot.
type Agent struct {
	name       string
	room       string
	provider   Provider
	summarizer Provider // nil = use provider for handoff summaries
	cloneDepth int
	maxTurns   int
	summarize  bool

	// browser is set only when the agent launched its own Chrome.
	// session is always set; ownsSession says whether Close closes it.
	browser     *browser.Browser
	session     *browser.Session
	ownsSession bool

	browserTool *BrowserTool
	registry    *ToolRegistry

	chat     *chat.Client
	ownsChat bool

	store  Store
	tracer Tracer
	logger *slog.Logger

	// mu guards history, which persists across runs on the same agent.
	mu      sync.Mutex
	history []ChatMessage

	closeOnce sync.Once
	closeErr  error
}

// New creates an agent. Unless WithBrowser injects an existing session,
// New launches a dedicated Chrome and opens a session pointed at the
// default search page. At most MaxAgents agents may be live in the
// process at once; beyond that New fails with ErrCapacity.
func New(provider Provider, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	cfg := buildAgentConfig(opts)

	// The slot is claimed before any resource exists so that a failed
	// construction never leaks capacity.
	if err := acquireAgentSlot(); err != nil {
		return nil, err
	}

	name := cfg.name
	if name == "" {
		name = GenerateAgentName()
	}

	a := &Agent{
		name:       name,
		room:       cfg.room,
		provider:   provider,
		summarizer: cfg.summarizer,
		cloneDepth: cfg.cloneDepth,
		maxTurns:   cfg.maxTurns,
		summarize:  cfg.summarize,
		store:      cfg.store,
		tracer:     cfg.tracer,
		logger:     cfg.logger,
	}

	if cfg.session != nil {
		a.session = cfg.session
	} else {
		b, err := browser.Launch(context.Background(), browser.Config{
			Headless:       cfg.headless,
			ExecPath:       cfg.execPath,
			ProfileDir:     cfg.profileDir,
			ViewportWidth:  cfg.viewportW,
			ViewportHeight: cfg.viewportH,
			Logger:         cfg.logger,
		})
		if err != nil {
			releaseAgentSlot()
			return nil, err
		}
		session, err := b.NewSession(context.Background(), browser.SessionConfig{
			InitialURL:  startURL,
			Permissions: cfg.permissions,
		})
		if err != nil {
			b.Close()
			releaseAgentSlot()
			return nil, err
		}
		a.browser = b
		a.session = session
		a.ownsSession = true
	}

	a.browserTool = NewBrowserTool(a.session)
	a.registry = NewToolRegistry()
	a.registry.Add(a.browserTool)
	a.registry.Add(NewDelegateTool(a))
	for _, t := range cfg.extraTools {
		a.registry.Add(t)
	}

	// Group chat: injected, disabled, or a default local Redis client.
	// An unreachable default degrades to chatless operation rather than
	// failing construction.
	switch {
	case cfg.chatClient != nil:
		a.chat = cfg.chatClient
	case cfg.chatDisabled:
	default:
		client := chat.New(chat.Config{})
		if err := client.Ping(context.Background()); err != nil {
			a.logger.Warn("group chat unavailable, continuing without it", "agent", name, "error", err)
			client.Close()
		} else {
			a.chat = client
			a.ownsChat = true
		}
	}

	a.logger.Info("agent ready",
		"agent", name, "room", a.room, "depth", a.cloneDepth, "live", LiveAgents())
	return a, nil
}

// Run executes one task to completion and returns the final answer. The
// conversation persists between calls, so follow-up tasks see earlier
// turns. The agent introduces itself and announces the task to the
// group chat first; announcements are best-effort.
func (a *Agent) Run(ctx context.Context, task string) (string, error) {
	a.announce(ctx, introMessage(a.name))
	a.announce(ctx, "Starting task: "+task)
	return a.run(ctx, task, nil)
}

// RunStream executes one task while emitting StreamEvents into ch,
// closing it when the run finishes. Returns the final answer like Run.
func (a *Agent) RunStream(ctx context.Context, task string, ch chan<- StreamEvent) (string, error) {
	a.announce(ctx, "Starting task (stream): "+task)
	return a.run(ctx, task, ch)
}

func (a *Agent) run(ctx context.Context, task string, ch chan<- StreamEvent) (string, error) {
	start := time.Now()

	var span Span
	if a.tracer != nil {
		ctx, span = a.tracer.Start(ctx, "agent.run",
			StringAttr("agent", a.name),
			IntAttr("depth", a.cloneDepth))
		defer span.End()
	}

	a.mu.Lock()
	a.history = append(a.history, UserMessage(task))
	history := make([]ChatMessage, len(a.history))
	copy(history, a.history)
	a.mu.Unlock()

	cfg := loopConfig{
		name:         a.name,
		provider:     a.provider,
		tools:        a.registry.AllDefinitions(),
		dispatch:     a.dispatch,
		systemPrompt: SystemPrompt,
		maxTurns:     a.maxTurns,
		observe:      a.browserTool.Observe,
		tracer:       a.tracer,
		logger:       a.logger,
	}
	if a.chat != nil {
		cfg.fetchChat = a.fetchChat
	}
	if a.summarize {
		cfg.summarizer = a.summarizerProvider()
	}

	a.logger.Info("run started", "agent", a.name, "task", task)
	answer, msgs, usage, err := runLoop(ctx, cfg, history, ch)

	a.mu.Lock()
	if len(msgs) > 0 {
		a.history = msgs
	}
	a.mu.Unlock()

	if span != nil {
		span.SetAttr(
			IntAttr("tokens.input", usage.InputTokens),
			IntAttr("tokens.output", usage.OutputTokens))
		if err != nil {
			span.Error(err)
		}
	}
	if err != nil {
		a.logger.Error("run failed", "agent", a.name, "error", err)
		return "", err
	}

	a.saveRun(ctx, task, answer, start)
	a.logger.Info("run finished",
		"agent", a.name,
		"actions", a.session.ActionCount(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)
	return answer, nil
}

// dispatch routes one tool call through the registry. Tool failures come
// back as error results, not Go errors: the loop feeds them to the model
// so it can recover.
func (a *Agent) dispatch(ctx context.Context, tc ToolCall) DispatchResult {
	res, err := a.registry.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return DispatchResult{Content: "Error: " + err.Error(), IsError: true}
	}
	if res.Error != "" {
		return DispatchResult{Content: res.Error, IsError: true}
	}
	return DispatchResult{Content: res.Content}
}

// fetchChat renders recent group chat history for the identity message.
// Failures degrade to a placeholder: chat visibility is advisory.
func (a *Agent) fetchChat(ctx context.Context) string {
	records, err := a.chat.History(ctx, a.room, chatContextLimit)
	if err != nil {
		a.logger.Warn("group chat history unavailable", "agent", a.name, "error", err)
		return "(group chat unavailable)"
	}
	return chat.FormatHistory(records)
}

// announce posts to the group chat and swallows failures; announcements
// never block or fail a run.
func (a *Agent) announce(ctx context.Context, message string) {
	if a.chat == nil {
		return
	}
	if err := a.chat.Post(ctx, a.room, a.name, message); err != nil {
		a.logger.Warn("group chat post failed", "agent", a.name, "error", err)
	}
}

// saveRun persists the completed run's transcript record. Storage errors
// are logged, not returned: persistence is an audit trail, not a
// precondition for answering.
func (a *Agent) saveRun(ctx context.Context, task, answer string, start time.Time) {
	if a.store == nil {
		return
	}
	rec := RunRecord{
		ID:         NewID(),
		Agent:      a.name,
		Room:       a.room,
		Task:       task,
		Answer:     answer,
		Actions:    a.session.ActionCount(),
		CloneDepth: a.cloneDepth,
		StartedAt:  start.UnixMilli(),
		FinishedAt: NowUnixMilli(),
	}
	if err := a.store.SaveRun(ctx, rec); err != nil {
		a.logger.Warn("saving run record", "agent", a.name, "error", err)
	}
}

// Close releases the agent's resources and its capacity slot. Injected
// sessions and chat clients stay open for their owners. Close is
// idempotent.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		defer releaseAgentSlot()
		if a.ownsSession && a.session != nil {
			if err := a.session.Close(); err != nil {
				a.closeErr = errors.Join(a.closeErr, err)
			}
		}
		if a.browser != nil {
			if err := a.browser.Close(); err != nil {
				a.closeErr = errors.Join(a.closeErr, err)
			}
		}
		if a.ownsChat && a.chat != nil {
			if err := a.chat.Close(); err != nil {
				a.closeErr = errors.Join(a.closeErr, err)
			}
		}
		a.logger.Info("agent closed", "agent", a.name)
	})
	return a.closeErr
}

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Room returns the group chat room the agent posts to.
func (a *Agent) Room() string { return a.room }

// CloneDepth returns the agent's depth in the clone tree; the root is 0.
func (a *Agent) CloneDepth() int { return a.cloneDepth }

// ActionCount returns how many browser actions the agent has performed.
func (a *Agent) ActionCount() int { return a.session.ActionCount() }

// CurrentURL returns the active tab's URL, or "" if unavailable.
func (a *Agent) CurrentURL(ctx context.Context) string { return a.session.CurrentURL(ctx) }

// CurrentTitle returns the active tab's title, or "" if unavailable.
func (a *Agent) CurrentTitle(ctx context.Context) string { return a.session.CurrentTitle(ctx) }

// Session exposes the agent's browser session.
func (a *Agent) Session() *browser.Session { return a.session }

// summarizerProvider picks the model for handoff and action summaries,
// falling back to the main provider.
func (a *Agent) summarizerProvider() Provider {
	if a.summarizer != nil {
		return a.summarizer
	}
	return a.provider
}

// historySnapshot copies the conversation so summarization can read it
// without holding the lock through an LLM call.
func (a *Agent) historySnapshot() []ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := make([]ChatMessage, len(a.history))
	copy(snap, a.history)
	return snap
}

// browserHandle returns the browser owning this agent's session so
// delegation can open isolated sibling contexts for clones.
func (a *Agent) browserHandle() (*browser.Browser, error) {
	if b := a.session.Browser(); b != nil {
		return b, nil
	}
	return nil, errors.New("cannot create a new browser context from the current session")
}

// nopLogger stands in when WithLogger is not set.
var nopLogger = slog.New(slog.DiscardHandler)
