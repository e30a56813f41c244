package kage

import (
	"log/slog"

	"github.com/nevindra/kage/browser"
	"github.com/nevindra/kage/chat"
)

// agentConfig is built from Options before constructing an Agent.
type agentConfig struct {
	name         string
	room         string
	chatClient   *chat.Client
	chatDisabled bool
	session      *browser.Session
	headless     bool
	execPath     string
	profileDir   string
	viewportW    int
	viewportH    int
	permissions  []string
	logger       *slog.Logger
	tracer       Tracer
	maxTurns     int
	summarize    bool
	store        Store
	extraTools   []Tool
	cloneDepth   int
	summarizer   Provider
}

// Option configures an Agent at construction time.
type Option func(*agentConfig)

// WithName sets the agent's display name. If not set, a unique petname
// (e.g. "wise-otter-7") is generated. The name identifies the agent in
// the group chat and in logs.
func WithName(name string) Option {
	return func(c *agentConfig) { c.name = name }
}

// WithRoom sets the group chat room the agent joins. Defaults to "lobby".
// Clones always inherit their parent's room.
func WithRoom(room string) Option {
	return func(c *agentConfig) { c.room = room }
}

// WithChat sets the group chat client. The agent does not own an injected
// client and will not close it. If neither WithChat nor WithChatDisabled
// is given, the agent connects to Redis on localhost with defaults.
func WithChat(client *chat.Client) Option {
	return func(c *agentConfig) { c.chatClient = client }
}

// WithChatDisabled turns the group chat layer off entirely. Chat posts
// become soft errors and the identity message reports no chat history.
func WithChatDisabled() Option {
	return func(c *agentConfig) { c.chatDisabled = true }
}

// WithBrowser attaches an existing browser session instead of launching a
// dedicated Chrome. The caller keeps ownership: Close will not close an
// injected session. Used by delegation to hand clones their own context.
func WithBrowser(session *browser.Session) Option {
	return func(c *agentConfig) { c.session = session }
}

// WithHeadless controls whether a launched browser runs headless.
// Ignored when WithBrowser injects a session. Defaults to headful.
func WithHeadless(headless bool) Option {
	return func(c *agentConfig) { c.headless = headless }
}

// WithExecPath sets the Chrome executable path for a launched browser.
// If not set, chromedp probes the usual install locations.
func WithExecPath(path string) Option {
	return func(c *agentConfig) { c.execPath = path }
}

// WithProfileDir sets a persistent user data directory for a launched
// browser, keeping cookies and sessions across runs.
func WithProfileDir(dir string) Option {
	return func(c *agentConfig) { c.profileDir = dir }
}

// WithViewport sets the page viewport size for a launched browser.
// Defaults to 1280x800.
func WithViewport(width, height int) Option {
	return func(c *agentConfig) {
		c.viewportW = width
		c.viewportH = height
	}
}

// WithPermissions overrides the browser permissions granted to sessions
// the agent creates (e.g. "clipboardReadWrite", "notifications").
func WithPermissions(perms ...string) Option {
	return func(c *agentConfig) { c.permissions = perms }
}

// WithLogger sets the structured logger for the agent and its browser.
// If not set, logging is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *agentConfig) { c.logger = l }
}

// WithTracer sets the tracer for the agent. When set, the agent emits
// spans for runs, turns, tool dispatches and delegation. Use
// observer.NewTracer() for OpenTelemetry integration.
func WithTracer(t Tracer) Option {
	return func(c *agentConfig) { c.tracer = t }
}

// WithMaxTurns caps the reason/act turns per run. Defaults to 150.
func WithMaxTurns(n int) Option {
	return func(c *agentConfig) { c.maxTurns = n }
}

// WithSummarization enables per-action summarization notes in the run
// transcript. Off by default; clones always run with it off.
func WithSummarization(enabled bool) Option {
	return func(c *agentConfig) { c.summarize = enabled }
}

// WithSummarizerProvider sets a cheaper model for context handoff
// summaries during delegation. Defaults to the agent's main provider.
func WithSummarizerProvider(p Provider) Option {
	return func(c *agentConfig) { c.summarizer = p }
}

// WithStore sets the run transcript store. When set, every completed run
// is persisted as a RunRecord.
func WithStore(s Store) Option {
	return func(c *agentConfig) { c.store = s }
}

// WithTools adds extra tools alongside the built-in browser and
// delegation tool sets.
func WithTools(tools ...Tool) Option {
	return func(c *agentConfig) { c.extraTools = append(c.extraTools, tools...) }
}

// WithCloneDepth sets the agent's depth in the clone tree. The root is
// depth 0; delegation sets depth parent+1 on each clone. Depths at or
// beyond the maximum cannot delegate further.
func WithCloneDepth(depth int) Option {
	return func(c *agentConfig) { c.cloneDepth = depth }
}

func buildAgentConfig(opts []Option) agentConfig {
	var c agentConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = nopLogger
	}
	if c.room == "" {
		c.room = chat.DefaultRoom
	}
	return c
}
