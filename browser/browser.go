// Package browser drives a stealth-configured Chrome over the DevTools
// protocol. A Browser owns the process; each Session lives in its own
// browser context with separate cookies and storage, so parallel agents
// never share page state. Input goes through human-paced mouse and
// keyboard dispatch, and every observation labels the interactive
// elements an LLM can act on.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const (
	// DefaultViewportWidth and DefaultViewportHeight size every tab
	// unless the config overrides them.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800

	launchTimeout = 30 * time.Second

	// opTimeout bounds single DevTools operations; navTimeout bounds
	// full page navigations.
	opTimeout  = 5 * time.Second
	navTimeout = 30 * time.Second
)

// Config controls the Chrome process.
type Config struct {
	// Headless runs Chrome without a window.
	Headless bool
	// ExecPath points at a specific Chrome binary; empty uses the
	// system default.
	ExecPath string
	// ProfileDir is a persistent user-data directory. Empty launches
	// with a throwaway profile.
	ProfileDir string
	// ViewportWidth and ViewportHeight size each session's tabs.
	ViewportWidth  int
	ViewportHeight int
	// Logger receives browser lifecycle and action logs.
	Logger *slog.Logger
}

// Browser is a running Chrome process shared by all sessions.
type Browser struct {
	cfg    Config
	logger *slog.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	// browserCtx is the first tab; it carries the browser-level
	// websocket and must stay alive as long as the process does.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Launch starts Chrome with the stealth flag set and waits for it to be
// ready.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = DefaultViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = DefaultViewportHeight
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], stealthOptions()...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}

	// The allocator hangs off context.Background so the process outlives
	// the launch call's context.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	startCtx, cancel := context.WithTimeout(browserCtx, launchTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		b.allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	logger.Info("browser launched", "headless", cfg.Headless,
		"viewport", fmt.Sprintf("%dx%d", cfg.ViewportWidth, cfg.ViewportHeight))
	return b, nil
}

// Close shuts the browser down and releases the process.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := chromedp.Cancel(b.browserCtx)
	b.browserCancel()
	b.allocCancel()
	b.logger.Info("browser closed")
	return err
}

// executor rebinds ctx to the browser-level CDP transport. Target and
// browser domain commands (creating contexts and targets, granting
// permissions) must run there, not on a tab session.
func (b *Browser) executor(ctx context.Context) context.Context {
	c := chromedp.FromContext(b.browserCtx)
	return cdp.WithExecutor(ctx, c.Browser)
}

// nopLogger stands in when Config.Logger is not set.
var nopLogger = slog.New(slog.DiscardHandler)
