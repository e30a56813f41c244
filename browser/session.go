package browser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// SessionConfig controls one agent's browsing context.
type SessionConfig struct {
	// InitialURL is loaded into the first tab. Empty leaves the tab on
	// about:blank, which is what clones start from.
	InitialURL string
	// Fingerprint overrides the identity profile. Nil picks a random
	// built-in one.
	Fingerprint *Fingerprint
	// Permissions overrides the CDP permissions granted to the context.
	// Empty grants the defaults (clipboard, notifications).
	Permissions []string
}

// Session is one agent's isolated browsing context: its own cookies and
// storage, its own tabs, its own fingerprint. All methods are serialized
// by the owning agent; the internal lock only guards the tab registry.
type Session struct {
	browser   *Browser
	logger    *slog.Logger
	fp        Fingerprint
	contextID cdp.BrowserContextID

	mu          sync.Mutex
	tabs        map[target.ID]*tabHandle
	order       []target.ID
	active      target.ID
	actionCount int
	notes       []string
	lastObs     *Observation
	closed      bool
}

type tabHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates an isolated browser context with one tab in it.
func (b *Browser) NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser is closed")
	}
	b.mu.Unlock()

	fp := RandomFingerprint()
	if cfg.Fingerprint != nil {
		fp = *cfg.Fingerprint
	}

	ectx := b.executor(ctx)
	contextID, err := target.CreateBrowserContext().
		WithDisposeOnDetach(true).
		Do(ectx)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	perms := defaultPermissions
	if len(cfg.Permissions) > 0 {
		perms = make([]cdpbrowser.PermissionType, len(cfg.Permissions))
		for i, p := range cfg.Permissions {
			perms[i] = cdpbrowser.PermissionType(p)
		}
	}
	if err := cdpbrowser.GrantPermissions(perms).
		WithBrowserContextID(contextID).
		Do(ectx); err != nil {
		b.logger.Warn("grant permissions failed", "error", err)
	}

	s := &Session{
		browser:   b,
		logger:    b.logger.With("fingerprint", fp.Name),
		fp:        fp,
		contextID: contextID,
		tabs:      make(map[target.ID]*tabHandle),
	}

	tid, err := target.CreateTarget("about:blank").
		WithBrowserContextID(contextID).
		Do(ectx)
	if err != nil {
		s.disposeContext()
		return nil, fmt.Errorf("create tab: %w", err)
	}
	if _, err := s.attachTab(ctx, tid); err != nil {
		s.disposeContext()
		return nil, err
	}

	if cfg.InitialURL != "" {
		tctx, cancel := s.opContext(navTimeout)
		err := chromedp.Run(tctx, chromedp.Navigate(cfg.InitialURL))
		cancel()
		if err != nil {
			s.logger.Warn("initial navigation failed", "url", cfg.InitialURL, "error", err)
		}
	}

	s.logger.Info("session started", "initial_url", cfg.InitialURL)
	return s, nil
}

// attachTab connects to a target, applies the fingerprint and viewport,
// registers it, and makes it active.
func (s *Session) attachTab(ctx context.Context, tid target.ID) (*tabHandle, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browser.browserCtx, chromedp.WithTargetID(tid))

	setupCtx, cancel := context.WithTimeout(tabCtx, opTimeout)
	defer cancel()
	err := chromedp.Run(setupCtx,
		chromedp.ActionFunc(func(cctx context.Context) error {
			ua := emulation.SetUserAgentOverride(s.fp.UserAgent).
				WithPlatform(s.fp.Hardware.Platform)
			if s.fp.AcceptLanguage != "" {
				ua = ua.WithAcceptLanguage(s.fp.AcceptLanguage)
			}
			if err := ua.Do(cctx); err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionScript(s.fp)).Do(cctx); err != nil {
				return err
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(markPageJS).Do(cctx)
			return err
		}),
		chromedp.EmulateViewport(int64(s.browser.cfg.ViewportWidth), int64(s.browser.cfg.ViewportHeight)),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("attach tab: %w", err)
	}

	h := &tabHandle{ctx: tabCtx, cancel: tabCancel}
	s.mu.Lock()
	s.tabs[tid] = h
	s.order = append(s.order, tid)
	s.active = tid
	s.mu.Unlock()
	return h, nil
}

// activeTab returns the active tab's chromedp context.
func (s *Session) activeTab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	h, ok := s.tabs[s.active]
	if !ok {
		return nil, fmt.Errorf("no active tab")
	}
	return h.ctx, nil
}

// opContext wraps the active tab context with a per-operation timeout.
// When no tab is available it returns an already-canceled context so the
// caller's chromedp.Run fails instead of hanging.
func (s *Session) opContext(d time.Duration) (context.Context, context.CancelFunc) {
	tabCtx, err := s.activeTab()
	if err != nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx, func() {}
	}
	return context.WithTimeout(tabCtx, d)
}

// contextTargets lists the page targets living in this session's browser
// context, in creation order as reported by the browser.
func (s *Session) contextTargets() ([]*target.Info, error) {
	infos, err := chromedp.Targets(s.browser.browserCtx)
	if err != nil {
		return nil, err
	}
	var out []*target.Info
	for _, info := range infos {
		if info.Type == "page" && info.BrowserContextID == s.contextID {
			out = append(out, info)
		}
	}
	return out, nil
}

// adoptNewTabs attaches any page targets that appeared in this context but
// are not yet registered (e.g. a click opened a tab). The newest adopted
// tab becomes active, mirroring a user being switched to a popup.
func (s *Session) adoptNewTabs(ctx context.Context) error {
	infos, err := s.contextTargets()
	if err != nil {
		return err
	}
	s.mu.Lock()
	var unknown []target.ID
	for _, info := range infos {
		if _, ok := s.tabs[info.TargetID]; !ok {
			unknown = append(unknown, info.TargetID)
		}
	}
	s.mu.Unlock()

	for _, tid := range unknown {
		if _, err := s.attachTab(ctx, tid); err != nil {
			s.logger.Warn("adopt tab failed", "target", tid, "error", err)
			continue
		}
		if err := target.ActivateTarget(tid).Do(s.browser.executor(ctx)); err != nil {
			s.logger.Warn("activate adopted tab failed", "target", tid, "error", err)
		}
		s.logger.Info("detected a new tab, switched to it", "target", tid)
	}
	return nil
}

// tabCount reports the live page count in this context. Used for
// page-state comparison, so unadopted popups count too.
func (s *Session) tabCount() int {
	infos, err := s.contextTargets()
	if err != nil {
		s.mu.Lock()
		n := len(s.order)
		s.mu.Unlock()
		return n
	}
	return len(infos)
}

// pageState is a snapshot used to detect whether an action did anything.
type pageState struct {
	url     string
	domHash string
	tabs    int
}

// capturePageState hashes the current URL, DOM, and tab count. When the
// DOM cannot be read the hash falls back to the clock so the comparison
// still registers a change.
func (s *Session) capturePageState() pageState {
	st := pageState{tabs: s.tabCount()}

	tctx, cancel := s.opContext(opTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(tctx,
		chromedp.Location(&st.url),
		chromedp.Evaluate("document.documentElement.outerHTML", &html),
	)
	if err != nil {
		sum := sha256.Sum256([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
		st.domHash = hex.EncodeToString(sum[:])
		return st
	}
	sum := sha256.Sum256([]byte(html))
	st.domHash = hex.EncodeToString(sum[:])
	return st
}

// Tabs lists the session's registered tabs in order.
func (s *Session) Tabs(ctx context.Context) ([]Tab, error) {
	s.mu.Lock()
	order := make([]target.ID, len(s.order))
	copy(order, s.order)
	active := s.active
	handles := make(map[target.ID]*tabHandle, len(s.tabs))
	for id, h := range s.tabs {
		handles[id] = h
	}
	s.mu.Unlock()

	tabs := make([]Tab, 0, len(order))
	for i, tid := range order {
		h := handles[tid]
		if h == nil {
			continue
		}
		var title, url string
		tctx, cancel := context.WithTimeout(h.ctx, opTimeout)
		err := chromedp.Run(tctx, chromedp.Title(&title), chromedp.Location(&url))
		cancel()
		if err != nil {
			s.logger.Warn("read tab info failed", "target", tid, "error", err)
		}
		tabs = append(tabs, Tab{
			Index:  i,
			Title:  title,
			URL:    url,
			Active: tid == active,
		})
	}
	return tabs, nil
}

// ActiveTabIndex returns the position of the active tab.
func (s *Session) ActiveTabIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tid := range s.order {
		if tid == s.active {
			return i
		}
	}
	return 0
}

// switchToIndex activates the tab at the given registry position.
func (s *Session) switchToIndex(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.order) {
		n := len(s.order)
		s.mu.Unlock()
		return fmt.Errorf("invalid tab index %d, have %d tabs", index, n)
	}
	tid := s.order[index]
	s.mu.Unlock()

	if err := target.ActivateTarget(tid).Do(s.browser.executor(ctx)); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = tid
	s.mu.Unlock()
	return nil
}

// closeTabAt closes the tab at the registry position and activates the
// first remaining tab when the active one went away.
func (s *Session) closeTabAt(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.order) {
		n := len(s.order)
		s.mu.Unlock()
		return fmt.Errorf("invalid tab index %d, have %d tabs", index, n)
	}
	tid := s.order[index]
	h := s.tabs[tid]
	wasActive := tid == s.active
	s.mu.Unlock()

	if err := chromedp.Cancel(h.ctx); err != nil {
		// The websocket side may already be gone; close the target
		// directly as a fallback.
		if cerr := target.CloseTarget(tid).Do(s.browser.executor(ctx)); cerr != nil {
			return cerr
		}
	}

	s.mu.Lock()
	delete(s.tabs, tid)
	s.order = removeTargetID(s.order, tid)
	var next target.ID
	if wasActive && len(s.order) > 0 {
		next = s.order[0]
		s.active = next
	}
	s.mu.Unlock()

	if next != "" {
		if err := target.ActivateTarget(next).Do(s.browser.executor(ctx)); err != nil {
			s.logger.Warn("activate tab after close failed", "error", err)
		}
	}
	return nil
}

// openTab creates a new tab in this session's context and activates it.
// Returns the new tab's registry index.
func (s *Session) openTab(ctx context.Context, url string) (int, error) {
	create := target.CreateTarget("about:blank").WithBrowserContextID(s.contextID)
	tid, err := create.Do(s.browser.executor(ctx))
	if err != nil {
		return 0, fmt.Errorf("create tab: %w", err)
	}
	h, err := s.attachTab(ctx, tid)
	if err != nil {
		return 0, err
	}
	if url != "" {
		tctx, cancel := context.WithTimeout(h.ctx, navTimeout)
		err = chromedp.Run(tctx, chromedp.Navigate(url))
		cancel()
		if err != nil {
			return 0, fmt.Errorf("navigate new tab: %w", err)
		}
	}
	if err := target.ActivateTarget(tid).Do(s.browser.executor(ctx)); err != nil {
		s.logger.Warn("activate new tab failed", "error", err)
	}
	s.mu.Lock()
	index := len(s.order) - 1
	s.mu.Unlock()
	return index, nil
}

// CurrentURL returns the active tab's location, or "" when unavailable.
func (s *Session) CurrentURL(ctx context.Context) string {
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	var url string
	if err := chromedp.Run(tctx, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

// CurrentTitle returns the active tab's title, or "" when unavailable.
func (s *Session) CurrentTitle(ctx context.Context) string {
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	var title string
	if err := chromedp.Run(tctx, chromedp.Title(&title)); err != nil {
		return ""
	}
	return title
}

// ActionCount reports how many page-mutating actions have run.
func (s *Session) ActionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionCount
}

func (s *Session) incrementActionCount() {
	s.mu.Lock()
	s.actionCount++
	s.mu.Unlock()
}

// Notes returns everything recorded with take_note, oldest first.
func (s *Session) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *Session) addNote(note string) {
	s.mu.Lock()
	s.notes = append(s.notes, note)
	s.mu.Unlock()
}

// LastObservation returns the most recent annotation, which element ids
// refer to until the next Observe call.
func (s *Session) LastObservation() *Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastObs
}

func (s *Session) setLastObservation(obs *Observation) {
	s.mu.Lock()
	s.lastObs = obs
	s.mu.Unlock()
}

// Fingerprint returns the identity profile this session presents.
func (s *Session) Fingerprint() Fingerprint {
	return s.fp
}

// Browser returns the browser this session lives in, so callers can open
// sibling sessions (each clone gets its own isolated context).
func (s *Session) Browser() *Browser {
	return s.browser
}

// Close tears down every tab and disposes the browser context.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := make([]*tabHandle, 0, len(s.tabs))
	for _, h := range s.tabs {
		handles = append(handles, h)
	}
	s.tabs = map[target.ID]*tabHandle{}
	s.order = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	s.disposeContext()
	s.logger.Info("session closed")
	return nil
}

func (s *Session) disposeContext() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(s.contextID).Do(s.browser.executor(ctx)); err != nil {
		s.logger.Warn("dispose browser context failed", "error", err)
	}
}

func removeTargetID(ids []target.ID, id target.ID) []target.ID {
	out := make([]target.ID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
