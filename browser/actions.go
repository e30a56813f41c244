package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Action outcomes are strings shown to the model, not errors: a failed
// click is something the agent should read about and react to, not a
// reason to abort the run.

const (
	settleDelay      = time.Second
	gotoSettleDelay  = 2 * time.Second
	scrollSettle     = 300 * time.Millisecond
	humanFlowTimeout = 30 * time.Second

	pageScrollAmount    = 500
	elementScrollAmount = 200

	// extract_page_content responses are cut at markdown block
	// boundaries under this budget.
	extractContentLimit = 80_000
)

// elementByID looks up an element from the last observation.
func (s *Session) elementByID(id int) (Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if s.lastObs != nil {
		n = len(s.lastObs.Elements)
	}
	if id < 0 || id >= n {
		return Element{}, fmt.Errorf("Invalid bbox_id: %d. Valid range: 0-%d", id, n-1)
	}
	return s.lastObs.Elements[id], nil
}

// resolveSelector maps an element id to a CSS selector. Elements flagged
// as CAPTCHAs are refused here, before any input is dispatched; the error
// text is surfaced verbatim to the model.
func (s *Session) resolveSelector(id int) (Element, string, error) {
	el, err := s.elementByID(id)
	if err != nil {
		return Element{}, "", err
	}
	if el.IsCaptcha {
		return Element{}, "", fmt.Errorf("Action failed: Element %d is identified as a CAPTCHA.", id)
	}
	if el.Selector != "" {
		return el, el.Selector, nil
	}
	return el, fmt.Sprintf(`[data-ai-label="%d"]`, id), nil
}

// targetPoint picks a human-plausible point inside the element. Elements
// without a usable box fall back to their reported center.
func targetPoint(el Element) (float64, float64) {
	r := el.BoundingBox
	if r.Width <= 0 || r.Height <= 0 {
		return el.X, el.Y
	}
	return randomPointIn(r)
}

// mousePosition reads the tracked pointer location from the page.
func mousePosition(ctx context.Context) (float64, float64, error) {
	var pos struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := chromedp.Evaluate("({x: window.mouseX || 0, y: window.mouseY || 0})", &pos).Do(ctx); err != nil {
		return 0, 0, err
	}
	return pos.X, pos.Y, nil
}

type lookupRect struct {
	Found bool  `json:"found"`
	Rect  *Rect `json:"rect"`
}

func rectExpr(sel string) string {
	q, _ := json.Marshal(sel)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return {found: false, rect: null};
	const r = el.getBoundingClientRect();
	return {found: true, rect: {left: r.left, top: r.top, width: r.width, height: r.height}};
})()`, q)
}

func elementRect(ctx context.Context, sel string) (Rect, error) {
	var lr lookupRect
	if err := chromedp.Evaluate(rectExpr(sel), &lr).Do(ctx); err != nil {
		return Rect{}, err
	}
	if !lr.Found || lr.Rect == nil {
		return Rect{}, fmt.Errorf("element not found for selector %s", sel)
	}
	return *lr.Rect, nil
}

// selectOptionsJS builds an expression that selects the wanted options by
// value, label, or text, fires input/change, and throws when nothing
// matched so the caller falls back.
func selectOptionsJS(sel string, values []string) string {
	q, _ := json.Marshal(sel)
	v, _ := json.Marshal(values)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) throw new Error("element not found");
	const wanted = new Set(%s);
	let matched = 0;
	for (const opt of el.options || []) {
		const hit = wanted.has(opt.value) || wanted.has(opt.label) || wanted.has(opt.textContent.trim());
		opt.selected = hit;
		if (hit) matched++;
	}
	if (matched === 0) throw new Error("no matching options");
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return matched;
})()`, q, v)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (s *Session) adoptAfterAction(ctx context.Context) {
	if err := s.adoptNewTabs(ctx); err != nil {
		s.logger.Warn("new tab check failed", "error", err)
	}
}

// Click clicks the element: a fast native attempt first, then a
// human-like fallback when the native path errored or left the page
// unchanged. Success is an observed page-state change, never the driver's
// word for it.
func (s *Session) Click(ctx context.Context, id int) string {
	el, sel, err := s.resolveSelector(id)
	if err != nil {
		return err.Error()
	}
	s.logger.Info("click", "bbox_id", id)
	before := s.capturePageState()

	if err := s.clickNative(sel); err != nil {
		s.logger.Warn("native click failed, falling back", "bbox_id", id, "error", err)
	} else {
		_ = sleepCtx(ctx, settleDelay)
		if s.capturePageState() != before {
			s.incrementActionCount()
			s.adoptAfterAction(ctx)
			return fmt.Sprintf("Successfully clicked element %d.", id)
		}
		s.logger.Warn("native click had no effect, falling back", "bbox_id", id)
	}

	if err := s.clickHuman(el); err != nil {
		s.logger.Error("fallback click failed", "bbox_id", id, "error", err)
		return fmt.Sprintf("Error: All click attempts failed for element %d. Last error: %v", id, err)
	}
	_ = sleepCtx(ctx, settleDelay)
	if s.capturePageState() != before {
		s.incrementActionCount()
		s.adoptAfterAction(ctx)
		return fmt.Sprintf("Successfully clicked element %d using fallback.", id)
	}
	return fmt.Sprintf("Error: Clicking element %d had no effect on the page.", id)
}

func (s *Session) clickNative(sel string) error {
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Click(sel, chromedp.ByQuery))
}

func (s *Session) clickHuman(el Element) error {
	tabCtx, err := s.activeTab()
	if err != nil {
		return err
	}
	hctx, cancel := context.WithTimeout(tabCtx, humanFlowTimeout)
	defer cancel()
	return chromedp.Run(hctx, chromedp.ActionFunc(func(c context.Context) error {
		sx, sy, err := mousePosition(c)
		if err != nil {
			return err
		}
		tx, ty := targetPoint(el)
		if err := smartDelay(c, "click"); err != nil {
			return err
		}
		if err := humanMouseMove(c, sx, sy, tx, ty); err != nil {
			return err
		}
		if err := humanDelay(c, 50, 200); err != nil {
			return err
		}
		return humanClickXY(c, tx, ty)
	}))
}

// TypeText fills the element and submits with Enter, falling back to
// click-select-all-retype with human pacing.
func (s *Session) TypeText(ctx context.Context, id int, text string) string {
	el, sel, err := s.resolveSelector(id)
	if err != nil {
		return err.Error()
	}
	s.logger.Info("type_text", "bbox_id", id)
	before := s.capturePageState()

	if err := s.typeNative(sel, text); err != nil {
		s.logger.Warn("native type failed, falling back", "bbox_id", id, "error", err)
	} else {
		_ = sleepCtx(ctx, settleDelay)
		if s.capturePageState() != before {
			s.incrementActionCount()
			s.adoptAfterAction(ctx)
			return fmt.Sprintf("Successfully typed '%s' into element %d.", text, id)
		}
		s.logger.Warn("native type had no effect, falling back", "bbox_id", id)
	}

	if err := s.typeHuman(el, text); err != nil {
		s.logger.Error("fallback type failed", "bbox_id", id, "error", err)
		return fmt.Sprintf("Error: All type attempts failed for element %d. Last error: %v", id, err)
	}
	_ = sleepCtx(ctx, settleDelay)
	if s.capturePageState() != before {
		s.incrementActionCount()
		s.adoptAfterAction(ctx)
		return fmt.Sprintf("Successfully typed '%s' into element %d using fallback.", text, id)
	}
	return fmt.Sprintf("Error: Typing into element %d had no effect on the page.", id)
}

func (s *Session) typeNative(sel, text string) error {
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	return chromedp.Run(tctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
}

func (s *Session) typeHuman(el Element, text string) error {
	tabCtx, err := s.activeTab()
	if err != nil {
		return err
	}
	budget := humanFlowTimeout + time.Duration(len(text))*500*time.Millisecond
	hctx, cancel := context.WithTimeout(tabCtx, budget)
	defer cancel()
	return chromedp.Run(hctx, chromedp.ActionFunc(func(c context.Context) error {
		tx, ty := targetPoint(el)
		if err := smartDelay(c, "type"); err != nil {
			return err
		}
		sx, sy, err := mousePosition(c)
		if err != nil {
			return err
		}
		if err := humanMouseMove(c, sx, sy, tx, ty); err != nil {
			return err
		}
		if err := humanClickXY(c, tx, ty); err != nil {
			return err
		}
		if err := humanDelay(c, 100, 300); err != nil {
			return err
		}
		if err := selectAllKeys(c); err != nil {
			return err
		}
		if err := humanDelay(c, 50, 150); err != nil {
			return err
		}
		if err := chromedp.KeyEvent(kb.Backspace).Do(c); err != nil {
			return err
		}
		if err := humanDelay(c, 100, 200); err != nil {
			return err
		}
		if err := humanTypeText(c, text); err != nil {
			return err
		}
		if err := humanDelay(c, 200, 600); err != nil {
			return err
		}
		return chromedp.KeyEvent(kb.Enter).Do(c)
	}))
}

func selectAllKeys(ctx context.Context) error {
	mod := input.ModifierCtrl
	if runtime.GOOS == "darwin" {
		mod = input.ModifierMeta
	}
	return chromedp.KeyEvent("a", chromedp.KeyModifiers(mod)).Do(ctx)
}

// SelectOption sets the chosen values on a select element.
func (s *Session) SelectOption(ctx context.Context, id int, values []string) string {
	el, sel, err := s.resolveSelector(id)
	if err != nil {
		return err.Error()
	}
	s.logger.Info("select_option", "bbox_id", id, "values", values)
	before := s.capturePageState()

	if err := s.selectNative(sel, values); err != nil {
		s.logger.Warn("native select failed, falling back", "bbox_id", id, "error", err)
	} else {
		_ = sleepCtx(ctx, settleDelay)
		if s.capturePageState() != before {
			s.incrementActionCount()
			s.adoptAfterAction(ctx)
			return fmt.Sprintf("Successfully selected %v in element %d.", values, id)
		}
		s.logger.Warn("native select had no effect, falling back", "bbox_id", id)
	}

	if err := s.selectHuman(el, sel, values); err != nil {
		s.logger.Error("fallback select failed", "bbox_id", id, "error", err)
		return fmt.Sprintf("Error: All select attempts failed for element %d. Last error: %v", id, err)
	}
	_ = sleepCtx(ctx, settleDelay)
	if s.capturePageState() != before {
		s.incrementActionCount()
		s.adoptAfterAction(ctx)
		return fmt.Sprintf("Successfully selected %v in element %d using fallback.", values, id)
	}
	return fmt.Sprintf("Error: Selecting in element %d had no effect on the page.", id)
}

func (s *Session) selectNative(sel string, values []string) error {
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	var matched int
	return chromedp.Run(tctx, chromedp.Evaluate(selectOptionsJS(sel, values), &matched))
}

func (s *Session) selectHuman(el Element, sel string, values []string) error {
	tabCtx, err := s.activeTab()
	if err != nil {
		return err
	}
	hctx, cancel := context.WithTimeout(tabCtx, humanFlowTimeout)
	defer cancel()
	return chromedp.Run(hctx, chromedp.ActionFunc(func(c context.Context) error {
		if err := smartDelay(c, "click"); err != nil {
			return err
		}
		tx, ty := targetPoint(el)
		sx, sy, err := mousePosition(c)
		if err != nil {
			return err
		}
		if err := humanMouseMove(c, sx, sy, tx, ty); err != nil {
			return err
		}
		if err := humanDelay(c, 100, 300); err != nil {
			return err
		}
		var matched int
		if err := chromedp.Evaluate(selectOptionsJS(sel, values), &matched).Do(c); err != nil {
			return err
		}
		return humanDelay(c, 200, 500)
	}))
}

// Scroll scrolls the whole page or a specific element. Target is "page"
// or an element id in string form.
func (s *Session) Scroll(ctx context.Context, target, direction string) string {
	direction = strings.ToLower(direction)
	if direction != "up" && direction != "down" {
		return "Error: Direction must be 'up' or 'down'"
	}
	if err := smartDelay(ctx, "scroll"); err != nil {
		return fmt.Sprintf("Error scrolling: %v", err)
	}

	tctx, cancel := s.opContext(humanFlowTimeout)
	defer cancel()

	if strings.EqualFold(target, "page") {
		err := chromedp.Run(tctx, chromedp.ActionFunc(func(c context.Context) error {
			return humanScroll(c, 0, 0, direction, pageScrollAmount)
		}))
		if err != nil {
			s.logger.Error("scroll failed", "error", err)
			return fmt.Sprintf("Error scrolling: %v", err)
		}
	} else {
		id, perr := strconv.Atoi(target)
		if perr != nil {
			return fmt.Sprintf("Error: Invalid target '%s'. Use 'page' or a bbox_id number", target)
		}
		if _, err := s.elementByID(id); err != nil {
			return fmt.Sprintf("Error: Invalid bbox_id %d", id)
		}
		_, sel, err := s.resolveSelector(id)
		if err != nil {
			return fmt.Sprintf("Error scrolling: %v", err)
		}
		var lr lookupRect
		if err := chromedp.Run(tctx, chromedp.Evaluate(rectExpr(sel), &lr)); err != nil {
			s.logger.Error("scroll failed", "bbox_id", id, "error", err)
			return fmt.Sprintf("Error scrolling: %v", err)
		}
		if !lr.Found {
			return fmt.Sprintf("Error: Element with bbox_id %d not found", id)
		}
		if lr.Rect == nil || (lr.Rect.Width == 0 && lr.Rect.Height == 0) {
			return fmt.Sprintf("Error: Could not get bounding box for element %d", id)
		}
		err = chromedp.Run(tctx, chromedp.ActionFunc(func(c context.Context) error {
			return humanScroll(c, lr.Rect.Left, lr.Rect.Top, direction, elementScrollAmount)
		}))
		if err != nil {
			s.logger.Error("scroll failed", "bbox_id", id, "error", err)
			return fmt.Sprintf("Error scrolling: %v", err)
		}
	}

	s.incrementActionCount()
	_ = sleepCtx(ctx, scrollSettle)
	return fmt.Sprintf("Successfully scrolled %s", direction)
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) string {
	tctx, cancel := s.opContext(navTimeout)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.Reload()); err != nil {
		s.logger.Error("refresh failed", "error", err)
		return fmt.Sprintf("Error refreshing page: %v", err)
	}
	s.incrementActionCount()
	_ = sleepCtx(ctx, settleDelay)
	return "Successfully refreshed the page."
}

// ExtractPageContent returns the page as cleaned markdown with its URL
// and title, for reading rather than interacting.
func (s *Session) ExtractPageContent(ctx context.Context) string {
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	var url, title, html string
	err := chromedp.Run(tctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate("document.documentElement.outerHTML", &html),
	)
	if err != nil {
		s.logger.Error("extract page content failed", "error", err)
		return fmt.Sprintf("Error extracting page content: %v", err)
	}
	md, err := HTMLToMarkdown(html, url)
	if err != nil {
		s.logger.Error("extract page content failed", "url", url, "error", err)
		return fmt.Sprintf("Error extracting page content: %v", err)
	}
	md = TruncateMarkdownBlocks(md, extractContentLimit)
	return fmt.Sprintf("URL: %s\nTitle: %s\n\n%s", url, title, md)
}

// GoBack navigates back in tab history.
func (s *Session) GoBack(ctx context.Context) string {
	if err := smartDelay(ctx, "navigate"); err != nil {
		return fmt.Sprintf("Error going back: %v", err)
	}
	tctx, cancel := s.opContext(navTimeout)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.NavigateBack()); err != nil {
		s.logger.Error("go back failed", "error", err)
		return fmt.Sprintf("Error going back: %v", err)
	}
	s.incrementActionCount()
	_ = sleepCtx(ctx, settleDelay)
	return "Successfully navigated back"
}

// GoForward navigates forward in tab history.
func (s *Session) GoForward(ctx context.Context) string {
	if err := smartDelay(ctx, "navigate"); err != nil {
		return fmt.Sprintf("Error going forward: %v", err)
	}
	tctx, cancel := s.opContext(navTimeout)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.NavigateForward()); err != nil {
		s.logger.Error("go forward failed", "error", err)
		return fmt.Sprintf("Error going forward: %v", err)
	}
	s.incrementActionCount()
	_ = sleepCtx(ctx, settleDelay)
	return "Successfully navigated forward"
}

// Goto navigates the active tab. A bare hostname gets an https scheme.
func (s *Session) Goto(ctx context.Context, url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	if err := smartDelay(ctx, "navigate"); err != nil {
		return fmt.Sprintf("Error navigating to %s: %v", url, err)
	}
	tctx, cancel := s.opContext(navTimeout)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.Navigate(url)); err != nil {
		s.logger.Error("navigation failed", "url", url, "error", err)
		return fmt.Sprintf("Error navigating to %s: %v", url, err)
	}
	s.incrementActionCount()
	_ = sleepCtx(ctx, gotoSettleDelay)
	return fmt.Sprintf("Successfully navigated to %s", url)
}

// Hover moves the pointer over the element.
func (s *Session) Hover(ctx context.Context, id int) string {
	_, sel, err := s.resolveSelector(id)
	if err != nil {
		return fmt.Sprintf("Error hovering over element %d: %v", id, err)
	}
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	err = chromedp.Run(tctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.ActionFunc(func(c context.Context) error {
			r, err := elementRect(c, sel)
			if err != nil {
				return err
			}
			return input.DispatchMouseEvent(input.MouseMoved, r.Left+r.Width/2, r.Top+r.Height/2).Do(c)
		}),
	)
	if err != nil {
		s.logger.Error("hover failed", "bbox_id", id, "error", err)
		return fmt.Sprintf("Error hovering over element %d: %v", id, err)
	}
	s.incrementActionCount()
	return fmt.Sprintf("Hovered over element %d.", id)
}

// PressKey dispatches a keyboard key, with optional modifiers joined by
// "+" (for example "Control+A").
func (s *Session) PressKey(ctx context.Context, key string) string {
	action, err := keyAction(key)
	if err != nil {
		return fmt.Sprintf("Error pressing key '%s': %v", key, err)
	}
	tctx, cancel := s.opContext(opTimeout)
	defer cancel()
	if err := chromedp.Run(tctx, action); err != nil {
		s.logger.Error("press key failed", "key", key, "error", err)
		return fmt.Sprintf("Error pressing key '%s': %v", key, err)
	}
	s.incrementActionCount()
	return fmt.Sprintf("Pressed key '%s'.", key)
}

var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Insert":     kb.Insert,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Space":      " ",
}

// keyAction translates a key name like "Enter", "ArrowDown", "a", or
// "Control+A" into a key dispatch.
func keyAction(name string) (chromedp.Action, error) {
	parts := strings.Split(name, "+")
	key := parts[len(parts)-1]
	var mods input.Modifier
	for _, m := range parts[:len(parts)-1] {
		switch strings.ToLower(m) {
		case "control", "ctrl":
			mods |= input.ModifierCtrl
		case "shift":
			mods |= input.ModifierShift
		case "alt":
			mods |= input.ModifierAlt
		case "meta", "cmd", "command":
			mods |= input.ModifierMeta
		default:
			return nil, fmt.Errorf("unknown modifier %q", m)
		}
	}
	if mapped, ok := namedKeys[key]; ok {
		key = mapped
	} else if len([]rune(key)) != 1 {
		return nil, fmt.Errorf("unknown key %q", key)
	}
	if mods != 0 {
		return chromedp.KeyEvent(strings.ToLower(key), chromedp.KeyModifiers(mods)), nil
	}
	return chromedp.KeyEvent(key), nil
}

// Drag presses on the start element, walks the pointer to the end
// element, and releases.
func (s *Session) Drag(ctx context.Context, startID, endID int) string {
	_, startSel, err := s.resolveSelector(startID)
	if err != nil {
		return fmt.Sprintf("Error dragging from %d to %d: %v", startID, endID, err)
	}
	_, endSel, err := s.resolveSelector(endID)
	if err != nil {
		return fmt.Sprintf("Error dragging from %d to %d: %v", startID, endID, err)
	}

	tctx, cancel := s.opContext(humanFlowTimeout)
	defer cancel()
	err = chromedp.Run(tctx,
		chromedp.ScrollIntoView(startSel, chromedp.ByQuery),
		chromedp.ActionFunc(func(c context.Context) error {
			sr, err := elementRect(c, startSel)
			if err != nil {
				return err
			}
			er, err := elementRect(c, endSel)
			if err != nil {
				return err
			}
			sx, sy := sr.Left+sr.Width/2, sr.Top+sr.Height/2
			ex, ey := er.Left+er.Width/2, er.Top+er.Height/2
			if err := input.DispatchMouseEvent(input.MouseMoved, sx, sy).Do(c); err != nil {
				return err
			}
			press := input.DispatchMouseEvent(input.MousePressed, sx, sy).
				WithButton(input.Left).
				WithClickCount(1)
			if err := press.Do(c); err != nil {
				return err
			}
			if err := humanMouseMove(c, sx, sy, ex, ey); err != nil {
				return err
			}
			release := input.DispatchMouseEvent(input.MouseReleased, ex, ey).
				WithButton(input.Left).
				WithClickCount(1)
			return release.Do(c)
		}),
	)
	if err != nil {
		s.logger.Error("drag failed", "start", startID, "end", endID, "error", err)
		return fmt.Sprintf("Error dragging from %d to %d: %v", startID, endID, err)
	}
	s.incrementActionCount()
	return fmt.Sprintf("Dragged element %d to element %d.", startID, endID)
}

// WaitFor waits for a fixed time or for an element to appear or
// disappear. It never counts as a page action.
func (s *Session) WaitFor(ctx context.Context, seconds *float64, id *int, state string) string {
	if seconds != nil {
		t := *seconds
		if t > 20 {
			return "Error: Time cannot be greater than 20 seconds"
		}
		if t < 0 {
			return "Error: Time cannot be negative"
		}
		if err := sleepCtx(ctx, time.Duration(t*float64(time.Second))); err != nil {
			return fmt.Sprintf("Error in wait_for: %v", err)
		}
		return fmt.Sprintf("Waited for %s seconds.", strconv.FormatFloat(t, 'g', -1, 64))
	}

	if id != nil {
		if state != "attached" && state != "detached" {
			return "Error: state must be 'attached' or 'detached'"
		}
		_, sel, err := s.resolveSelector(*id)
		if err != nil {
			return fmt.Sprintf("Error in wait_for: %v", err)
		}
		tctx, cancel := s.opContext(opTimeout)
		defer cancel()
		if state == "attached" {
			err = chromedp.Run(tctx, chromedp.WaitReady(sel, chromedp.ByQuery))
		} else {
			err = chromedp.Run(tctx, chromedp.WaitNotPresent(sel, chromedp.ByQuery))
		}
		if err != nil {
			s.logger.Error("wait_for failed", "bbox_id", *id, "state", state, "error", err)
			return fmt.Sprintf("Error in wait_for: %v", err)
		}
		verb := "appear"
		if state == "detached" {
			verb = "disappear"
		}
		return fmt.Sprintf("Waited for element %d to %s.", *id, verb)
	}

	return "No wait condition provided."
}

// ListTabs renders the open tabs with truncated titles and URLs.
func (s *Session) ListTabs(ctx context.Context) string {
	tabs, err := s.Tabs(ctx)
	if err != nil {
		return fmt.Sprintf("Error listing tabs: %v", err)
	}
	if len(tabs) == 0 {
		return "No tabs found."
	}
	lines := []string{"Available tabs:"}
	for _, t := range tabs {
		status := ""
		if t.Active {
			status = " (ACTIVE)"
		}
		lines = append(lines, fmt.Sprintf("  %d: %s - %s%s", t.Index, truncateRunes(t.Title, 50), truncateRunes(t.URL, 60), status))
	}
	return strings.Join(lines, "\n")
}

// SwitchTab activates the tab at the given index. Element ids from the
// previous tab stop being valid.
func (s *Session) SwitchTab(ctx context.Context, index int) string {
	s.mu.Lock()
	n := len(s.order)
	s.mu.Unlock()
	if index < 0 || index >= n {
		return fmt.Sprintf("Error: Invalid tab index %d. Available tabs: 0-%d", index, n-1)
	}
	if err := s.switchToIndex(ctx, index); err != nil {
		s.logger.Error("switch tab failed", "index", index, "error", err)
		return fmt.Sprintf("Error switching to tab %d: %v", index, err)
	}
	title := s.CurrentTitle(ctx)
	s.incrementActionCount()
	s.setLastObservation(nil)
	return fmt.Sprintf("Successfully switched to tab %d: %s", index, title)
}

// OpenNewTab opens a tab, optionally navigating it, and makes it active.
func (s *Session) OpenNewTab(ctx context.Context, url string) string {
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	index, err := s.openTab(ctx, url)
	if err != nil {
		s.logger.Error("open new tab failed", "url", url, "error", err)
		return fmt.Sprintf("Error opening new tab: %v", err)
	}
	s.incrementActionCount()
	s.setLastObservation(nil)
	info := fmt.Sprintf("new tab (index %d)", index)
	if url != "" {
		info += fmt.Sprintf(" and navigated to %s", url)
	}
	return fmt.Sprintf("Successfully opened %s", info)
}

// CloseTab closes the tab at index, or the active tab when index is nil.
// The last tab cannot be closed.
func (s *Session) CloseTab(ctx context.Context, index *int) string {
	s.mu.Lock()
	n := len(s.order)
	s.mu.Unlock()
	if n <= 1 {
		return "Error: Cannot close the last remaining tab."
	}
	i := s.ActiveTabIndex()
	if index != nil {
		i = *index
		if i < 0 || i >= n {
			return fmt.Sprintf("Error: Invalid tab index %d. Available tabs: 0-%d", i, n-1)
		}
	}

	var title string
	if tabs, err := s.Tabs(ctx); err == nil && i < len(tabs) {
		title = tabs[i].Title
	}
	if err := s.closeTabAt(ctx, i); err != nil {
		s.logger.Error("close tab failed", "index", i, "error", err)
		return fmt.Sprintf("Error closing tab: %v", err)
	}
	s.incrementActionCount()
	s.setLastObservation(nil)
	return fmt.Sprintf("Successfully closed tab %d: %s", i, title)
}

// TakeNote records a note in the session scratchpad, readable via Notes.
// It never touches the page.
func (s *Session) TakeNote(note string) string {
	s.addNote(note)
	s.logger.Info("agent note", "note", note)
	return fmt.Sprintf("Note recorded: %s", note)
}
