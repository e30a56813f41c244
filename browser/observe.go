package browser

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

//go:embed markpage.js
var markPageJS string

const (
	// Page-settle budget: quick quiescence first, then a slower check
	// that the document at least finished loading.
	quiesceIdleTimeout = 3 * time.Second
	quiesceLoadTimeout = 5 * time.Second

	markRetries    = 10
	markRetryDelay = 500 * time.Millisecond
)

// Observe takes a fresh snapshot of the active tab: screenshot, labeled
// interactive elements, tab list, and for PDFs the extracted text. Element
// ids handed to actions refer to this snapshot until the next Observe.
func (s *Session) Observe(ctx context.Context) (*Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, err := s.activeTab()
	if err != nil {
		return nil, err
	}

	obs := s.annotate(ctx, tabCtx)

	if tabs, err := s.Tabs(ctx); err == nil {
		obs.Tabs = tabs
	}
	obs.URL = s.CurrentURL(ctx)
	obs.Title = s.CurrentTitle(ctx)

	s.setLastObservation(obs)
	return obs, nil
}

func (s *Session) annotate(ctx context.Context, tabCtx context.Context) *Observation {
	var html string
	cctx, cancel := context.WithTimeout(tabCtx, opTimeout)
	err := chromedp.Run(cctx, chromedp.Evaluate("document.documentElement.outerHTML", &html))
	cancel()
	if err != nil {
		s.logger.Warn("could not read page content for pdf check", "error", err)
	} else if isPDFContent(html) {
		return s.annotatePDF(ctx, tabCtx)
	}
	return s.annotateHTML(tabCtx)
}

func (s *Session) annotatePDF(ctx context.Context, tabCtx context.Context) *Observation {
	s.logger.Info("pdf page detected, extracting text")

	var url string
	uctx, cancel := context.WithTimeout(tabCtx, opTimeout)
	if err := chromedp.Run(uctx, chromedp.Location(&url)); err != nil {
		s.logger.Warn("read pdf url failed", "error", err)
	}
	cancel()

	obs, err := s.extractPDF(ctx, tabCtx, url)
	if err != nil {
		s.logger.Error("pdf extraction failed", "url", url, "error", err)
		return &Observation{
			Markdown:           fmt.Sprintf("Failed to extract text from PDF at %s. Error: %v", url, err),
			ViewportCategories: map[string]int{},
		}
	}
	return obs
}

func (s *Session) extractPDF(ctx context.Context, tabCtx context.Context, url string) (*Observation, error) {
	// The PDF is refetched over HTTP with the tab's cookies so protected
	// documents resolve the same way the browser saw them.
	var cookieHeader string
	cctx, cancel := context.WithTimeout(tabCtx, opTimeout)
	err := chromedp.Run(cctx, chromedp.ActionFunc(func(actx context.Context) error {
		cookies, err := network.GetCookies().WithURLs([]string{url}).Do(actx)
		if err != nil {
			return err
		}
		pairs := make([]string, 0, len(cookies))
		for _, c := range cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		cookieHeader = strings.Join(pairs, "; ")
		return nil
	}))
	cancel()
	if err != nil {
		return nil, err
	}

	data, err := fetchPDF(ctx, url, cookieHeader, s.fp.UserAgent)
	if err != nil {
		return nil, err
	}
	text, err := extractPDFText(data)
	if err != nil {
		return nil, err
	}
	markdown := truncateWords(text, maxPDFWords)

	var shot []byte
	sctx, cancel := context.WithTimeout(tabCtx, opTimeout)
	defer cancel()
	err = chromedp.Run(sctx,
		chromedp.CaptureScreenshot(&shot),
		chromedp.Evaluate("unmarkPage()", nil),
	)
	if err != nil {
		return nil, err
	}

	return &Observation{
		Screenshot:         base64.StdEncoding.EncodeToString(shot),
		Markdown:           markdown,
		ViewportCategories: map[string]int{},
	}, nil
}

func (s *Session) annotateHTML(tabCtx context.Context) *Observation {
	if err := s.stabilize(tabCtx); err != nil {
		s.logger.Warn("page never stabilized", "error", err)
		return &Observation{
			Markdown:           fmt.Sprintf("Failed to stabilize page load. Error: %v", err),
			ViewportCategories: map[string]int{},
		}
	}

	obs, err := s.captureMarked(tabCtx)
	if err != nil {
		s.logger.Error("annotating page failed", "error", err)
		return &Observation{
			Markdown:           fmt.Sprintf("Failed to annotate page. Error: %v", err),
			ViewportCategories: map[string]int{},
		}
	}
	return obs
}

func (s *Session) captureMarked(tabCtx context.Context) (*Observation, error) {
	res, err := s.markPage(tabCtx)
	if err != nil {
		return nil, err
	}

	var shot []byte
	sctx, cancel := context.WithTimeout(tabCtx, opTimeout)
	defer cancel()
	if err := chromedp.Run(sctx, chromedp.CaptureScreenshot(&shot)); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(res.ViewportCategories))
	for position, elements := range res.ViewportCategories {
		counts[position] = len(elements)
	}
	return &Observation{
		Screenshot:         base64.StdEncoding.EncodeToString(shot),
		Elements:           res.Coordinates,
		ViewportCategories: counts,
		FrameStats:         res.FrameStats,
		TotalElements:      len(res.Coordinates),
	}, nil
}

// stabilize waits for the page to settle: full quiescence inside a short
// window, falling back to plain document readiness.
func (s *Session) stabilize(tabCtx context.Context) error {
	ictx, cancel := context.WithTimeout(tabCtx, quiesceIdleTimeout)
	err := waitDocumentComplete(ictx)
	cancel()
	if err == nil {
		return nil
	}
	s.logger.Warn("page quiescence timed out, waiting for load instead", "error", err)

	lctx, cancel := context.WithTimeout(tabCtx, quiesceLoadTimeout)
	defer cancel()
	return chromedp.Run(lctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// waitDocumentComplete polls document.readyState until it reports
// "complete" or the context expires.
func waitDocumentComplete(ctx context.Context) error {
	for {
		var state string
		if err := chromedp.Run(ctx, chromedp.Evaluate("document.readyState", &state)); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// markPage injects the annotation script and runs it, retrying while the
// page is still mutating underneath it. Exhausted retries yield an empty
// result rather than an error, matching a page with nothing interactive.
func (s *Session) markPage(tabCtx context.Context) (markResult, error) {
	ictx, cancel := context.WithTimeout(tabCtx, opTimeout)
	err := chromedp.Run(ictx, chromedp.Evaluate(markPageJS, nil))
	cancel()
	if err != nil {
		return markResult{}, err
	}

	var res markResult
	for i := 0; i < markRetries; i++ {
		ectx, cancel := context.WithTimeout(tabCtx, opTimeout)
		err = chromedp.Run(ectx, chromedp.Evaluate("markPage()", &res))
		cancel()
		if err == nil {
			return res, nil
		}
		s.logger.Warn("marking page failed, retrying", "attempt", i+1, "error", err)
		if serr := sleepCtx(tabCtx, markRetryDelay); serr != nil {
			return markResult{}, serr
		}
	}
	return markResult{ViewportCategories: map[string][]Element{}}, nil
}
