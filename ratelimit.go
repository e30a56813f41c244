package kage

import (
	"context"
	"sync"
	"time"
)

// budgetWindow is the span over which RPM and TPM budgets are measured.
const budgetWindow = time.Minute

// limiter spaces provider calls to stay under per-minute budgets. One
// instance is shared by the root agent and every clone, so the budgets
// hold process-wide no matter how wide the swarm fans out.
type limiter struct {
	next Provider

	mu       sync.Mutex
	maxCalls int    // admitted requests per window; 0 = unlimited
	maxTok   int    // tokens per window; 0 = unlimited
	calls    window // one entry of weight 1 per admitted request
	tokens   window // usage charged after each response
}

// window sums weighted events over the trailing budgetWindow.
type window struct {
	events []windowEvent
	sum    int
}

type windowEvent struct {
	at time.Time
	n  int
}

func (w *window) add(at time.Time, n int) {
	w.events = append(w.events, windowEvent{at: at, n: n})
	w.sum += n
}

// drop expires events older than cutoff. Events are appended in time
// order, so expired ones sit at the front.
func (w *window) drop(cutoff time.Time) {
	i := 0
	for i < len(w.events) && w.events[i].at.Before(cutoff) {
		w.sum -= w.events[i].n
		i++
	}
	w.events = w.events[i:]
}

func (w *window) oldest() (time.Time, bool) {
	if len(w.events) == 0 {
		return time.Time{}, false
	}
	return w.events[0].at, true
}

// RateLimitOption adjusts the behavior of WithRateLimit.
type RateLimitOption func(*limiter)

// RPM caps admitted requests per minute.
func RPM(n int) RateLimitOption {
	return func(l *limiter) { l.maxCalls = n }
}

// TPM caps tokens per minute, input and output combined. Usage is only
// known once a response arrives, so the cap is soft: the call that
// crosses it completes, and later calls wait for the window to drain.
func TPM(n int) RateLimitOption {
	return func(l *limiter) { l.maxTok = n }
}

// WithRateLimit wraps p so calls queue instead of exceeding the given
// budgets. Place it inside WithRetry when composing, so every retry
// attempt also queues:
//
//	provider = kage.WithRetry(kage.WithRateLimit(provider, kage.RPM(60)))
//	provider = kage.WithRateLimit(provider, kage.RPM(60), kage.TPM(100000))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	l := &limiter{next: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *limiter) Name() string { return l.next.Name() }

// Chat implements Provider.
func (l *limiter) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := l.acquire(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := l.next.Chat(ctx, req)
	if err == nil {
		l.spend(resp.Usage)
	}
	return resp, err
}

// ChatStream implements Provider. Budget is acquired before the stream
// opens. ch is never closed here; the caller owns its lifecycle.
func (l *limiter) ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	if err := l.acquire(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := l.next.ChatStream(ctx, req, ch)
	if err == nil {
		l.spend(resp.Usage)
	}
	return resp, err
}

// acquire blocks until both budgets admit one more request, then records
// the admission. Cancelling ctx aborts the wait.
func (l *limiter) acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-budgetWindow)
		l.calls.drop(cutoff)
		l.tokens.drop(cutoff)

		callsOK := l.maxCalls <= 0 || l.calls.sum < l.maxCalls
		tokensOK := l.maxTok <= 0 || l.tokens.sum < l.maxTok
		if callsOK && tokensOK {
			if l.maxCalls > 0 {
				l.calls.add(now, 1)
			}
			l.mu.Unlock()
			return nil
		}
		wait := l.nextSlot(now, callsOK, tokensOK)
		l.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// nextSlot reports how long until the oldest entry of a saturated window
// ages out. Caller holds l.mu.
func (l *limiter) nextSlot(now time.Time, callsOK, tokensOK bool) time.Duration {
	var wait time.Duration
	if !callsOK {
		if at, ok := l.calls.oldest(); ok {
			wait = at.Add(budgetWindow).Sub(now)
		}
	}
	if !tokensOK {
		if at, ok := l.tokens.oldest(); ok {
			d := at.Add(budgetWindow).Sub(now)
			if wait == 0 || d < wait {
				wait = d
			}
		}
	}
	if wait <= 0 {
		wait = 10 * time.Millisecond
	}
	return wait
}

// spend charges a completed call's tokens against the budget. The charge
// lands after the fact, which is what makes the TPM cap soft.
func (l *limiter) spend(u Usage) {
	if l.maxTok <= 0 {
		return
	}
	n := u.InputTokens + u.OutputTokens
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.tokens.add(time.Now(), n)
	l.mu.Unlock()
}

var _ Provider = (*limiter)(nil)
