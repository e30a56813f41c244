package kage

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// retrier reissues provider calls that fail with a transient HTTP status.
// It implements Provider so it composes with any other wrapper.
type retrier struct {
	next     Provider
	attempts int
	base     time.Duration
	budget   time.Duration // wall-clock cap across all attempts; 0 = none
	log      *slog.Logger
}

// RetryOption adjusts the behavior of WithRetry.
type RetryOption func(*retrier)

// RetryMaxAttempts caps how many times a call is issued, first try
// included. The default is 3.
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retrier) { r.attempts = n }
}

// RetryBaseDelay sets the wait before the first retry; each later wait
// doubles it. The default is one second.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retrier) { r.base = d }
}

// RetryTimeout bounds the whole call, waits between attempts included.
// Zero, the default, means no bound.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retrier) { r.budget = d }
}

// RetryLogger directs retry warnings and the final give-up error to l.
// Without it the wrapper is silent.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retrier) { r.log = l }
}

// WithRetry wraps p so calls that fail with HTTP 429 or 503 are reissued
// with exponential backoff and jitter. A Retry-After duration carried by
// the error puts a floor under the computed wait. Streams retry only
// while nothing has reached the caller yet; once output flowed, the
// error passes through rather than risking repeated text.
//
//	provider = kage.WithRetry(openaicompat.NewProvider(apiKey, model, baseURL))
//	provider = kage.WithRetry(provider, kage.RetryMaxAttempts(5))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retrier{next: p, attempts: 3, base: time.Second, log: nopLogger}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = nopLogger
	}
	return r
}

func (r *retrier) Name() string { return r.next.Name() }

// Chat implements Provider.
func (r *retrier) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, cancel := r.deadline(ctx)
	defer cancel()

	var resp ChatResponse
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, err = r.next.Chat(ctx, req)
		if err == nil || !retryable(err) {
			return resp, err
		}
		if attempt == r.attempts {
			break
		}
		r.warn(attempt, err)
		if werr := r.backoff(ctx, attempt, err); werr != nil {
			return ChatResponse{}, werr
		}
	}
	r.giveUp(err)
	return ChatResponse{}, err
}

// ChatStream implements Provider. ch is never closed here; the caller
// owns its lifecycle.
func (r *retrier) ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	ctx, cancel := r.deadline(ctx)
	defer cancel()

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, sent, streamErr := r.relay(ctx, req, ch)
		// A stream that already produced output cannot be reissued
		// without duplicating what the caller saw.
		if streamErr == nil || !retryable(streamErr) || sent {
			return resp, streamErr
		}
		err = streamErr
		if attempt == r.attempts {
			break
		}
		r.warn(attempt, err)
		if werr := r.backoff(ctx, attempt, err); werr != nil {
			return ChatResponse{}, werr
		}
	}
	r.giveUp(err)
	return ChatResponse{}, err
}

// relay runs one streaming attempt, forwarding events to ch as they
// arrive and reporting whether anything was forwarded.
func (r *retrier) relay(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, bool, error) {
	inner := make(chan StreamEvent, 64)
	var resp ChatResponse
	var err error
	done := make(chan struct{})
	go func() {
		resp, err = r.next.ChatStream(ctx, req, inner)
		// The wrapped provider leaves inner open; close it here so the
		// drain loop below can finish.
		close(inner)
		close(done)
	}()

	sent := false
	for ev := range inner {
		sent = true
		ch <- ev
	}
	<-done
	return resp, sent, err
}

// backoff sleeps before the next attempt: base doubled per attempt, up
// to half again of jitter, floored by the server's Retry-After when the
// error carries one. Returns ctx.Err() if the context expires first.
func (r *retrier) backoff(ctx context.Context, attempt int, err error) error {
	d := r.base << (attempt - 1)
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))
	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) && httpErr.RetryAfter > d {
		d = httpErr.RetryAfter
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// deadline caps the whole retry sequence when a budget is configured.
// An earlier deadline already on ctx wins.
func (r *retrier) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.budget <= 0 {
		return ctx, func() {}
	}
	if t, ok := ctx.Deadline(); ok && time.Until(t) < r.budget {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.budget)
}

func (r *retrier) warn(attempt int, err error) {
	r.log.Warn("transient provider error, retrying",
		"provider", r.next.Name(),
		"attempt", attempt,
		"max_attempts", r.attempts,
		"error", err)
}

func (r *retrier) giveUp(err error) {
	r.log.Error("retries exhausted",
		"provider", r.next.Name(),
		"attempts", r.attempts,
		"error", err)
}

// retryable reports whether err is worth another attempt: HTTP 429
// (rate limited) or 503 (overloaded). Everything else is permanent.
func retryable(err error) bool {
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.Status == http.StatusTooManyRequests ||
		httpErr.Status == http.StatusServiceUnavailable
}

var _ Provider = (*retrier)(nil)
