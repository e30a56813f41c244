package kage

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status int
	Body   string
	// RetryAfter is parsed from the Retry-After response header.
	// Zero when the header was absent or unparseable.
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, which is either a
// number of seconds or an HTTP-date. Returns 0 for empty or malformed input.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrCapacity is returned when creating an agent would exceed the
// process-wide instance limit.
type ErrCapacity struct {
	Limit int
}

func (e *ErrCapacity) Error() string {
	return fmt.Sprintf("instance limit reached: at most %d agents are allowed", e.Limit)
}

// ErrDepth is returned when a delegation would exceed the maximum clone depth.
type ErrDepth struct {
	Depth int
}

func (e *ErrDepth) Error() string {
	return fmt.Sprintf("maximum clone depth (%d) reached", e.Depth)
}
