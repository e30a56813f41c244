package kage

import "context"

// Provider abstracts the LLM backend. Tool definitions ride inside the
// ChatRequest; a response that contains tool calls is not final.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatStream streams text deltas into ch as EventText events, then
	// returns the final response with usage stats. It must not close ch.
	ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "ollama").
	Name() string
}
