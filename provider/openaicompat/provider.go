// Package openaicompat implements kage.Provider over the OpenAI chat
// completions dialect. OpenRouter, Groq, DeepSeek, Together, Mistral,
// Ollama, vLLM, LM Studio and most API gateways speak the same dialect,
// so one client covers them all.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nevindra/kage"
)

// Provider is a chat completions client bound to one model.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	name    string
	client  *http.Client
	opts    []Option
}

// NewProvider builds a client for baseURL, the API root without the
// /chat/completions suffix (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). An empty apiKey sends no Authorization
// header, which local servers like Ollama accept.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		name:    "openai",
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name reports the configured provider name, "openai" by default.
func (p *Provider) Name() string { return p.name }

// Chat sends one blocking completion request. Tool calls in the response
// mean the turn is not final.
func (p *Provider) Chat(ctx context.Context, req kage.ChatRequest) (kage.ChatResponse, error) {
	resp, err := p.post(ctx, p.body(req))
	if err != nil {
		return kage.ChatResponse{}, err
	}
	defer resp.Body.Close()

	var wire Response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return kage.ChatResponse{}, &kage.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return decodeResponse(wire), nil
}

// ChatStream streams text deltas into ch and returns the assembled
// response with usage. ch stays open on every path; the caller owns
// closing it.
func (p *Provider) ChatStream(ctx context.Context, req kage.ChatRequest, ch chan<- kage.StreamEvent) (kage.ChatResponse, error) {
	body := p.body(req)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := p.post(ctx, body)
	if err != nil {
		return kage.ChatResponse{}, err
	}
	defer resp.Body.Close()

	return readStream(ctx, resp.Body, ch)
}

// body encodes an engine request with the provider's standing options.
func (p *Provider) body(req kage.ChatRequest) Request {
	return buildBody(req.Messages, req.Tools, p.model, p.opts...)
}

// post sends the request and screens the status. Non-200 responses come
// back as *kage.ErrHTTP carrying the body and any Retry-After hint, which
// the retry wrapper uses for backoff pacing.
func (p *Provider) post(ctx context.Context, body Request) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &kage.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &kage.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, &kage.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: kage.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

var _ kage.Provider = (*Provider)(nil)
