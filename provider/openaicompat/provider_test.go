package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevindra/kage"
)

// recorded holds what the test server saw in the last request.
type recorded struct {
	req  Request
	auth string
}

// chatServer answers every request with a fixed status and body, recording
// the wire request for assertions.
func chatServer(t *testing.T, status int, header http.Header, respond string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			t.Errorf("%s %s, want POST /chat/completions", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		rec.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&rec.req); err != nil {
			t.Errorf("decode wire request: %v", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		w.Write([]byte(respond))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestProviderChat(t *testing.T) {
	srv, rec := chatServer(t, http.StatusOK, nil,
		`{"choices":[{"message":{"role":"assistant","content":"Hello!"}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`)

	p := NewProvider("test-key", "gpt-5-mini", srv.URL)
	resp, err := p.Chat(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if rec.auth != "Bearer test-key" {
		t.Errorf("Authorization = %q", rec.auth)
	}
	if rec.req.Model != "gpt-5-mini" {
		t.Errorf("wire model = %q", rec.req.Model)
	}
	if resp.Content != "Hello!" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestProviderChat_ToolRoundTrip(t *testing.T) {
	srv, rec := chatServer(t, http.StatusOK, nil,
		`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"call_abc","type":"function","function":{"name":"browser_goto","arguments":"{\"url\":\"https://example.com\"}"}}]}}],"usage":{"prompt_tokens":10,"completion_tokens":8}}`)

	p := NewProvider("test-key", "gpt-5-mini", srv.URL)
	resp, err := p.Chat(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Open example.com")},
		Tools: []kage.ToolDefinition{{
			Name:        "browser_goto",
			Description: "Navigate the current tab to a URL",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}}}`),
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	// The declaration went out...
	if len(rec.req.Tools) != 1 || rec.req.Tools[0].Function.Name != "browser_goto" {
		t.Errorf("wire tools = %+v", rec.req.Tools)
	}
	// ...and the call came back.
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_abc" || resp.ToolCalls[0].Name != "browser_goto" {
		t.Errorf("call = %+v", resp.ToolCalls[0])
	}
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.ToolCalls[0].Args, &args); err != nil || args.URL != "https://example.com" {
		t.Errorf("args = %s (err %v)", resp.ToolCalls[0].Args, err)
	}
}

func TestProviderChatStream(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{}}],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2}}\n\n" +
		"data: [DONE]\n\n"
	srv, rec := chatServer(t, http.StatusOK, http.Header{"Content-Type": {"text/event-stream"}}, body)

	p := NewProvider("test-key", "gpt-5-mini", srv.URL)
	ch := make(chan kage.StreamEvent, 16)
	resp, err := p.ChatStream(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Hi")},
	}, ch)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if !rec.req.Stream {
		t.Error("wire request missing stream=true")
	}
	if rec.req.StreamOptions == nil || !rec.req.StreamOptions.IncludeUsage {
		t.Error("wire request missing stream_options.include_usage")
	}

	streamed, _ := collectText(ch)
	if streamed != "Hello world" || resp.Content != "Hello world" {
		t.Errorf("streamed %q, assembled %q", streamed, resp.Content)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestProviderChatStream_RateLimited(t *testing.T) {
	srv, _ := chatServer(t, http.StatusTooManyRequests,
		http.Header{"Retry-After": {"2"}}, `{"error":"rate limited"}`)

	p := NewProvider("test-key", "gpt-5-mini", srv.URL)
	ch := make(chan kage.StreamEvent, 4)
	_, err := p.ChatStream(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Hi")},
	}, ch)

	var httpErr *kage.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %T %v, want *kage.ErrHTTP", err, err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.Status)
	}
	if httpErr.RetryAfter != 2*time.Second {
		t.Errorf("retry-after = %v, want 2s", httpErr.RetryAfter)
	}

	// The channel survives the error; the caller owns closing it.
	select {
	case ch <- kage.StreamEvent{}:
	default:
		t.Error("channel send blocked")
	}
}

func TestProviderChat_ServerError(t *testing.T) {
	srv, _ := chatServer(t, http.StatusInternalServerError, nil, `{"error":"internal"}`)

	p := NewProvider("test-key", "gpt-5-mini", srv.URL)
	_, err := p.Chat(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Hi")},
	})

	var httpErr *kage.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %T %v, want *kage.ErrHTTP", err, err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", httpErr.Status)
	}
	if httpErr.Body != `{"error":"internal"}` {
		t.Errorf("body = %q", httpErr.Body)
	}
}

func TestProviderName(t *testing.T) {
	if got := NewProvider("k", "m", "http://localhost").Name(); got != "openai" {
		t.Errorf("default name = %q", got)
	}
	if got := NewProvider("k", "m", "http://localhost", WithName("groq")).Name(); got != "groq" {
		t.Errorf("name = %q, want groq", got)
	}
}

func TestProviderChat_NoAPIKey(t *testing.T) {
	srv, rec := chatServer(t, http.StatusOK, nil, `{"choices":[{"message":{"content":"OK"}}]}`)

	// Local servers like Ollama take no key; no header must be sent.
	p := NewProvider("", "llama3", srv.URL)
	resp, err := p.Chat(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if rec.auth != "" {
		t.Errorf("Authorization sent for empty key: %q", rec.auth)
	}
	if resp.Content != "OK" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestProviderChat_StandingOptions(t *testing.T) {
	srv, rec := chatServer(t, http.StatusOK, nil, `{"choices":[{"message":{"content":"OK"}}]}`)

	p := NewProvider("k", "gpt-5-mini", srv.URL,
		WithOptions(WithTemperature(1), WithMaxTokens(2048)))
	if _, err := p.Chat(context.Background(), kage.ChatRequest{
		Messages: []kage.ChatMessage{kage.UserMessage("Hi")},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if rec.req.Temperature == nil || *rec.req.Temperature != 1 {
		t.Errorf("wire temperature = %v", rec.req.Temperature)
	}
	if rec.req.MaxTokens != 2048 {
		t.Errorf("wire max_tokens = %d", rec.req.MaxTokens)
	}
}
