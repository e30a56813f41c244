// Package gemini implements kage.Provider for Google Gemini models via
// the generativelanguage REST API.
package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nevindra/kage"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider implements kage.Provider for Google Gemini models.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client

	temperature     float64
	topP            float64
	thinkingEnabled bool
}

// New creates a Gemini chat provider.
func New(apiKey, model string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		client:      &http.Client{},
		temperature: 0.1,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "gemini".
func (p *Provider) Name() string { return "gemini" }

// Chat sends a non-streaming generateContent request and returns the
// complete response. When req.Tools is non-empty, the response may
// contain ToolCalls.
func (p *Provider) Chat(ctx context.Context, req kage.ChatRequest) (kage.ChatResponse, error) {
	return p.doGenerate(ctx, p.buildBody(req.Messages, req.Tools))
}

// ChatStream streams text-delta events into ch, then returns the final
// accumulated response. The channel is left open on every path; the
// caller owns closing it.
func (p *Provider) ChatStream(ctx context.Context, req kage.ChatRequest, ch chan<- kage.StreamEvent) (kage.ChatResponse, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, p.model, p.apiKey)

	resp, err := p.sendHTTP(ctx, url, p.buildBody(req.Messages, req.Tools))
	if err != nil {
		return kage.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return kage.ChatResponse{}, httpErr(resp, string(b))
	}

	var fullContent strings.Builder
	var toolCalls []kage.ToolCall
	var usage kage.Usage

	scanner := bufio.NewScanner(resp.Body)
	// SSE payloads can exceed bufio's default 64 KiB line limit.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	// Gemini sometimes splits a JSON chunk across SSE lines; accumulate
	// until the braces balance.
	var jsonBuf strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			if jsonBuf.Len() > 0 {
				jsonBuf.WriteString(line)
				if isCompleteJSON(jsonBuf.String()) {
					if err := p.processStreamChunk(ctx, jsonBuf.String(), &fullContent, &toolCalls, &usage, ch); err != nil {
						return kage.ChatResponse{}, err
					}
					jsonBuf.Reset()
				}
			}
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		if isCompleteJSON(data) {
			if err := p.processStreamChunk(ctx, data, &fullContent, &toolCalls, &usage, ch); err != nil {
				return kage.ChatResponse{}, err
			}
		} else {
			jsonBuf.Reset()
			jsonBuf.WriteString(data)
		}
	}
	if err := scanner.Err(); err != nil {
		return kage.ChatResponse{}, p.wrapErr("read stream: " + err.Error())
	}

	if jsonBuf.Len() > 0 && isCompleteJSON(jsonBuf.String()) {
		if err := p.processStreamChunk(ctx, jsonBuf.String(), &fullContent, &toolCalls, &usage, ch); err != nil {
			return kage.ChatResponse{}, err
		}
	}

	return kage.ChatResponse{
		Content:   fullContent.String(),
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

// processStreamChunk parses one JSON chunk from the SSE stream, sends text
// deltas to ch, and accumulates tool calls and usage. Malformed chunks are
// skipped. Returns ctx.Err() if the consumer went away mid-send.
func (p *Provider) processStreamChunk(ctx context.Context, data string, content *strings.Builder, calls *[]kage.ToolCall, usage *kage.Usage, ch chan<- kage.StreamEvent) error {
	var chunk geminiResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil
	}

	if len(chunk.Candidates) > 0 {
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != nil && *part.Text != "" {
				content.WriteString(*part.Text)
				select {
				case ch <- kage.StreamEvent{Type: kage.EventText, Content: *part.Text}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			// Function calls arrive whole, not fragmented.
			if part.FunctionCall != nil {
				*calls = append(*calls, toolCallFromPart(part.FunctionCall))
			}
		}
	}

	// Usage metadata arrives on multiple chunks; the last one wins.
	if chunk.UsageMetadata != nil {
		usage.InputTokens = chunk.UsageMetadata.PromptTokenCount
		usage.OutputTokens = chunk.UsageMetadata.CandidatesTokenCount
	}
	return nil
}

// doGenerate performs a non-streaming generateContent call and parses the response.
func (p *Provider) doGenerate(ctx context.Context, body map[string]any) (kage.ChatResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)

	resp, err := p.sendHTTP(ctx, url, body)
	if err != nil {
		return kage.ChatResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return kage.ChatResponse{}, p.wrapErr("read response: " + err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return kage.ChatResponse{}, httpErr(resp, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return kage.ChatResponse{}, p.wrapErr("parse response: " + err.Error())
	}

	var content strings.Builder
	var toolCalls []kage.ToolCall

	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			// Skip thinking parts.
			if part.Thought {
				continue
			}
			if part.Text != nil {
				content.WriteString(*part.Text)
			}
			if part.FunctionCall != nil {
				toolCalls = append(toolCalls, toolCallFromPart(part.FunctionCall))
			}
		}
	}

	var usage kage.Usage
	if parsed.UsageMetadata != nil {
		usage.InputTokens = parsed.UsageMetadata.PromptTokenCount
		usage.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
	}

	return kage.ChatResponse{
		Content:   content.String(),
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

// sendHTTP marshals the body and POSTs it to url.
func (p *Provider) sendHTTP(ctx context.Context, url string, body map[string]any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, p.wrapErr("marshal request: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, p.wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.wrapErr("request failed: " + err.Error())
	}
	return resp, nil
}

// toolCallFromPart converts a Gemini functionCall part. Gemini has no call
// IDs, so the function name doubles as the ID; tool results are paired back
// by that name in buildBody.
func toolCallFromPart(fc *geminiFuncCall) kage.ToolCall {
	args := fc.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return kage.ToolCall{ID: fc.Name, Name: fc.Name, Args: args}
}

func (p *Provider) wrapErr(msg string) error {
	return &kage.ErrLLM{Provider: "gemini", Message: msg}
}

// httpErr creates an ErrHTTP from an HTTP response, extracting the retry
// delay from the Retry-After header or from the Gemini-specific
// google.rpc.RetryInfo detail in the JSON error body.
func httpErr(resp *http.Response, body string) *kage.ErrHTTP {
	ra := kage.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &kage.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: ra,
	}
}

// parseRetryInfo extracts the retryDelay from a Gemini error body containing
// a google.rpc.RetryInfo detail. Returns 0 if not found or unparseable.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}

// ---- Body builder ----

// buildBody constructs the generateContent request body. System messages
// are collected into systemInstruction; assistant maps to the "model"
// role; tool results become functionResponse parts; screenshots ride as
// inlineData parts.
func (p *Provider) buildBody(messages []kage.ChatMessage, tools []kage.ToolDefinition) map[string]any {
	var systemParts []string
	var contents []map[string]any

	for _, m := range messages {
		switch {
		case m.Role == "system":
			systemParts = append(systemParts, m.Content)

		case len(m.ToolCalls) > 0:
			// Assistant message with tool calls -> model role with
			// functionCall parts, preceded by a text part if present.
			parts := make([]map[string]any, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, map[string]any{"text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args any
				if len(tc.Args) > 0 {
					if err := json.Unmarshal(tc.Args, &args); err != nil {
						args = map[string]any{}
					}
				} else {
					args = map[string]any{}
				}
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{
						"name": tc.Name,
						"args": args,
					},
				})
			}
			contents = append(contents, map[string]any{
				"role":  "model",
				"parts": parts,
			})

		case m.Role == "tool":
			// Tool result message -> user role with functionResponse part.
			contents = append(contents, map[string]any{
				"role": "user",
				"parts": []map[string]any{
					{
						"functionResponse": map[string]any{
							"name": m.ToolCallID,
							"response": map[string]any{
								"result": m.Content,
							},
						},
					},
				},
			})

		default:
			// Regular user or assistant message.
			var parts []map[string]any

			if m.Content != "" {
				parts = append(parts, map[string]any{"text": m.Content})
			}

			// Images are already base64-encoded; pass through as-is.
			for _, img := range m.Images {
				parts = append(parts, map[string]any{
					"inlineData": map[string]any{
						"mimeType": img.MimeType,
						"data":     img.Base64,
					},
				})
			}

			// Gemini requires at least one part.
			if len(parts) == 0 {
				parts = append(parts, map[string]any{"text": ""})
			}

			contents = append(contents, map[string]any{
				"role":  mapRole(m.Role),
				"parts": parts,
			})
		}
	}

	body := map[string]any{
		"contents": contents,
	}

	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{
				{"text": strings.Join(systemParts, "\n\n")},
			},
		}
	}

	if len(tools) > 0 {
		declarations := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			var params any
			if len(t.Parameters) > 0 {
				if err := json.Unmarshal(t.Parameters, &params); err != nil {
					params = map[string]any{}
				}
			} else {
				params = map[string]any{}
			}
			declarations = append(declarations, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			})
		}
		body["tools"] = []map[string]any{
			{"functionDeclarations": declarations},
		}
	} else {
		// No tools on this request (e.g. handoff summaries): forbid
		// spontaneous function calls.
		body["toolConfig"] = map[string]any{
			"functionCallingConfig": map[string]any{
				"mode": "NONE",
			},
		}
	}

	genConfig := map[string]any{
		"temperature": p.temperature,
		"topP":        p.topP,
	}
	if p.thinkingEnabled {
		genConfig["thinkingConfig"] = map[string]any{
			"thinkingBudget": -1,
		}
	}
	body["generationConfig"] = genConfig

	return body
}

// mapRole converts standard roles to Gemini API roles.
func mapRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return role
}

// ---- Response parsing types ----

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text         *string         `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
	Thought      bool            `json:"thought,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// ---- Stream helpers ----

// isCompleteJSON checks whether a string has balanced braces/brackets,
// indicating it is a complete JSON value.
func isCompleteJSON(s string) bool {
	depth := 0
	inString := false
	escape := false

	for _, ch := range s {
		if escape {
			escape = false
			continue
		}
		if ch == '\\' && inString {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return depth == 0 && !inString
}

// Compile-time interface check.
var _ kage.Provider = (*Provider)(nil)
