package openaicompat

import "encoding/json"

// Request is the chat completions body. Only the knobs this module
// actually sends are modeled; the dialect's long tail (penalties, seeds,
// logit bias) is omitted.
type Request struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Tools         []Tool         `json:"tools,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions asks the server to append a usage frame to the stream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is one entry of the messages array. Content is a string for
// plain text and a []ContentBlock when the message carries screenshots.
type Message struct {
	Role       string          `json:"role"`
	Content    any             `json:"content"`
	ToolCalls  []ToolCallChunk `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ContentBlock is a typed segment of a multimodal message.
type ContentBlock struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef points at an image, here always a base64 data URI.
type ImageRef struct {
	URL string `json:"url"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Type     string      `json:"type"` // always "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef carries a tool's name, description, and JSON Schema.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCallChunk is a tool call as it appears on the wire. In a complete
// message it arrives whole; in a stream the ID and name come first and
// Arguments trickles in as string fragments keyed by Index.
type ToolCallChunk struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the called function's name and its arguments as a
// JSON-encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is the subset of the completions response this module reads.
// Unknown fields (id, finish_reason, refusals) are ignored by the decoder.
type Response struct {
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice holds either a complete Message or a streaming Delta.
type Choice struct {
	Message *ChoiceMessage `json:"message,omitempty"`
	Delta   *ChoiceMessage `json:"delta,omitempty"`
}

// ChoiceMessage is the payload shared by complete and delta choices.
type ChoiceMessage struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// Usage reports token counts for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
