package kage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry in the transcript a Provider consumes. Role is
// "system", "user", "assistant", or "tool".
type ChatMessage struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Images     []ImageData `json:"images,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// ToolResultMessage wraps a tool's output as the transcript entry answering
// the call with the given ID.
func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// ImageData is an inline base64 image. In practice these are page
// screenshots the browser tool attaches so the model can see what it
// is acting on.
type ImageData struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// ToolCall is the model asking for one tool invocation. Args is the raw
// JSON argument object exactly as the model produced it.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ChatRequest carries the transcript plus the tools offered this turn.
type ChatRequest struct {
	Messages []ChatMessage    `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// ChatResponse is one completed model turn: prose, tool calls, or both.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage counts tokens consumed by a single provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolDefinition describes a callable tool to the model. Parameters holds
// a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// RunRecord is the persisted outcome of one agent run, written by a Store
// when the run finishes. Timestamps are Unix milliseconds.
type RunRecord struct {
	ID         string `json:"id"`
	Agent      string `json:"agent"`
	Room       string `json:"room"`
	Task       string `json:"task"`
	Answer     string `json:"answer"`
	Actions    int    `json:"actions"`
	CloneDepth int    `json:"clone_depth"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
}

// NewID returns a UUIDv7 (RFC 9562): globally unique and time-sortable,
// so run records order chronologically by ID.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnixMilli is the timestamp source for run records.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
