package kage

import "encoding/json"

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventTurnStart signals the start of a reason/act turn.
	EventTurnStart StreamEventType = "turn-start"
	// EventObservation signals a fresh page observation was captured.
	EventObservation StreamEventType = "observation"
	// EventText carries assistant text produced during a turn.
	EventText StreamEventType = "text"
	// EventToolCallStart signals a tool is about to be invoked.
	EventToolCallStart StreamEventType = "tool-call-start"
	// EventToolCallResult carries the result of a completed tool call.
	EventToolCallResult StreamEventType = "tool-call-result"
	// EventFinalAnswer carries the run's final answer.
	EventFinalAnswer StreamEventType = "final-answer"
	// EventError carries a run-aborting error.
	EventError StreamEventType = "error"
)

// StreamEvent is a typed event emitted during agent streaming.
// Consumers receive these on the channel passed to RunStream.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Name is the tool name (set for tool events, empty otherwise).
	Name string `json:"name,omitempty"`
	// Content carries assistant text (text, final-answer), the tool
	// result (tool-call-result), the page URL (observation), or the
	// error message (error).
	Content string `json:"content,omitempty"`
	// Args carries the tool call arguments (tool-call-start only).
	Args json.RawMessage `json:"args,omitempty"`
	// Turn is the 1-based turn number the event belongs to.
	Turn int `json:"turn,omitempty"`
}
