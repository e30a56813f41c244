package kage

import (
	"encoding/json"
	"strings"
	"testing"
)

// Event type strings are part of the streaming wire surface; consumers
// switch on them (see cmd/kage).
func TestStreamEventTypeValues(t *testing.T) {
	tests := []struct {
		typ  StreamEventType
		want string
	}{
		{EventTurnStart, "turn-start"},
		{EventObservation, "observation"},
		{EventText, "text"},
		{EventToolCallStart, "tool-call-start"},
		{EventToolCallResult, "tool-call-result"},
		{EventFinalAnswer, "final-answer"},
		{EventError, "error"},
	}
	for _, tt := range tests {
		if string(tt.typ) != tt.want {
			t.Errorf("got %q, want %q", tt.typ, tt.want)
		}
	}
}

func TestStreamEventJSONOmitsEmptyFields(t *testing.T) {
	ev := StreamEvent{Type: EventTurnStart, Turn: 3}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if got != `{"type":"turn-start","turn":3}` {
		t.Errorf("got %s", got)
	}

	ev = StreamEvent{Type: EventToolCallStart, Name: "click", Args: json.RawMessage(`{"index":2}`), Turn: 1}
	b, err = json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"args":{"index":2}`) {
		t.Errorf("args not embedded raw: %s", b)
	}
}
