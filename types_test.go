package kage

import (
	"testing"
	"time"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  ChatMessage
		role string
	}{
		{"user", UserMessage("find a hotel"), "user"},
		{"system", SystemMessage("you browse the web"), "system"},
		{"assistant", AssistantMessage("done"), "assistant"},
	}
	for _, tt := range tests {
		if tt.msg.Role != tt.role {
			t.Errorf("%s: Role = %q, want %q", tt.name, tt.msg.Role, tt.role)
		}
		if tt.msg.Content == "" {
			t.Errorf("%s: Content is empty", tt.name)
		}
		if tt.msg.ToolCallID != "" {
			t.Errorf("%s: unexpected ToolCallID %q", tt.name, tt.msg.ToolCallID)
		}
	}
}

func TestToolResultMessage(t *testing.T) {
	msg := ToolResultMessage("call_81", "navigation complete")
	if msg.Role != "tool" {
		t.Errorf("Role = %q, want tool", msg.Role)
	}
	if msg.ToolCallID != "call_81" {
		t.Errorf("ToolCallID = %q, want call_81", msg.ToolCallID)
	}
	if msg.Content != "navigation complete" {
		t.Errorf("Content = %q", msg.Content)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 36 {
		t.Errorf("expected 36 chars (UUIDv7), got %d: %s", len(a), a)
	}
	if a == b {
		t.Error("two IDs should be unique")
	}
	if a >= b {
		t.Error("sequential UUIDv7s should sort in generation order")
	}
}

func TestNowUnixMilli(t *testing.T) {
	before := time.Now().UnixMilli()
	got := NowUnixMilli()
	if after := time.Now().UnixMilli(); got < before || got > after {
		t.Errorf("NowUnixMilli() = %d, want within [%d, %d]", got, before, after)
	}
}
