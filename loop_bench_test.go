package kage

import (
	"encoding/json"
	"strings"
	"testing"
)

// --- truncateStr benchmarks ---

func BenchmarkTruncateStrShortASCII(b *testing.B) {
	s := strings.Repeat("navigated ", 50) // under the limit: fast path
	b.ResetTimer()
	for range b.N {
		truncateStr(s, maxToolResultMessageLen)
	}
}

func BenchmarkTruncateStrLongASCII(b *testing.B) {
	s := strings.Repeat("x", maxToolResultMessageLen+1000)
	b.ResetTimer()
	for range b.N {
		truncateStr(s, maxToolResultMessageLen)
	}
}

func BenchmarkTruncateStrMultibyte(b *testing.B) {
	s := strings.Repeat("日本語テスト", 20_000)
	b.ResetTimer()
	for range b.N {
		truncateStr(s, maxToolResultMessageLen)
	}
}

// --- extractFinalAnswer benchmark ---

func BenchmarkExtractFinalAnswer(b *testing.B) {
	msgs := make([]ChatMessage, 0, 120)
	msgs = append(msgs, UserMessage("compare flight prices across three airlines"))
	for i := 0; i < 58; i++ {
		msgs = append(msgs,
			ChatMessage{Role: "assistant", ToolCalls: []ToolCall{{ID: "c", Name: "click", Args: json.RawMessage(`{"index":4}`)}}},
			ToolResultMessage("c", strings.Repeat("page content ", 40)))
	}
	msgs = append(msgs, AssistantMessage("[FINAL ANSWER] ANA is cheapest at $618 round trip."))
	b.ResetTimer()
	for range b.N {
		extractFinalAnswer(msgs)
	}
}

// --- condenseHistory benchmark ---

func BenchmarkCondenseHistory(b *testing.B) {
	msgs := make([]ChatMessage, 0, 250)
	msgs = append(msgs, UserMessage("research mechanical keyboards under $150"))
	for i := 0; i < 120; i++ {
		msgs = append(msgs,
			ChatMessage{Role: "assistant", ToolCalls: []ToolCall{{ID: "c", Name: "extract_page_content", Args: json.RawMessage(`{}`)}}},
			ToolResultMessage("c", strings.Repeat("switch specs ", 60)))
	}
	b.ResetTimer()
	for range b.N {
		condenseHistory(msgs)
	}
}
