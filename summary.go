package kage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	summaryHistoryWindow = 200
	summaryArgsLimit     = 120
	summaryTextLimit     = 400
)

const summarizerPrompt = "You are an expert assistant preparing a crisp handoff summary for a clone agent. " +
	"Write 2-4 concise sentences that clearly state: (1) the main objective, " +
	"(2) key actions/important tool results so far, and (3) current status and blockers/next focus. " +
	"Be concrete and actionable, avoid boilerplate and internal prompts."

// summarizeHistory condenses the parent's conversation and asks the
// provider for a short handoff summary. It never fails: any error falls
// back to a deterministic one-liner so delegation can proceed.
func summarizeHistory(ctx context.Context, provider Provider, msgs []ChatMessage, parentName string, logger *slog.Logger) string {
	if len(msgs) == 0 {
		return "No prior conversation history."
	}

	condensed := condenseHistory(msgs)
	if condensed == "" {
		return "No meaningful conversation history to summarize."
	}

	if provider == nil {
		return summaryFallback(parentName)
	}

	req := ChatRequest{Messages: []ChatMessage{
		SystemMessage(summarizerPrompt),
		UserMessage("Conversation history (chronological, trimmed):\n" + condensed + "\n\nProduce the handoff summary now."),
	}}
	resp, err := provider.Chat(ctx, req)
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		if err != nil {
			logger.Warn("history summarization failed", "error", err)
		}
		return summaryFallback(parentName)
	}
	return strings.TrimSpace(resp.Content)
}

func summaryFallback(parentName string) string {
	return fmt.Sprintf("Parent agent %s was working on tasks (summary unavailable).", parentName)
}

const actionSummaryPrompt = "You are an expert web automation assistant. " +
	"Your task is to summarize the changes on a webpage after a tool was executed. " +
	"Based on the page state before and after the action, and the action itself, " +
	"provide a concise, natural language summary of what happened. " +
	"Focus on what a user would perceive as the change. " +
	"Start your summary with 'After executing the tool, ...'"

// summarizeAction asks the summarizer model to describe what a turn's tool
// calls changed on the page. before is the observation the model acted on,
// after is a fresh observation taken once the calls finished.
func summarizeAction(ctx context.Context, provider Provider, before, after []ChatMessage, calls []ToolCall, results []string) (string, error) {
	callStrs := make([]string, 0, len(calls))
	for _, tc := range calls {
		callStrs = append(callStrs, fmt.Sprintf("%s(%s)", tc.Name, string(tc.Args)))
	}

	msgs := make([]ChatMessage, 0, len(before)+len(after)+3)
	msgs = append(msgs, SystemMessage(actionSummaryPrompt))
	msgs = append(msgs, UserMessage("Here is the state of the page before the action:"))
	msgs = append(msgs, before...)
	msgs = append(msgs, UserMessage(fmt.Sprintf(
		"The action taken was: %s\n\nThe result of the action was: %s\n\nHere is the state of the page after the action:",
		strings.Join(callStrs, ", "), strings.Join(results, ", "))))
	msgs = append(msgs, after...)

	resp, err := provider.Chat(ctx, ChatRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// condenseHistory renders the conversation as compact chronological lines:
// the initial request, then the last summaryHistoryWindow messages with
// system prompts skipped and long content shortened.
func condenseHistory(msgs []ChatMessage) string {
	var lines []string

	for _, m := range msgs {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			lines = append(lines, "Initial request: "+m.Content)
			break
		}
	}

	window := msgs
	if len(window) > summaryHistoryWindow {
		window = window[len(window)-summaryHistoryWindow:]
	}

	// Tool result messages carry only the call ID; recover the tool name
	// from the assistant message that issued the call.
	callNames := make(map[string]string)

	for _, m := range window {
		switch m.Role {
		case "system":
			continue
		case "assistant":
			if len(m.ToolCalls) > 0 {
				calls := make([]string, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					name := tc.Name
					if name == "" {
						name = "tool"
					}
					callNames[tc.ID] = name
					calls = append(calls, fmt.Sprintf("%s(%s)", name, shorten(string(tc.Args), summaryArgsLimit)))
				}
				lines = append(lines, "AI called: "+strings.Join(calls, ", "))
			} else if strings.TrimSpace(m.Content) != "" {
				lines = append(lines, "AI: "+shorten(m.Content, summaryTextLimit))
			}
		case "tool":
			name := callNames[m.ToolCallID]
			if name == "" {
				name = "tool"
			}
			lines = append(lines, fmt.Sprintf("Tool[%s] → %s", name, shorten(m.Content, summaryTextLimit)))
		case "user":
			lines = append(lines, "User: "+shorten(m.Content, summaryTextLimit))
		default:
			if strings.TrimSpace(m.Content) != "" {
				lines = append(lines, shorten(m.Content, summaryTextLimit))
			}
		}
	}

	return strings.Join(lines, "\n")
}

// shorten trims s to at most max characters, marking the cut with "...".
func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
