package kage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// --- shared execution loop ---

// DispatchResult holds the outcome of a single tool dispatch.
type DispatchResult struct {
	Content string
	// IsError signals that Content represents an error message rather than
	// a successful tool result. This enables structural error detection
	// without relying on string-prefix heuristics.
	IsError bool
}

// DispatchFunc executes a single tool call and returns the result.
// Agent provides one that routes through its ToolRegistry.
type DispatchFunc func(ctx context.Context, tc ToolCall) DispatchResult

// observeFunc captures the browser state at the top of a turn. It returns
// the transient context messages for the request (tab overview, annotated
// element tree, page markdown, screenshot) plus the current page URL, which
// decides whether a navigation reminder is attached.
type observeFunc func(ctx context.Context) ([]ChatMessage, string, error)

// chatFetchFunc returns the formatted group chat block for the identity
// message. Implementations must degrade to a placeholder string rather
// than fail: chat visibility is advisory, not load-bearing.
type chatFetchFunc func(ctx context.Context) string

// loopConfig holds everything the shared runLoop needs to run.
type loopConfig struct {
	name         string // agent name, used in the identity message and logs
	provider     Provider
	tools        []ToolDefinition
	dispatch     DispatchFunc
	systemPrompt string
	maxTurns     int           // 0 = defaultMaxTurns
	observe      observeFunc   // nil = no page context
	fetchChat    chatFetchFunc // nil = no identity/chat message
	summarizer   Provider      // nil = no per-action summaries
	tracer       Tracer        // nil = no tracing
	logger       *slog.Logger  // never nil (nopLogger fallback)
}

// maxToolResultMessageLen is the maximum rune length for a tool result stored
// in the conversation history during the reason/act loop. Results exceeding
// this limit are truncated with a marker so the LLM knows content was
// trimmed. This prevents unbounded memory growth from tools that return very
// large outputs (e.g. page content extraction).
//
// Stream events retain the full content since they are transient and not
// accumulated across turns.
const maxToolResultMessageLen = 100_000 // ~25K tokens

// defaultMaxTurns bounds the reason/act loop. When the budget runs out the
// answer is extracted from the conversation as-is; no extra LLM call is made.
const defaultMaxTurns = 150

// runLoop is the shared reason/act loop behind Agent.Run and Agent.RunStream.
// history must already contain the task as its last user message; the
// returned slice is history extended with everything the loop appended.
// When ch is nil, it operates in blocking mode. When ch is non-nil, it emits
// StreamEvent values and closes ch when done.
//
// Each turn rebuilds the transient context around the durable history: the
// system prompt, the identity/group-chat message, an optional navigation
// reminder, and a fresh page observation. Only assistant messages and tool
// results are appended to history itself.
func runLoop(ctx context.Context, cfg loopConfig, history []ChatMessage, ch chan<- StreamEvent) (string, []ChatMessage, Usage, error) {
	var totalUsage Usage

	maxTurns := cfg.maxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	// safeCloseCh closes the streaming channel exactly once. All exit paths
	// use this instead of raw close(ch), preventing double-close panics if
	// a provider's ChatStream also closes the channel internally.
	var closeOnce sync.Once
	safeCloseCh := func() {
		if ch != nil {
			closeOnce.Do(func() {
				defer func() { recover() }()
				close(ch)
			})
		}
	}

	// emit sends an event without blocking past context cancellation.
	emit := func(ev StreamEvent) {
		if ch == nil {
			return
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}

	for turn := 1; turn <= maxTurns; turn++ {
		turnCtx := ctx
		var turnSpan Span
		if cfg.tracer != nil {
			turnCtx, turnSpan = cfg.tracer.Start(ctx, "agent.turn",
				StringAttr("agent", cfg.name),
				IntAttr("turn", turn))
		}
		endTurn := func() {
			if turnSpan != nil {
				turnSpan.End()
			}
		}

		emit(StreamEvent{Type: EventTurnStart, Name: cfg.name, Turn: turn})

		// Fresh observation every turn; element annotations from earlier
		// turns are stale the moment the page mutates.
		var pageMsgs []ChatMessage
		var currentURL string
		if cfg.observe != nil {
			var err error
			pageMsgs, currentURL, err = cfg.observe(turnCtx)
			if err != nil {
				endTurn()
				emit(StreamEvent{Type: EventError, Content: err.Error(), Turn: turn})
				safeCloseCh()
				return "", history, totalUsage, fmt.Errorf("observe page: %w", err)
			}
			emit(StreamEvent{Type: EventObservation, Content: currentURL, Turn: turn})
			if turnSpan != nil {
				turnSpan.SetAttr(StringAttr("url", currentURL))
			}
		}

		// Assemble the request: durable history in the middle, transient
		// context rebuilt around it each turn.
		msgs := make([]ChatMessage, 0, len(history)+len(pageMsgs)+3)
		msgs = append(msgs, SystemMessage(cfg.systemPrompt))
		msgs = append(msgs, history...)
		if cfg.fetchChat != nil {
			msgs = append(msgs, SystemMessage(identityMessage(cfg.name, cfg.fetchChat(turnCtx))))
		}
		if cfg.observe != nil && isNeutralPage(currentURL) {
			msgs = append(msgs, SystemMessage(navigationWarning(currentURL)))
		}
		msgs = append(msgs, pageMsgs...)

		req := ChatRequest{Messages: msgs, Tools: cfg.tools}

		var resp ChatResponse
		var err error
		streamed := false
		if len(cfg.tools) == 0 && ch != nil {
			// No tools, streaming — stream the response directly.
			resp, err = cfg.provider.ChatStream(turnCtx, req, ch)
			streamed = true
		} else {
			resp, err = cfg.provider.Chat(turnCtx, req)
		}
		if err != nil {
			endTurn()
			emit(StreamEvent{Type: EventError, Content: err.Error(), Turn: turn})
			safeCloseCh()
			return "", history, totalUsage, err
		}
		totalUsage.InputTokens += resp.Usage.InputTokens
		totalUsage.OutputTokens += resp.Usage.OutputTokens

		if resp.Content != "" && !streamed {
			emit(StreamEvent{Type: EventText, Content: resp.Content, Turn: turn})
		}

		// No tool calls — the run is over. The answer is extracted from the
		// whole conversation, not just this response: the model may have
		// emitted the answer marker on an earlier turn.
		if len(resp.ToolCalls) == 0 {
			history = append(history, AssistantMessage(resp.Content))
			answer := extractFinalAnswer(history)
			emit(StreamEvent{Type: EventFinalAnswer, Content: answer, Turn: turn})
			endTurn()
			safeCloseCh()
			return answer, history, totalUsage, nil
		}

		if turnSpan != nil {
			turnSpan.SetAttr(IntAttr("tool_count", len(resp.ToolCalls)))
		}

		history = append(history, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Dispatch sequentially. Browser tools mutate shared page state, so
		// within a turn each call must see the effects of the previous one,
		// and results keep a strict 1:1 ordered pairing with the calls above.
		results := make([]string, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			emit(StreamEvent{Type: EventToolCallStart, Name: tc.Name, Args: tc.Args, Turn: turn})
			dr := safeDispatch(turnCtx, tc, cfg.dispatch)
			emit(StreamEvent{Type: EventToolCallResult, Name: tc.Name, Content: dr.Content, Turn: turn})

			if dr.IsError {
				cfg.logger.Warn("tool call failed", "agent", cfg.name, "tool", tc.Name, "turn", turn)
			}

			// Truncate large tool results before appending to history.
			// Stream events above retain the full content (transient).
			msgContent := dr.Content
			if len([]rune(msgContent)) > maxToolResultMessageLen {
				msgContent = truncateStr(msgContent, maxToolResultMessageLen) + "\n\n[output truncated — original was longer]"
			}
			results = append(results, msgContent)
			history = append(history, ToolResultMessage(tc.ID, msgContent))
		}

		// Per-action summary: diff the observation the model acted on against
		// a fresh one and note the perceived change in history. Failures skip
		// the note; the next turn's observation covers the same ground.
		if cfg.summarizer != nil && cfg.observe != nil {
			if afterMsgs, _, obsErr := cfg.observe(turnCtx); obsErr != nil {
				cfg.logger.Warn("action summary observation failed", "agent", cfg.name, "error", obsErr)
			} else {
				note, sumErr := summarizeAction(turnCtx, cfg.summarizer, pageMsgs, afterMsgs, resp.ToolCalls, results)
				switch {
				case sumErr != nil:
					cfg.logger.Warn("action summarization failed", "agent", cfg.name, "error", sumErr)
				case note != "":
					history = append(history, SystemMessage("Summary of last action: "+note))
				}
			}
		}
		endTurn()
	}

	// Turn budget exhausted — extract whatever answer the conversation
	// already holds.
	cfg.logger.Warn("max turns reached", "agent", cfg.name, "turns", maxTurns)
	answer := extractFinalAnswer(history)
	emit(StreamEvent{Type: EventFinalAnswer, Content: answer, Turn: maxTurns})
	safeCloseCh()
	return answer, history, totalUsage, nil
}

// extractFinalAnswer pulls the final answer out of a finished conversation.
// It prefers the most recent message carrying the answer marker (returned
// with the marker stripped), then falls back to the most recent message
// with meaningful text.
func extractFinalAnswer(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		content := messages[i].Content
		if content == "" {
			continue
		}
		if strings.Contains(content, finalAnswerMarker) {
			return strings.TrimSpace(strings.ReplaceAll(content, finalAnswerMarker, ""))
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		content := strings.TrimSpace(messages[i].Content)
		// Skip short fragments and bracket-prefixed status lines.
		if content == "" || strings.HasPrefix(content, "[") || len([]rune(content)) <= 10 {
			continue
		}
		return content
	}
	return noAnswerSentinel
}

// safeDispatch wraps a dispatch call with panic recovery. If the dispatched
// tool panics, the panic is caught and converted to an error result instead
// of crashing the run.
func safeDispatch(ctx context.Context, tc ToolCall, dispatch DispatchFunc) (dr DispatchResult) {
	defer func() {
		if p := recover(); p != nil {
			dr = DispatchResult{Content: fmt.Sprintf("error: tool %q panic: %v", tc.Name, p), IsError: true}
		}
	}()
	return dispatch(ctx, tc)
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	// Fast path: byte length ≤ n guarantees rune count ≤ n,
	// avoiding the []rune allocation for short/ASCII strings.
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
