package kage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nevindra/kage/browser"
)

// DelegateTool lets an agent spawn clone agents for parallel subtasks and
// post to the shared group chat. Each clone runs in a fresh isolated
// browser context, receives a summarized copy of the parent's conversation,
// and is torn down when its task finishes.
type DelegateTool struct {
	parent *Agent
}

// NewDelegateTool binds the delegation tools to their owning agent.
func NewDelegateTool(parent *Agent) *DelegateTool {
	return &DelegateTool{parent: parent}
}

// delegateResult is one entry of the JSON array returned by delegate.
// Result carries the clone's final answer; Error is set for the denied
// and error statuses instead.
type delegateResult struct {
	Task   string `json:"task"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (d *DelegateTool) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "delegate",
			Description: "Spawn shadow-clone sub-agents in parallel to execute multiple focused subtasks. " +
				"One clone is spawned per task, each in a fresh isolated browser context with a summarized copy of your conversation so far. " +
				"Clones have full delegation capabilities and can create their own sub-clones. No initial URL is opened automatically. " +
				"Returns a JSON array of {\"task\", \"status\", \"result\"|\"error\"} records; resources are closed automatically after each clone finishes.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"tasks":{"type":"array","items":{"type":"string"},"description":"List of subtasks to execute. One clone is spawned per task."}},"required":["tasks"]}`),
		},
		{
			Name:        "post_groupchat",
			Description: "Post a short message to the shared Agent Group Chat for collaboration.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"message":{"type":"string","description":"The message to broadcast to other agents."}},"required":["message"]}`),
		},
	}
}

func (d *DelegateTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	switch name {
	case "delegate":
		return d.delegate(ctx, args)
	case "post_groupchat":
		var params struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return ToolResult{Content: d.postGroupChat(ctx, params.Message)}, nil
	}
	return ToolResult{Error: "unknown tool: " + name}, nil
}

func (d *DelegateTool) delegate(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Tasks []string `json:"tasks"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if len(params.Tasks) == 0 {
		return ToolResult{Content: delegateError("'tasks' must be a non-empty list of strings")}, nil
	}

	depth := d.parent.cloneDepth
	if depth >= MaxCloneDepth {
		return ToolResult{Content: delegateError(fmt.Sprintf(
			"Maximum clone depth (%d) reached. Consider alternative approaches.", depth))}, nil
	}

	// One summary per delegate call, shared by every clone in the batch.
	summary := summarizeHistory(ctx, d.parent.summarizerProvider(), d.parent.historySnapshot(), d.parent.name, d.parent.logger)

	if d.parent.tracer != nil {
		var span Span
		ctx, span = d.parent.tracer.Start(ctx, "agent.delegate",
			StringAttr("agent", d.parent.name),
			IntAttr("tasks", len(params.Tasks)),
			IntAttr("depth", depth))
		defer span.End()
	}

	d.parent.logger.Info("delegating", "agent", d.parent.name, "tasks", len(params.Tasks), "depth", depth)

	results := d.fanOut(ctx, params.Tasks, summary)
	payload, err := json.Marshal(results)
	if err != nil {
		return ToolResult{Error: "encode results: " + err.Error()}, nil
	}
	return ToolResult{Content: string(payload)}, nil
}

// delegateError renders the single-object error shape delegate returns for
// rejected calls, as opposed to the per-task records array.
func delegateError(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// fanOut runs every task on its own clone and returns results in task
// order. A fixed worker pool bounds concurrency at the instance cap;
// more workers than capacity slots could never run anyway.
func (d *DelegateTool) fanOut(ctx context.Context, tasks []string, summary string) []delegateResult {
	if len(tasks) == 1 {
		return []delegateResult{d.runCloneTask(ctx, tasks[0], summary)}
	}

	type workItem struct {
		idx  int
		task string
	}
	workCh := make(chan workItem, len(tasks))
	for i, t := range tasks {
		workCh <- workItem{idx: i, task: t}
	}
	close(workCh)

	type indexedResult struct {
		idx    int
		result delegateResult
	}
	resultCh := make(chan indexedResult, len(tasks))

	numWorkers := min(len(tasks), MaxAgents)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedResult{w.idx, delegateResult{Task: w.task, Status: "error", Error: ctx.Err().Error()}}
					continue
				}
				resultCh <- indexedResult{w.idx, d.runCloneTask(ctx, w.task, summary)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Collect results, bailing out if ctx is cancelled while clones are
	// still in flight.
	results := make([]delegateResult, len(tasks))
	seen := make([]bool, len(tasks))
collect:
	for received := 0; received < len(tasks); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break collect
			}
			results[r.idx] = r.result
			seen[r.idx] = true
		case <-ctx.Done():
			for i := range results {
				if !seen[i] {
					results[i] = delegateResult{Task: tasks[i], Status: "error", Error: ctx.Err().Error()}
				}
			}
			return results
		}
	}
	for i := range results {
		if !seen[i] {
			results[i] = delegateResult{Task: tasks[i], Status: "error", Error: "result not received"}
		}
	}
	return results
}

// runCloneTask spawns one clone, runs the briefed task to completion, and
// always tears down the clone and its browsing context afterwards.
func (d *DelegateTool) runCloneTask(ctx context.Context, task, summary string) delegateResult {
	// Best-effort pre-check; agent creation enforces the cap authoritatively.
	if LiveAgents() >= MaxAgents {
		return delegateResult{Task: task, Status: "denied",
			Error: fmt.Sprintf("Delegation denied: max agents reached (%d).", MaxAgents)}
	}

	b, err := d.parent.browserHandle()
	if err != nil {
		return delegateResult{Task: task, Status: "error", Error: err.Error()}
	}

	// Clones start on about:blank; no automatic navigation.
	session, err := b.NewSession(ctx, browser.SessionConfig{})
	if err != nil {
		return delegateResult{Task: task, Status: "error", Error: err.Error()}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			d.parent.logger.Warn("closing clone session", "error", cerr)
		}
	}()

	depth := d.parent.cloneDepth + 1
	opts := []Option{
		WithBrowser(session),
		WithRoom(d.parent.room),
		WithCloneDepth(depth),
		WithSummarization(false),
		WithLogger(d.parent.logger),
	}
	if d.parent.chat != nil {
		opts = append(opts, WithChat(d.parent.chat))
	} else {
		opts = append(opts, WithChatDisabled())
	}
	if d.parent.summarizer != nil {
		opts = append(opts, WithSummarizerProvider(d.parent.summarizer))
	}
	if d.parent.tracer != nil {
		opts = append(opts, WithTracer(d.parent.tracer))
	}
	if d.parent.store != nil {
		opts = append(opts, WithStore(d.parent.store))
	}

	clone, err := New(d.parent.provider, opts...)
	if err != nil {
		var capErr *ErrCapacity
		if errors.As(err, &capErr) {
			return delegateResult{Task: task, Status: "denied",
				Error: fmt.Sprintf("Delegation denied: %v", err)}
		}
		return delegateResult{Task: task, Status: "error", Error: err.Error()}
	}
	defer func() {
		if cerr := clone.Close(); cerr != nil {
			d.parent.logger.Warn("closing clone", "clone", clone.Name(), "error", cerr)
		}
	}()

	answer, err := clone.Run(ctx, cloneBriefing(d.parent.name, depth, summary, task))
	if err != nil {
		return delegateResult{Task: task, Status: "error", Error: err.Error()}
	}
	return delegateResult{Task: task, Status: "ok", Result: answer}
}

func (d *DelegateTool) postGroupChat(ctx context.Context, message string) string {
	if d.parent.chat == nil {
		return "Error posting to group chat: chat is disabled"
	}
	if err := d.parent.chat.Post(ctx, d.parent.room, d.parent.name, message); err != nil {
		d.parent.logger.Warn("post_groupchat failed", "agent", d.parent.name, "error", err)
		return fmt.Sprintf("Error posting to group chat: %v", err)
	}
	return fmt.Sprintf("Posted to group chat (%s)", d.parent.room)
}
