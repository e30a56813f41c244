package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/nevindra/kage"
)

// SSE frames can carry whole base64 screenshots echoed in error payloads;
// bufio's default 64 KiB line limit is not enough.
const streamBufSize = 1 << 20

// decodeResponse lifts the first choice of a wire response into engine
// terms.
func decodeResponse(resp Response) kage.ChatResponse {
	var out kage.ChatResponse
	if resp.Usage != nil {
		out.Usage = kage.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		out.ToolCalls = decodeCalls(msg.ToolCalls)
	}
	return out
}

// decodeCalls converts wire tool calls. Arguments arrive as a JSON string;
// anything unparseable becomes an empty object so dispatch still reaches
// the tool, which reports the missing fields back to the model.
func decodeCalls(chunks []ToolCallChunk) []kage.ToolCall {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]kage.ToolCall, 0, len(chunks))
	for _, c := range chunks {
		args := json.RawMessage(c.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, kage.ToolCall{ID: c.ID, Name: c.Function.Name, Args: args})
	}
	return out
}

// callBuilder accumulates one streamed tool call across frames.
type callBuilder struct {
	id   string
	name string
	args strings.Builder
}

// readStream consumes the SSE body, forwarding text deltas to ch and
// reassembling tool calls and usage into the returned response.
//
// ch is never closed here; the caller owns its lifecycle. A cancelled ctx
// aborts a blocked send and returns ctx.Err().
//
// Frame format:
//
//	data: {"choices":[{"delta":{...}}]}
//	data: [DONE]
func readStream(ctx context.Context, r io.Reader, ch chan<- kage.StreamEvent) (kage.ChatResponse, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, streamBufSize), streamBufSize)

	var (
		text    strings.Builder
		usage   kage.Usage
		pending []callBuilder
	)

	for sc.Scan() {
		payload, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			// Comments, event names, retry directives.
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var frame Response
		if json.Unmarshal([]byte(payload), &frame) != nil {
			// Tolerate malformed frames; providers differ in their noise.
			continue
		}

		// Usage may ride on the last delta or on a choiceless trailer
		// frame. Last one wins either way.
		if frame.Usage != nil {
			usage = kage.Usage{
				InputTokens:  frame.Usage.PromptTokens,
				OutputTokens: frame.Usage.CompletionTokens,
			}
		}
		if len(frame.Choices) == 0 {
			continue
		}
		delta := frame.Choices[0].Delta
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			text.WriteString(delta.Content)
			select {
			case ch <- kage.StreamEvent{Type: kage.EventText, Content: delta.Content}:
			case <-ctx.Done():
				return kage.ChatResponse{}, ctx.Err()
			}
		}

		for _, c := range delta.ToolCalls {
			for len(pending) <= c.Index {
				pending = append(pending, callBuilder{})
			}
			b := &pending[c.Index]
			if c.ID != "" {
				b.id = c.ID
			}
			if c.Function.Name != "" {
				b.name = c.Function.Name
			}
			b.args.WriteString(c.Function.Arguments)
		}
	}
	if err := sc.Err(); err != nil {
		return kage.ChatResponse{}, err
	}

	return kage.ChatResponse{
		Content:   text.String(),
		ToolCalls: finishCalls(pending),
		Usage:     usage,
	}, nil
}

// finishCalls seals the accumulated builders into engine tool calls.
func finishCalls(pending []callBuilder) []kage.ToolCall {
	var calls []kage.ToolCall
	for i := range pending {
		args := json.RawMessage(pending[i].args.String())
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, kage.ToolCall{
			ID:   pending[i].id,
			Name: pending[i].name,
			Args: args,
		})
	}
	return calls
}
