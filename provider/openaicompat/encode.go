package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/nevindra/kage"
)

// buildBody assembles the wire request from engine messages. System
// messages stay inline with role "system"; the dialect has no separate
// system slot.
func buildBody(messages []kage.ChatMessage, tools []kage.ToolDefinition, model string, opts ...Option) Request {
	body := Request{
		Model:    model,
		Messages: make([]Message, 0, len(messages)),
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, encodeMessage(m))
	}
	if len(tools) > 0 {
		body.Tools = encodeTools(tools)
	}
	for _, opt := range opts {
		opt(&body)
	}
	return body
}

// encodeMessage maps one engine message onto the wire shape its role
// demands.
func encodeMessage(m kage.ChatMessage) Message {
	switch {
	case m.Role == "tool":
		return Message{Role: "tool", Content: m.Content, ToolCallID: m.ToolCallID}

	case m.Role == "assistant" && len(m.ToolCalls) > 0:
		calls := make([]ToolCallChunk, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, ToolCallChunk{
				ID:       tc.ID,
				Type:     "function",
				Function: FunctionCall{Name: tc.Name, Arguments: string(tc.Args)},
			})
		}
		msg := Message{Role: "assistant", ToolCalls: calls}
		if m.Content != "" {
			msg.Content = m.Content
		}
		return msg

	case len(m.Images) > 0:
		return Message{Role: m.Role, Content: imageBlocks(m)}

	default:
		return Message{Role: m.Role, Content: m.Content}
	}
}

// imageBlocks renders a multimodal message. Screenshots precede the text
// block so the model reads the page image before the page description.
func imageBlocks(m kage.ChatMessage) []ContentBlock {
	blocks := make([]ContentBlock, 0, len(m.Images)+1)
	for _, img := range m.Images {
		blocks = append(blocks, ContentBlock{
			Type:     "image_url",
			ImageURL: &ImageRef{URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Base64)},
		})
	}
	if m.Content != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
	}
	return blocks
}

// encodeTools declares the action vocabulary to the model. A tool with no
// parameter schema gets an empty object; the API rejects null.
func encodeTools(defs []kage.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type:     "function",
			Function: FunctionDef{Name: d.Name, Description: d.Description, Parameters: params},
		})
	}
	return out
}
