// Package convert translates between the application's chat/surface model
// and the wire shapes the model endpoint understands.
package convert

import (
	"strings"
)

// Role is a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleInternal marks bookkeeping messages that never reach the wire.
	RoleInternal Role = "internal"
)

// ToolCall is a tool invocation recorded on an assistant message.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers a prior tool call.
type ToolResult struct {
	ToolUseID string
	Content   any
}

// Image is an inline base64 attachment.
type Image struct {
	MediaType string
	Data      string
}

// Message is one application chat history entry.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Images      []Image
}

// ToWire converts application history into wire messages. Text-only
// user/assistant messages keep a plain string content; anything carrying
// tool calls, tool results or images becomes a content-block list. System
// and internal messages are skipped; pull system text out first with
// ExtractSystemContext.
func ToWire(messages []Message) []map[string]any {
	wire := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem || msg.Role == RoleInternal {
			continue
		}
		wire = append(wire, toWireMessage(msg))
	}
	return wire
}

func toWireMessage(msg Message) map[string]any {
	// Tool results ride on a user-role message regardless of who recorded
	// them.
	if len(msg.ToolResults) > 0 {
		blocks := make([]map[string]any, 0, len(msg.ToolResults)+1)
		if msg.Content != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
		}
		for _, tr := range msg.ToolResults {
			blocks = append(blocks, map[string]any{
				"type":        "tool_result",
				"tool_use_id": tr.ToolUseID,
				"content":     tr.Content,
			})
		}
		return map[string]any{"role": "user", "content": blocks}
	}

	if len(msg.ToolCalls) == 0 && len(msg.Images) == 0 {
		return map[string]any{"role": string(msg.Role), "content": msg.Content}
	}

	blocks := make([]map[string]any, 0, 1+len(msg.ToolCalls)+len(msg.Images))
	if msg.Content != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
	}
	for _, img := range msg.Images {
		blocks = append(blocks, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": img.MediaType,
				"data":       img.Data,
			},
		})
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, map[string]any{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Name,
			"input": tc.Input,
		})
	}
	return map[string]any{"role": string(msg.Role), "content": blocks}
}

// ExtractSystemContext joins the system messages into one instruction string
// and returns the history without them.
func ExtractSystemContext(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// Prune keeps the most recent maxMessages entries, then advances the start
// until the kept slice begins with a user message so tool-use pairs stay
// intact. maxMessages <= 0 keeps everything.
func Prune(messages []Message, maxMessages int) []Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		return messages
	}

	start := len(messages) - maxMessages
	for start < len(messages) && messages[start].Role != RoleUser {
		start++
	}
	return messages[start:]
}
