package streaming

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/genui-go/genui/pkg/protocol"
)

// Framing event types recognized by the parser. Anything else is forwarded
// untouched as a RawDelta.
const (
	eventContentBlockStart = "content_block_start"
	eventContentBlockDelta = "content_block_delta"
	eventContentBlockStop  = "content_block_stop"
	eventMessageStop       = "message_stop"
	eventError             = "error"
)

// ToolUseFunc is called when a completed tool_use block is not one of the
// four control tools. The dispatcher uses it to route search tools to the
// interceptor; unhandled names are ignored.
type ToolUseFunc func(id, name string, input map[string]any)

// Parser incrementally reconstructs per-block tool JSON from framing events
// and emits typed stream events. State is scoped to a single model reply;
// create a new Parser per request.
type Parser struct {
	toolNames   map[int]string
	toolIDs     map[int]string
	toolBuffers map[int]*strings.Builder
	thinking    map[int]struct{}

	onToolUse ToolUseFunc
	logger    *slog.Logger

	result protocol.ParseResult
}

// Option configures a Parser.
type Option func(*Parser)

// WithToolUseFunc registers the non-control tool_use callback.
func WithToolUseFunc(fn ToolUseFunc) Option {
	return func(p *Parser) { p.onToolUse = fn }
}

// WithLogger sets the parser logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a parser for one model reply.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		toolNames:   make(map[int]string),
		toolIDs:     make(map[int]string),
		toolBuffers: make(map[int]*strings.Builder),
		thinking:    make(map[int]struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed consumes one framing event and returns the stream events it produced,
// in order. Feeding the same recorded framing sequence always yields the
// same widget messages regardless of how deltas were chunked.
func (p *Parser) Feed(event map[string]any) []protocol.StreamEvent {
	eventType, _ := event["type"].(string)

	switch eventType {
	case eventContentBlockStart:
		p.handleBlockStart(event)
		return nil
	case eventContentBlockDelta:
		return p.handleBlockDelta(event)
	case eventContentBlockStop:
		return p.handleBlockStop(event)
	case eventMessageStop:
		return []protocol.StreamEvent{protocol.Complete{}}
	case eventError:
		return []protocol.StreamEvent{p.handleError(event)}
	default:
		return []protocol.StreamEvent{protocol.RawDelta{Raw: event}}
	}
}

// Result returns everything accumulated so far: widget messages, text and
// whether any tool_use block completed.
func (p *Parser) Result() protocol.ParseResult {
	return p.result
}

func (p *Parser) handleBlockStart(event map[string]any) {
	index, ok := eventIndex(event)
	if !ok {
		return
	}
	block, _ := event["content_block"].(map[string]any)
	blockType, _ := block["type"].(string)

	switch blockType {
	case "tool_use":
		name, _ := block["name"].(string)
		id, _ := block["id"].(string)
		// A duplicate start for the same index resets the block:
		// last-write-wins on the name, fresh buffer.
		p.toolNames[index] = name
		p.toolIDs[index] = id
		p.toolBuffers[index] = &strings.Builder{}
	case "thinking":
		p.thinking[index] = struct{}{}
	}
}

func (p *Parser) handleBlockDelta(event map[string]any) []protocol.StreamEvent {
	index, _ := eventIndex(event)
	delta, _ := event["delta"].(map[string]any)
	deltaType, _ := delta["type"].(string)

	raw := protocol.RawDelta{Raw: delta}

	switch deltaType {
	case "text_delta":
		text, _ := delta["text"].(string)
		p.result.Text += text
		return []protocol.StreamEvent{protocol.TextDelta{Text: text}, raw}
	case "input_json_delta":
		if buf, ok := p.toolBuffers[index]; ok {
			partial, _ := delta["partial_json"].(string)
			buf.WriteString(partial)
		}
		return []protocol.StreamEvent{raw}
	case "thinking_delta":
		content, _ := delta["thinking"].(string)
		return []protocol.StreamEvent{protocol.Thinking{Content: content}, raw}
	default:
		return []protocol.StreamEvent{raw}
	}
}

func (p *Parser) handleBlockStop(event map[string]any) []protocol.StreamEvent {
	index, ok := eventIndex(event)
	if !ok {
		return nil
	}

	var events []protocol.StreamEvent

	if _, isThinking := p.thinking[index]; isThinking {
		delete(p.thinking, index)
		events = append(events, protocol.Thinking{IsComplete: true})
	}

	name, isTool := p.toolNames[index]
	if !isTool {
		return events
	}
	buf := p.toolBuffers[index]
	id := p.toolIDs[index]
	delete(p.toolNames, index)
	delete(p.toolIDs, index)
	delete(p.toolBuffers, index)

	if buf == nil || buf.Len() == 0 {
		return events
	}
	payload := buf.String()

	if protocol.IsControlTool(name) {
		msg, err := protocol.UnmarshalWidgetMessage(name, []byte(payload))
		if err != nil {
			// A malformed block never aborts the stream; drop the buffer
			// and keep going.
			p.logger.Warn("discarding malformed tool input",
				"tool", name,
				"block", index,
				"error", err)
			return events
		}
		p.result.Messages = append(p.result.Messages, msg)
		p.result.HasToolUse = true
		return append(events, protocol.WidgetMessageEvent{Message: msg})
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(payload), &input); err != nil {
		p.logger.Warn("discarding malformed tool input",
			"tool", name,
			"block", index,
			"error", err)
		return events
	}
	p.result.HasToolUse = true
	if p.onToolUse != nil {
		p.onToolUse(id, name, input)
	}
	return events
}

func (p *Parser) handleError(event map[string]any) protocol.StreamEvent {
	body, _ := event["error"].(map[string]any)
	errType, _ := body["type"].(string)
	message, _ := body["message"].(string)
	if message == "" {
		message = "stream error"
	}

	kind := protocol.ErrorKindStream
	retryable := false
	switch errType {
	case "overloaded_error", "api_error":
		kind = protocol.ErrorKindServer
		retryable = true
	case "rate_limit_error":
		kind = protocol.ErrorKindRateLimit
		retryable = true
	case "timeout_error":
		kind = protocol.ErrorKindTimeout
		retryable = true
	case "authentication_error", "permission_error":
		kind = protocol.ErrorKindAuthentication
	case "invalid_request_error":
		kind = protocol.ErrorKindValidation
	}

	return protocol.ErrorEvent{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
	}
}

// eventIndex extracts the content block index, tolerating both JSON float64
// and native int values.
func eventIndex(event map[string]any) (int, bool) {
	switch v := event["index"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
