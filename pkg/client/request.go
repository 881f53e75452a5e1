package client

import (
	"github.com/genui-go/genui/pkg/convert"
	"github.com/genui-go/genui/pkg/protocol"
	"github.com/genui-go/genui/pkg/utils"
)

// ApiRequest is the mode-independent request shape. Each transport encodes
// it into its native wire form.
type ApiRequest struct {
	Messages      []convert.Message
	MaxTokens     int
	System        string
	Tools         []protocol.ToolSchema
	Model         string
	Temperature   *float64
	TopP          *float64
	TopK          *int
	StopSequences []string
}

// proxyBody builds the JSON body for proxy mode.
func (r *ApiRequest) proxyBody() map[string]any {
	body := map[string]any{
		"messages":   convert.ToWire(r.Messages),
		"max_tokens": r.MaxTokens,
		"stream":     true,
	}
	if r.System != "" {
		body["system"] = r.System
	}
	if len(r.Tools) > 0 {
		tools := make([]map[string]any, 0, len(r.Tools))
		for _, t := range r.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.InputSchema,
			})
		}
		body["tools"] = tools
	}
	if r.Model != "" {
		body["model"] = r.Model
	}
	if r.Temperature != nil {
		body["temperature"] = *r.Temperature
	}
	if r.TopP != nil {
		body["top_p"] = *r.TopP
	}
	if r.TopK != nil {
		body["top_k"] = *r.TopK
	}
	if len(r.StopSequences) > 0 {
		body["stop_sequences"] = r.StopSequences
	}
	return body
}

// estimateTokens approximates the request's input weight for rate limiting.
// The estimate intentionally stays on the conservative side; the window
// carries it until it ages out.
func (r *ApiRequest) estimateTokens(counter *utils.TokenCounter) int {
	total := 0
	count := func(s string) int {
		if counter != nil {
			return counter.Count(s)
		}
		return utils.EstimateTokens(s)
	}

	total += count(r.System)
	for _, msg := range r.Messages {
		total += 4 // role and framing overhead
		total += count(msg.Content)
	}
	return total
}
