package client

import (
	"context"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/genui-go/genui/pkg/config"
	"github.com/genui-go/genui/pkg/convert"
	"github.com/genui-go/genui/pkg/protocol"
)

// directTransport reaches the model endpoint with the native SDK and maps
// its typed stream events back into the framing maps the parser consumes.
type directTransport struct {
	client sdk.Client
}

func newDirectTransport(cfg *config.Config) *directTransport {
	return &directTransport{
		client: sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (t *directTransport) open(ctx context.Context, req *ApiRequest) (frameSource, error) {
	params, err := encodeParams(req)
	if err != nil {
		return nil, err
	}
	stream := t.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return &directSource{stream: stream}, nil
}

func encodeParams(req *ApiRequest) (sdk.MessageNewParams, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}

	for _, msg := range req.Messages {
		encoded, ok := encodeMessage(msg)
		if ok {
			params.Messages = append(params.Messages, encoded)
		}
	}

	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, encodeTool(tool))
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}
	if req.TopK != nil {
		params.TopK = sdk.Int(int64(*req.TopK))
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	return params, nil
}

func encodeMessage(msg convert.Message) (sdk.MessageParam, bool) {
	if msg.Role == convert.RoleSystem || msg.Role == convert.RoleInternal {
		return sdk.MessageParam{}, false
	}

	var blocks []sdk.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, sdk.NewTextBlock(msg.Content))
	}
	for _, img := range msg.Images {
		blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, img.Data))
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
	}
	for _, tr := range msg.ToolResults {
		content, _ := tr.Content.(string)
		blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolUseID, content, false))
	}
	if len(blocks) == 0 {
		return sdk.MessageParam{}, false
	}

	// Tool results always travel on a user turn.
	if msg.Role == convert.RoleUser || len(msg.ToolResults) > 0 {
		return sdk.NewUserMessage(blocks...), true
	}
	return sdk.NewAssistantMessage(blocks...), true
}

func encodeTool(tool protocol.ToolSchema) sdk.ToolUnionParam {
	u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
		ExtraFields: tool.InputSchema,
	}, tool.Name)
	if u.OfTool != nil && tool.Description != "" {
		u.OfTool.Description = sdk.String(tool.Description)
	}
	return u
}

type directSource struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *directSource) Next() (map[string]any, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return eventToFrame(s.stream.Current()), nil
}

func (s *directSource) Close() error {
	return s.stream.Close()
}

// eventToFrame lowers a typed SDK event into the wire-shaped framing map.
func eventToFrame(event sdk.MessageStreamEventUnion) map[string]any {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		return map[string]any{"type": "message_start"}

	case sdk.ContentBlockStartEvent:
		block := map[string]any{}
		switch b := ev.ContentBlock.AsAny().(type) {
		case sdk.ToolUseBlock:
			block["type"] = "tool_use"
			block["id"] = b.ID
			block["name"] = b.Name
		case sdk.ThinkingBlock:
			block["type"] = "thinking"
		case sdk.TextBlock:
			block["type"] = "text"
		default:
			block["type"] = ev.ContentBlock.Type
		}
		return map[string]any{
			"type":          "content_block_start",
			"index":         int(ev.Index),
			"content_block": block,
		}

	case sdk.ContentBlockDeltaEvent:
		delta := map[string]any{}
		switch d := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			delta["type"] = "text_delta"
			delta["text"] = d.Text
		case sdk.InputJSONDelta:
			delta["type"] = "input_json_delta"
			delta["partial_json"] = d.PartialJSON
		case sdk.ThinkingDelta:
			delta["type"] = "thinking_delta"
			delta["thinking"] = d.Thinking
		default:
			delta["type"] = ev.Delta.Type
		}
		return map[string]any{
			"type":  "content_block_delta",
			"index": int(ev.Index),
			"delta": delta,
		}

	case sdk.ContentBlockStopEvent:
		return map[string]any{
			"type":  "content_block_stop",
			"index": int(ev.Index),
		}

	case sdk.MessageDeltaEvent:
		return map[string]any{"type": "message_delta"}

	case sdk.MessageStopEvent:
		return map[string]any{"type": "message_stop"}
	}

	return map[string]any{"type": event.Type}
}
