package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genui-go/genui/pkg/protocol"
)

func TestToWireTextOnly(t *testing.T) {
	wire := ToWire([]Message{
		{Role: RoleUser, Content: "show me sales"},
		{Role: RoleAssistant, Content: "here you go"},
	})

	require.Len(t, wire, 2)
	assert.Equal(t, "user", wire[0]["role"])
	assert.Equal(t, "show me sales", wire[0]["content"])
	assert.Equal(t, "assistant", wire[1]["role"])
	assert.Equal(t, "here you go", wire[1]["content"])
}

func TestToWireSkipsSystemAndInternal(t *testing.T) {
	wire := ToWire([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleInternal, Content: "bookkeeping"},
		{Role: RoleUser, Content: "hi"},
	})
	require.Len(t, wire, 1)
	assert.Equal(t, "user", wire[0]["role"])
}

func TestToWireToolCalls(t *testing.T) {
	wire := ToWire([]Message{{
		Role:    RoleAssistant,
		Content: "rendering now",
		ToolCalls: []ToolCall{{
			ID:    "toolu_01",
			Name:  "begin_rendering",
			Input: map[string]any{"surfaceId": "main"},
		}},
	}})

	require.Len(t, wire, 1)
	blocks := wire[0]["content"].([]map[string]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "text", blocks[0]["type"])
	assert.Equal(t, "tool_use", blocks[1]["type"])
	assert.Equal(t, "toolu_01", blocks[1]["id"])
	assert.Equal(t, "begin_rendering", blocks[1]["name"])
}

func TestToWireToolResultsBecomeUserRole(t *testing.T) {
	wire := ToWire([]Message{{
		Role: RoleAssistant,
		ToolResults: []ToolResult{{
			ToolUseID: "toolu_01",
			Content:   `{"loaded":["date_picker"]}`,
		}},
	}})

	require.Len(t, wire, 1)
	assert.Equal(t, "user", wire[0]["role"])
	blocks := wire[0]["content"].([]map[string]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "tool_result", blocks[0]["type"])
	assert.Equal(t, "toolu_01", blocks[0]["tool_use_id"])
}

func TestToWireImages(t *testing.T) {
	wire := ToWire([]Message{{
		Role:   RoleUser,
		Images: []Image{{MediaType: "image/png", Data: "aGk="}},
	}})

	blocks := wire[0]["content"].([]map[string]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "image", blocks[0]["type"])
	source := blocks[0]["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/png", source["media_type"])
}

func TestExtractSystemContext(t *testing.T) {
	system, rest := ExtractSystemContext([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "use widgets"},
	})
	assert.Equal(t, "be terse\n\nuse widgets", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)
}

func TestPrune(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "1"},
		{Role: RoleAssistant, Content: "2"},
		{Role: RoleUser, Content: "3"},
		{Role: RoleAssistant, Content: "4"},
		{Role: RoleUser, Content: "5"},
		{Role: RoleAssistant, Content: "6"},
	}

	assert.Len(t, Prune(history, 0), 6)
	assert.Len(t, Prune(history, 10), 6)

	// A suffix of 3 would start on an assistant turn; pruning advances to
	// the next user message.
	pruned := Prune(history, 3)
	require.Len(t, pruned, 2)
	assert.Equal(t, "5", pruned[0].Content)

	pruned = Prune(history, 4)
	require.Len(t, pruned, 4)
	assert.Equal(t, "3", pruned[0].Content)
}

func TestFromWidgetMessageBeginRendering(t *testing.T) {
	sm := FromWidgetMessage(protocol.BeginRendering{
		Surface: "main",
		Root:    "root",
	})
	assert.Equal(t, protocol.KindBeginRendering, sm.Kind)
	assert.Equal(t, "main", sm.SurfaceID)
	assert.Equal(t, "root", sm.Root)
}

func TestFromWidgetMessageSurfaceUpdate(t *testing.T) {
	sm := FromWidgetMessage(protocol.SurfaceUpdate{
		Surface: "main",
		Append:  true,
		Widgets: []protocol.WidgetNode{{
			Type:       "card",
			ID:         "c1",
			Properties: map[string]any{"title": "Q3"},
			Children: []protocol.WidgetNode{
				{Type: "text", Properties: map[string]any{"value": "hello"}},
				{Type: protocol.RefType, ID: "existing"},
			},
		}},
	})

	assert.Equal(t, protocol.KindSurfaceUpdate, sm.Kind)
	assert.True(t, sm.Append)
	require.Len(t, sm.Components, 1)

	card := sm.Components[0]
	assert.Equal(t, "c1", card.ID)
	assert.Equal(t, map[string]any{"title": "Q3"}, card.Properties["card"])
	require.Len(t, card.Children, 2)

	// Anonymous nodes get generated ids.
	assert.NotEmpty(t, card.Children[0].ID)
	assert.Equal(t, "existing", card.Children[1].ID)
	assert.Contains(t, card.Children[1].Properties, protocol.RefType)
}

func TestFromWidgetMessageDataModelUpdateScope(t *testing.T) {
	sm := FromWidgetMessage(protocol.DataModelUpdate{
		Updates: map[string]any{"count": 1},
	})
	assert.Equal(t, protocol.GlobalScope, sm.Scope)

	sm = FromWidgetMessage(protocol.DataModelUpdate{
		Updates: map[string]any{"count": 1},
		Scope:   "cart",
	})
	assert.Equal(t, "cart", sm.Scope)
}

func TestFromWidgetMessageDeleteSurface(t *testing.T) {
	sm := FromWidgetMessage(protocol.DeleteSurface{Surface: "modal", Cascade: true})
	assert.Equal(t, protocol.KindDeleteSurface, sm.Kind)
	assert.Equal(t, "modal", sm.SurfaceID)
	assert.True(t, sm.Cascade)
}
