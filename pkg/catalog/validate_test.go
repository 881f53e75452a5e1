package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genui-go/genui/pkg/protocol"
)

func chartSchema() protocol.ToolSchema {
	return protocol.ToolSchema{
		Name:        "render_chart",
		Description: "Render a chart widget",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
				"kind": map[string]any{
					"type": "string",
					"enum": []string{"bar", "line", "pie"},
				},
				"points": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "number"},
				},
			},
			"required": []string{"title", "kind"},
		},
		Required: []string{"title", "kind"},
	}
}

func TestValidateInputValid(t *testing.T) {
	result, err := ValidateInput(chartSchema(), map[string]any{
		"title":  "Revenue",
		"kind":   "bar",
		"points": []any{1.5, 2.0},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateInputMissingRequired(t *testing.T) {
	result, err := ValidateInput(chartSchema(), map[string]any{"title": "Revenue"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateInputWrongType(t *testing.T) {
	result, err := ValidateInput(chartSchema(), map[string]any{
		"title": "Revenue",
		"kind":  "bar",
		// int values are normalized before validation, strings in a number
		// array are a genuine violation.
		"points": []any{"not-a-number"},
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateInputEnumViolation(t *testing.T) {
	result, err := ValidateInput(chartSchema(), map[string]any{
		"title": "Revenue",
		"kind":  "scatter",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateInputNilSchema(t *testing.T) {
	result, err := ValidateInput(protocol.ToolSchema{Name: "free"}, map[string]any{"anything": true})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateInputIntNormalization(t *testing.T) {
	schema := protocol.ToolSchema{
		Name: "counter",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"count": map[string]any{"type": "integer"},
			},
			"required": []string{"count"},
		},
	}
	result, err := ValidateInput(schema, map[string]any{"count": 3})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
