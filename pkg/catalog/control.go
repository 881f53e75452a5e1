package catalog

import (
	"github.com/genui-go/genui/pkg/protocol"
)

// widgetSchema is the shape of one element of surface_update.widgets.
// Children accept nested widget objects or string id references; the union is
// written out literally because JSON schema anyOf has no struct-tag form.
func widgetSchema() map[string]any {
	widget := map[string]any{
		"type":        "object",
		"description": "A widget node in the surface tree",
		"properties": map[string]any{
			"type": map[string]any{
				"type":        "string",
				"description": "Widget kind identifier",
			},
			"id": map[string]any{
				"type":        "string",
				"description": "Stable instance id, referenced by later updates",
			},
			"properties": map[string]any{
				"type":        "object",
				"description": "Widget properties",
			},
			"children": map[string]any{
				"type":        "array",
				"description": "Child widgets, or string ids referencing previously declared widgets",
				"items": map[string]any{
					"anyOf": []any{
						map[string]any{"type": "object"},
						map[string]any{"type": "string"},
					},
				},
			},
			"dataBinding": map[string]any{
				"description": "Data model path, or a map from property name to {path, mode}",
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "object"},
				},
			},
		},
		"required": []string{"type"},
	}
	return widget
}

// ControlTools returns the four fixed tools by which the model mutates UI
// surfaces.
func ControlTools() []protocol.ToolSchema {
	return []protocol.ToolSchema{
		{
			Name:        protocol.ToolBeginRendering,
			Description: "Announce that rendering of a UI surface is about to begin. Call before the first surface_update for a new surface.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surfaceId": map[string]any{
						"type":        "string",
						"description": "Identifier of the surface about to render",
					},
					"parentSurfaceId": map[string]any{
						"type":        "string",
						"description": "Surface this one is nested under, if any",
					},
					"root": map[string]any{
						"type":        "string",
						"description": "Root widget id, defaults to \"root\"",
					},
				},
				"required": []string{"surfaceId"},
			},
			Required: []string{"surfaceId"},
		},
		{
			Name:        protocol.ToolSurfaceUpdate,
			Description: "Replace or append the widget tree of a surface.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surfaceId": map[string]any{
						"type":        "string",
						"description": "Surface to update",
					},
					"widgets": map[string]any{
						"type":        "array",
						"description": "Ordered widget trees to render",
						"items":       widgetSchema(),
					},
					"append": map[string]any{
						"type":        "boolean",
						"description": "Append to the existing tree instead of replacing it",
					},
				},
				"required": []string{"surfaceId", "widgets"},
			},
			Required: []string{"surfaceId", "widgets"},
		},
		{
			Name:        protocol.ToolDataModelUpdate,
			Description: "Patch the data model that widget bindings read from.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"updates": map[string]any{
						"type":        "object",
						"description": "Path to value updates",
					},
					"scope": map[string]any{
						"type":        "string",
						"description": "Surface scope for the updates; omit for the global scope",
					},
				},
				"required": []string{"updates"},
			},
			Required: []string{"updates"},
		},
		{
			Name:        protocol.ToolDeleteSurface,
			Description: "Remove a surface from the UI.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surfaceId": map[string]any{
						"type":        "string",
						"description": "Surface to delete",
					},
					"cascade": map[string]any{
						"type":        "boolean",
						"description": "Also delete nested surfaces, defaults to true",
					},
				},
				"required": []string{"surfaceId"},
			},
			Required: []string{"surfaceId"},
		},
	}
}
