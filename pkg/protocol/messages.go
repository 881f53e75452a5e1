package protocol

import (
	"encoding/json"
	"fmt"
)

// Control tool names. The model mutates UI surfaces exclusively by invoking
// these four tools.
const (
	ToolBeginRendering  = "begin_rendering"
	ToolSurfaceUpdate   = "surface_update"
	ToolDataModelUpdate = "data_model_update"
	ToolDeleteSurface   = "delete_surface"
)

// DefaultRootID is the root widget id assumed when begin_rendering omits one.
const DefaultRootID = "root"

// GlobalScope is the data-model scope used when data_model_update carries no
// explicit scope.
const GlobalScope = "__global__"

// MessageKind discriminates WidgetMessage variants.
type MessageKind string

const (
	KindBeginRendering  MessageKind = "beginRendering"
	KindSurfaceUpdate   MessageKind = "surfaceUpdate"
	KindDataModelUpdate MessageKind = "dataModelUpdate"
	KindDeleteSurface   MessageKind = "deleteSurface"
)

// WidgetMessage is one surface mutation decoded from a control tool call.
// Exactly four variants implement it.
type WidgetMessage interface {
	Kind() MessageKind
	// SurfaceID returns the target surface, or "" for data-model updates.
	SurfaceID() string
}

// BeginRendering announces that the model is about to stream widgets into a
// surface.
type BeginRendering struct {
	Surface       string         `json:"surfaceId"`
	ParentSurface string         `json:"parentSurfaceId,omitempty"`
	Root          string         `json:"root,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (m BeginRendering) Kind() MessageKind { return KindBeginRendering }
func (m BeginRendering) SurfaceID() string { return m.Surface }

// SurfaceUpdate replaces or appends to the widget tree of a surface.
type SurfaceUpdate struct {
	Surface string       `json:"surfaceId"`
	Widgets []WidgetNode `json:"widgets"`
	Append  bool         `json:"append,omitempty"`
}

func (m SurfaceUpdate) Kind() MessageKind { return KindSurfaceUpdate }
func (m SurfaceUpdate) SurfaceID() string { return m.Surface }

// DataModelUpdate patches the shared data model widgets bind against.
type DataModelUpdate struct {
	Updates map[string]any `json:"updates"`
	Scope   string         `json:"scope,omitempty"`
}

func (m DataModelUpdate) Kind() MessageKind { return KindDataModelUpdate }
func (m DataModelUpdate) SurfaceID() string { return "" }

// DeleteSurface removes a surface and, when Cascade is set, its children.
type DeleteSurface struct {
	Surface string `json:"surfaceId"`
	Cascade bool   `json:"cascade"`
}

func (m DeleteSurface) Kind() MessageKind { return KindDeleteSurface }
func (m DeleteSurface) SurfaceID() string { return m.Surface }

// IsControlTool reports whether name is one of the four control tools.
func IsControlTool(name string) bool {
	switch name {
	case ToolBeginRendering, ToolSurfaceUpdate, ToolDataModelUpdate, ToolDeleteSurface:
		return true
	}
	return false
}

// UnmarshalWidgetMessage decodes a complete control tool input into the
// variant matching the tool name, applying wire defaults (root id, cascade).
func UnmarshalWidgetMessage(toolName string, input []byte) (WidgetMessage, error) {
	switch toolName {
	case ToolBeginRendering:
		var m BeginRendering
		if err := json.Unmarshal(input, &m); err != nil {
			return nil, fmt.Errorf("begin_rendering: %w", err)
		}
		if m.Surface == "" {
			return nil, fmt.Errorf("begin_rendering: missing surfaceId")
		}
		if m.Root == "" {
			m.Root = DefaultRootID
		}
		return m, nil

	case ToolSurfaceUpdate:
		var m SurfaceUpdate
		if err := json.Unmarshal(input, &m); err != nil {
			return nil, fmt.Errorf("surface_update: %w", err)
		}
		if m.Surface == "" {
			return nil, fmt.Errorf("surface_update: missing surfaceId")
		}
		if m.Widgets == nil {
			m.Widgets = []WidgetNode{}
		}
		return m, nil

	case ToolDataModelUpdate:
		var m DataModelUpdate
		if err := json.Unmarshal(input, &m); err != nil {
			return nil, fmt.Errorf("data_model_update: %w", err)
		}
		if m.Updates == nil {
			return nil, fmt.Errorf("data_model_update: missing updates")
		}
		return m, nil

	case ToolDeleteSurface:
		wire := struct {
			Surface string `json:"surfaceId"`
			Cascade *bool  `json:"cascade"`
		}{}
		if err := json.Unmarshal(input, &wire); err != nil {
			return nil, fmt.Errorf("delete_surface: %w", err)
		}
		if wire.Surface == "" {
			return nil, fmt.Errorf("delete_surface: missing surfaceId")
		}
		m := DeleteSurface{Surface: wire.Surface, Cascade: true}
		if wire.Cascade != nil {
			m.Cascade = *wire.Cascade
		}
		return m, nil
	}

	return nil, fmt.Errorf("unknown control tool %q", toolName)
}

// ParseResult aggregates everything decoded from one model reply.
type ParseResult struct {
	Messages   []WidgetMessage
	Text       string
	HasToolUse bool
}

// IsEmpty reports whether the result carries neither widgets nor text.
func (r ParseResult) IsEmpty() bool {
	return len(r.Messages) == 0 && r.Text == ""
}
