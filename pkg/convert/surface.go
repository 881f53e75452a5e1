package convert

import (
	"github.com/google/uuid"

	"github.com/genui-go/genui/pkg/protocol"
)

// Component is the application-side rendering unit for one widget node. Its
// Properties map is keyed by the widget type so renderers can dispatch on
// the single key.
type Component struct {
	ID          string
	Properties  map[string]any
	Children    []Component
	DataBinding *protocol.DataBinding
}

// SurfaceMessage is the application-side view of one widget message.
type SurfaceMessage struct {
	Kind          protocol.MessageKind
	SurfaceID     string
	ParentSurface string
	Root          string
	Metadata      map[string]any
	Components    []Component
	Append        bool
	Updates       map[string]any
	Scope         string
	Cascade       bool
}

// FromWidgetMessage converts a decoded widget message into its surface
// representation. Data-model updates without a scope land in the reserved
// global scope.
func FromWidgetMessage(msg protocol.WidgetMessage) SurfaceMessage {
	switch m := msg.(type) {
	case protocol.BeginRendering:
		return SurfaceMessage{
			Kind:          m.Kind(),
			SurfaceID:     m.Surface,
			ParentSurface: m.ParentSurface,
			Root:          m.Root,
			Metadata:      m.Metadata,
		}
	case protocol.SurfaceUpdate:
		components := make([]Component, 0, len(m.Widgets))
		for _, node := range m.Widgets {
			components = append(components, ComponentFromNode(node))
		}
		return SurfaceMessage{
			Kind:       m.Kind(),
			SurfaceID:  m.Surface,
			Components: components,
			Append:     m.Append,
		}
	case protocol.DataModelUpdate:
		scope := m.Scope
		if scope == "" {
			scope = protocol.GlobalScope
		}
		return SurfaceMessage{
			Kind:    m.Kind(),
			Updates: m.Updates,
			Scope:   scope,
		}
	case protocol.DeleteSurface:
		return SurfaceMessage{
			Kind:      m.Kind(),
			SurfaceID: m.Surface,
			Cascade:   m.Cascade,
		}
	}
	return SurfaceMessage{}
}

// ComponentFromNode converts one widget node. Nodes without an id get a
// fresh opaque one so renderers can track identity across updates.
func ComponentFromNode(node protocol.WidgetNode) Component {
	id := node.ID
	if id == "" {
		id = uuid.NewString()
	}

	c := Component{
		ID:          id,
		Properties:  map[string]any{node.Type: node.Properties},
		DataBinding: node.DataBinding,
	}
	for _, child := range node.Children {
		c.Children = append(c.Children, ComponentFromNode(child))
	}
	return c
}
