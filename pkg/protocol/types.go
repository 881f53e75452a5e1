package protocol

// RefType is the reserved widget type used for children declared as string
// references to previously rendered nodes. A ref node carries only an ID and
// is resolved at render time by the UI layer.
const RefType = "_ref"

// ToolSchema describes a single tool exposed to the model: the four control
// tools, the two catalog search tools, or an embedder-supplied widget tool.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Required    []string       `json:"required,omitempty"`
}

// BindingMode selects how a bound property tracks its data-model path.
type BindingMode string

const (
	BindingModeOneWay BindingMode = "oneWay"
	BindingModeTwoWay BindingMode = "twoWay"
)

// PropertyBinding binds one widget property to a data-model path.
type PropertyBinding struct {
	Path string      `json:"path"`
	Mode BindingMode `json:"mode,omitempty"`
}

// DataBinding is either a single path applied to the whole node (Path set,
// Bindings nil) or a per-property map (Bindings set). The wire form is a bare
// string for the former and an object for the latter.
type DataBinding struct {
	Path     string
	Bindings map[string]PropertyBinding
}

// WidgetNode is one node of a widget tree emitted through surface_update.
// Children are owned exclusively by their parent; a child may instead be a
// reference to an earlier node, modeled as a node of RefType.
type WidgetNode struct {
	Type        string         `json:"type"`
	ID          string         `json:"id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Children    []WidgetNode   `json:"children,omitempty"`
	DataBinding *DataBinding   `json:"dataBinding,omitempty"`
}

// IsRef reports whether the node is a reference placeholder.
func (n WidgetNode) IsRef() bool {
	return n.Type == RefType
}
