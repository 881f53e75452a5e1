package protocol

import (
	"encoding/json"
	"fmt"
)

// widgetNodeWire mirrors WidgetNode with children kept raw so that string
// references and nested objects can share the same array.
type widgetNodeWire struct {
	Type        string            `json:"type"`
	ID          string            `json:"id,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
	Children    []json.RawMessage `json:"children,omitempty"`
	DataBinding json.RawMessage   `json:"dataBinding,omitempty"`
}

// UnmarshalJSON accepts children elements that are either widget objects or
// bare strings. A string child decodes to {type: "_ref", id: <string>};
// anything else is a format error.
func (n *WidgetNode) UnmarshalJSON(data []byte) error {
	var wire widgetNodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Type == "" {
		return fmt.Errorf("widget node: missing type")
	}

	node := WidgetNode{
		Type:       wire.Type,
		ID:         wire.ID,
		Properties: wire.Properties,
	}

	for i, raw := range wire.Children {
		child, err := decodeChild(raw)
		if err != nil {
			return fmt.Errorf("widget node %q: child %d: %w", wire.Type, i, err)
		}
		node.Children = append(node.Children, child)
	}

	if len(wire.DataBinding) > 0 {
		db, err := decodeDataBinding(wire.DataBinding)
		if err != nil {
			return fmt.Errorf("widget node %q: %w", wire.Type, err)
		}
		node.DataBinding = db
	}

	*n = node
	return nil
}

func decodeChild(raw json.RawMessage) (WidgetNode, error) {
	trimmed := firstNonSpace(raw)
	switch trimmed {
	case '"':
		var ref string
		if err := json.Unmarshal(raw, &ref); err != nil {
			return WidgetNode{}, err
		}
		return WidgetNode{Type: RefType, ID: ref}, nil
	case '{':
		var child WidgetNode
		if err := json.Unmarshal(raw, &child); err != nil {
			return WidgetNode{}, err
		}
		return child, nil
	default:
		return WidgetNode{}, fmt.Errorf("expected object or string reference, got %s", raw)
	}
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// MarshalJSON writes ref children back as bare strings so that a decode and
// re-encode of a surface_update payload is stable.
func (n WidgetNode) MarshalJSON() ([]byte, error) {
	wire := widgetNodeWire{
		Type:       n.Type,
		ID:         n.ID,
		Properties: n.Properties,
	}

	for _, child := range n.Children {
		var (
			raw []byte
			err error
		)
		if child.IsRef() {
			raw, err = json.Marshal(child.ID)
		} else {
			raw, err = json.Marshal(child)
		}
		if err != nil {
			return nil, err
		}
		wire.Children = append(wire.Children, raw)
	}

	if n.DataBinding != nil {
		raw, err := n.DataBinding.MarshalJSON()
		if err != nil {
			return nil, err
		}
		wire.DataBinding = raw
	}

	return json.Marshal(wire)
}

func decodeDataBinding(raw json.RawMessage) (*DataBinding, error) {
	switch firstNonSpace(raw) {
	case '"':
		var path string
		if err := json.Unmarshal(raw, &path); err != nil {
			return nil, err
		}
		return &DataBinding{Path: path}, nil
	case '{':
		bindings := make(map[string]PropertyBinding)
		if err := json.Unmarshal(raw, &bindings); err != nil {
			return nil, err
		}
		return &DataBinding{Bindings: bindings}, nil
	default:
		return nil, fmt.Errorf("dataBinding: expected string or object, got %s", raw)
	}
}

// MarshalJSON emits the path form when no per-property bindings are present.
func (b DataBinding) MarshalJSON() ([]byte, error) {
	if b.Bindings != nil {
		return json.Marshal(b.Bindings)
	}
	return json.Marshal(b.Path)
}

// UnmarshalJSON accepts both the bare path and the per-property object form.
func (b *DataBinding) UnmarshalJSON(data []byte) error {
	db, err := decodeDataBinding(data)
	if err != nil {
		return err
	}
	*b = *db
	return nil
}
