package protocol

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestWidgetNodeDecode_RefChildren(t *testing.T) {
	data := []byte(`{
		"type": "column",
		"id": "col1",
		"children": [
			{"type": "text", "properties": {"value": "hello"}},
			"header",
			{"type": "row", "children": ["a", "b"]}
		]
	}`)

	var node WidgetNode
	if err := json.Unmarshal(data, &node); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(node.Children) != 3 {
		t.Fatalf("children = %d, want 3", len(node.Children))
	}
	if node.Children[1].Type != RefType || node.Children[1].ID != "header" {
		t.Errorf("string child = %+v, want _ref/header", node.Children[1])
	}
	if !node.Children[1].IsRef() {
		t.Error("IsRef() = false for string child")
	}
	nested := node.Children[2]
	if len(nested.Children) != 2 || nested.Children[0].ID != "a" || nested.Children[1].ID != "b" {
		t.Errorf("nested refs = %+v", nested.Children)
	}
}

func TestWidgetNodeDecode_InvalidChild(t *testing.T) {
	cases := []string{
		`{"type": "row", "children": [42]}`,
		`{"type": "row", "children": [true]}`,
		`{"type": "row", "children": [["nope"]]}`,
	}
	for _, data := range cases {
		var node WidgetNode
		if err := json.Unmarshal([]byte(data), &node); err == nil {
			t.Errorf("Unmarshal(%s) expected error, got nil", data)
		}
	}
}

func TestWidgetNodeDecode_MissingType(t *testing.T) {
	var node WidgetNode
	if err := json.Unmarshal([]byte(`{"id": "x"}`), &node); err == nil {
		t.Error("expected error for node without type")
	}
}

func TestWidgetNodeRoundTrip(t *testing.T) {
	original := WidgetNode{
		Type: "card",
		ID:   "c1",
		Properties: map[string]any{
			"title": "Weather",
			"pad":   float64(8),
		},
		Children: []WidgetNode{
			{Type: "text", Properties: map[string]any{"value": "sunny"}},
			{Type: "chart", ID: "ch", DataBinding: &DataBinding{Path: "weather.series"}},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded WidgetNode
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestWidgetNodeMarshal_RefAsString(t *testing.T) {
	node := WidgetNode{
		Type:     "row",
		Children: []WidgetNode{{Type: RefType, ID: "prev"}},
	}
	data, err := json.Marshal(node)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	children := wire["children"].([]any)
	if children[0] != "prev" {
		t.Errorf("ref child encoded as %v, want bare string", children[0])
	}
}

func TestDataBindingForms(t *testing.T) {
	var simple DataBinding
	if err := json.Unmarshal([]byte(`"user.name"`), &simple); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if simple.Path != "user.name" || simple.Bindings != nil {
		t.Errorf("string form = %+v", simple)
	}

	var mapped DataBinding
	err := json.Unmarshal([]byte(`{"value": {"path": "user.age", "mode": "twoWay"}}`), &mapped)
	if err != nil {
		t.Fatalf("map form: %v", err)
	}
	got := mapped.Bindings["value"]
	if got.Path != "user.age" || got.Mode != BindingModeTwoWay {
		t.Errorf("map form = %+v", got)
	}

	if err := json.Unmarshal([]byte(`42`), &simple); err == nil {
		t.Error("numeric dataBinding should fail")
	}
}

func TestUnmarshalWidgetMessage(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		input string
		want  WidgetMessage
	}{
		{
			name:  "begin rendering defaults root",
			tool:  ToolBeginRendering,
			input: `{"surfaceId": "s1"}`,
			want:  BeginRendering{Surface: "s1", Root: DefaultRootID},
		},
		{
			name:  "begin rendering explicit root",
			tool:  ToolBeginRendering,
			input: `{"surfaceId": "s1", "parentSurfaceId": "p", "root": "main"}`,
			want:  BeginRendering{Surface: "s1", ParentSurface: "p", Root: "main"},
		},
		{
			name:  "surface update empty widgets",
			tool:  ToolSurfaceUpdate,
			input: `{"surfaceId": "s2", "widgets": []}`,
			want:  SurfaceUpdate{Surface: "s2", Widgets: []WidgetNode{}},
		},
		{
			name:  "data model update",
			tool:  ToolDataModelUpdate,
			input: `{"updates": {"count": 3}}`,
			want:  DataModelUpdate{Updates: map[string]any{"count": float64(3)}},
		},
		{
			name:  "delete surface cascade default",
			tool:  ToolDeleteSurface,
			input: `{"surfaceId": "s3"}`,
			want:  DeleteSurface{Surface: "s3", Cascade: true},
		},
		{
			name:  "delete surface cascade false",
			tool:  ToolDeleteSurface,
			input: `{"surfaceId": "s3", "cascade": false}`,
			want:  DeleteSurface{Surface: "s3", Cascade: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalWidgetMessage(tt.tool, []byte(tt.input))
			if err != nil {
				t.Fatalf("UnmarshalWidgetMessage() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUnmarshalWidgetMessage_Errors(t *testing.T) {
	tests := []struct {
		tool  string
		input string
	}{
		{ToolBeginRendering, `{}`},
		{ToolSurfaceUpdate, `{"widgets": []}`},
		{ToolDataModelUpdate, `{}`},
		{ToolDeleteSurface, `{}`},
		{"unknown_tool", `{}`},
		{ToolBeginRendering, `not json`},
	}
	for _, tt := range tests {
		if _, err := UnmarshalWidgetMessage(tt.tool, []byte(tt.input)); err == nil {
			t.Errorf("UnmarshalWidgetMessage(%s, %s) expected error", tt.tool, tt.input)
		}
	}
}

func TestParseResultIsEmpty(t *testing.T) {
	if !(ParseResult{}).IsEmpty() {
		t.Error("zero ParseResult should be empty")
	}
	if (ParseResult{Text: "hi"}).IsEmpty() {
		t.Error("result with text should not be empty")
	}
	withMsg := ParseResult{Messages: []WidgetMessage{DeleteSurface{Surface: "s", Cascade: true}}}
	if withMsg.IsEmpty() {
		t.Error("result with messages should not be empty")
	}
}

func TestIsControlTool(t *testing.T) {
	for _, name := range []string{ToolBeginRendering, ToolSurfaceUpdate, ToolDataModelUpdate, ToolDeleteSurface} {
		if !IsControlTool(name) {
			t.Errorf("IsControlTool(%s) = false", name)
		}
	}
	if IsControlTool("search_catalog") {
		t.Error("search_catalog is not a control tool")
	}
}
