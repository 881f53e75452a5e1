package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/genui-go/genui/pkg/protocol"
)

// Names of the two locally intercepted search tools.
const (
	ToolSearchCatalog = "search_catalog"
	ToolLoadTools     = "load_tools"
)

// SearchCatalogArgs is the input of the search_catalog tool.
type SearchCatalogArgs struct {
	Query      string   `json:"query" jsonschema:"required,description=Keywords describing the widget to find"`
	Categories []string `json:"categories,omitempty" jsonschema:"description=Optional category filters"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"description=Maximum results to return,default=10,minimum=1,maximum=50"`
}

// LoadToolsArgs is the input of the load_tools tool.
type LoadToolsArgs struct {
	ToolNames []string `json:"tool_names" jsonschema:"required,description=Names of catalog tools to load into this session"`
}

// SearchTools returns the two tools advertised in search mode alongside the
// control tools.
func SearchTools() []protocol.ToolSchema {
	searchSchema, err := generateSchema[SearchCatalogArgs]()
	if err != nil {
		panic(fmt.Sprintf("catalog: search_catalog schema: %v", err))
	}
	loadSchema, err := generateSchema[LoadToolsArgs]()
	if err != nil {
		panic(fmt.Sprintf("catalog: load_tools schema: %v", err))
	}

	return []protocol.ToolSchema{
		{
			Name:        ToolSearchCatalog,
			Description: "Search the widget tool catalog by keyword. Returns matching tool names with descriptions and relevance scores. Use load_tools to make a result usable.",
			InputSchema: searchSchema,
			Required:    []string{"query"},
		},
		{
			Name:        ToolLoadTools,
			Description: "Load widget tools from the catalog into the current session so they can be invoked.",
			InputSchema: loadSchema,
			Required:    []string{"tool_names"},
		},
	}
}

// generateSchema creates a JSON schema from a Go type using struct tags.
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}

	result := map[string]any{
		"type":       "object",
		"properties": schemaMap["properties"],
	}
	if required, ok := schemaMap["required"]; ok {
		result["required"] = required
	}
	return result, nil
}
