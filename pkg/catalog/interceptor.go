package catalog

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/genui-go/genui/pkg/protocol"
)

const defaultSearchResults = 10

// LoadCallback receives the schemas of freshly loaded widget tools so the
// dispatcher can advertise them on subsequent turns.
type LoadCallback func(schemas []protocol.ToolSchema)

// Interceptor executes search_catalog and load_tools calls locally, without
// a network round-trip. It sits between the stream parser and the dispatcher
// and keeps the per-session set of loaded tools.
type Interceptor struct {
	index     *Index
	maxLoaded int
	onLoad    LoadCallback
	logger    *slog.Logger

	mu          sync.Mutex
	loaded      map[string]struct{}
	loadedOrder []string
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithLoadCallback registers the callback fired after each load_tools call.
func WithLoadCallback(cb LoadCallback) InterceptorOption {
	return func(i *Interceptor) { i.onLoad = cb }
}

// WithMaxLoadedTools caps how many widget tools one session may load.
func WithMaxLoadedTools(n int) InterceptorOption {
	return func(i *Interceptor) { i.maxLoaded = n }
}

// WithLogger sets the interceptor logger.
func WithLogger(logger *slog.Logger) InterceptorOption {
	return func(i *Interceptor) { i.logger = logger }
}

// NewInterceptor creates an interceptor over the given catalog index.
func NewInterceptor(index *Index, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		index:     index,
		maxLoaded: 32,
		logger:    slog.Default(),
		loaded:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Intercepts reports whether toolName is handled locally.
func (i *Interceptor) Intercepts(toolName string) bool {
	return toolName == ToolSearchCatalog || toolName == ToolLoadTools
}

// Execute runs an intercepted tool and returns the tool-result payload that
// is fed back to the model on the next turn.
func (i *Interceptor) Execute(toolName string, input map[string]any) (map[string]any, error) {
	switch toolName {
	case ToolSearchCatalog:
		return i.searchCatalog(input)
	case ToolLoadTools:
		return i.loadTools(input)
	}
	return nil, fmt.Errorf("interceptor: unhandled tool %q", toolName)
}

// LoadedTools returns the names of tools loaded so far, in load order.
func (i *Interceptor) LoadedTools() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.loadedOrder))
	copy(out, i.loadedOrder)
	return out
}

// decodeArgs decodes a tool input map into an arg struct. The json tag names
// the field, matching the schemas SearchTools generates; numbers arrive as
// float64 from wire JSON and are converted.
func decodeArgs(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func (i *Interceptor) searchCatalog(input map[string]any) (map[string]any, error) {
	var args SearchCatalogArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, fmt.Errorf("search_catalog: invalid input: %w", err)
	}
	if args.Query == "" {
		return nil, fmt.Errorf("search_catalog: query is required")
	}
	if args.MaxResults <= 0 {
		args.MaxResults = defaultSearchResults
	}

	// Search the whole index first so total_available reflects every match,
	// not just the returned page.
	all := i.index.Search(args.Query, i.index.Len())
	all = filterByCategories(all, args.Categories)

	terms := TokenizeText(args.Query)
	results := make([]map[string]any, 0, args.MaxResults)
	for _, hit := range all {
		if len(results) >= args.MaxResults {
			break
		}
		results = append(results, map[string]any{
			"name":        hit.Item.Schema.Name,
			"description": hit.Item.Schema.Description,
			"relevance":   relevance(terms, hit.Item.Schema),
		})
	}

	i.logger.Debug("catalog search",
		"query", args.Query,
		"matches", len(all),
		"returned", len(results))

	return map[string]any{
		"results":         results,
		"total_available": len(all),
	}, nil
}

func (i *Interceptor) loadTools(input map[string]any) (map[string]any, error) {
	var args LoadToolsArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, fmt.Errorf("load_tools: invalid input: %w", err)
	}
	if len(args.ToolNames) == 0 {
		return nil, fmt.Errorf("load_tools: tool_names is required")
	}

	i.mu.Lock()
	var (
		loaded      []string
		notFound    []string
		overLimit   []string
		newlyLoaded []protocol.ToolSchema
	)
	for _, name := range args.ToolNames {
		item := i.index.GetByName(name)
		if item == nil {
			notFound = append(notFound, name)
			continue
		}
		if _, already := i.loaded[name]; already {
			loaded = append(loaded, name)
			continue
		}
		if len(i.loaded) >= i.maxLoaded {
			overLimit = append(overLimit, name)
			continue
		}
		i.loaded[name] = struct{}{}
		i.loadedOrder = append(i.loadedOrder, name)
		loaded = append(loaded, name)
		newlyLoaded = append(newlyLoaded, item.Schema)
	}
	i.mu.Unlock()

	if len(newlyLoaded) > 0 && i.onLoad != nil {
		i.onLoad(newlyLoaded)
	}

	result := map[string]any{
		"loaded":    emptyIfNil(loaded),
		"not_found": emptyIfNil(notFound),
	}
	if len(overLimit) > 0 {
		result["not_loaded_session_limit"] = overLimit
	}

	i.logger.Debug("catalog load",
		"loaded", len(loaded),
		"not_found", len(notFound),
		"over_limit", len(overLimit))

	return result, nil
}

// relevance is the fraction of query terms that match the tool's name or
// description tokens, exactly or by prefix.
func relevance(terms []string, schema protocol.ToolSchema) float64 {
	if len(terms) == 0 {
		return 0
	}
	tokens := append(TokenizeName(schema.Name), TokenizeText(schema.Description)...)
	lowered := make([]string, len(tokens))
	for i, tok := range tokens {
		lowered[i] = strings.ToLower(tok)
	}

	matched := 0
	for _, term := range terms {
		for _, tok := range lowered {
			if strings.HasPrefix(tok, term) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(terms))
}

func filterByCategories(results []SearchResult, categories []string) []SearchResult {
	if len(categories) == 0 {
		return results
	}
	filtered := results[:0:0]
	for _, hit := range results {
		haystack := strings.ToLower(hit.Item.Schema.Name + " " + hit.Item.Schema.Description)
		for _, cat := range categories {
			if strings.Contains(haystack, strings.ToLower(cat)) {
				filtered = append(filtered, hit)
				break
			}
		}
	}
	return filtered
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
