package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/genui-go/genui/pkg/protocol"
)

// IndexedItem wraps a tool schema with its extracted keywords.
type IndexedItem struct {
	Schema   protocol.ToolSchema
	Keywords []string

	// order preserves insertion sequence for deterministic tie-breaking.
	order int
}

// SearchResult is one scored hit from Index.Search.
type SearchResult struct {
	Item  *IndexedItem
	Score int
}

// Index is the dual-map catalog index: name to item, keyword to name set.
// Reads may run concurrently; Add and Clear take the write lock so mutations
// never overlap searches.
type Index struct {
	mu       sync.RWMutex
	items    map[string]*IndexedItem
	inverted map[string]map[string]struct{}
	nextOrd  int
}

// NewIndex creates an empty catalog index.
func NewIndex() *Index {
	return &Index{
		items:    make(map[string]*IndexedItem),
		inverted: make(map[string]map[string]struct{}),
	}
}

// Add indexes one tool schema. Adding the same name twice is a no-op.
func (ix *Index) Add(schema protocol.ToolSchema) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.items[schema.Name]; exists {
		return
	}

	item := &IndexedItem{
		Schema:   schema,
		Keywords: ExtractKeywords(schema.Name, schema.Description, schema.InputSchema),
		order:    ix.nextOrd,
	}
	ix.nextOrd++
	ix.items[schema.Name] = item

	for _, kw := range item.Keywords {
		set, ok := ix.inverted[kw]
		if !ok {
			set = make(map[string]struct{})
			ix.inverted[kw] = set
		}
		set[schema.Name] = struct{}{}
	}
}

// AddAll indexes a batch of schemas in order.
func (ix *Index) AddAll(schemas []protocol.ToolSchema) {
	for _, s := range schemas {
		ix.Add(s)
	}
}

// Search tokenizes the query like a description, unions exact and prefix
// keyword matches and returns up to maxResults items ordered by score
// descending, insertion order on ties. Empty queries return nothing.
func (ix *Index) Search(query string, maxResults int) []SearchResult {
	terms := TokenizeText(query)
	if len(terms) == 0 || maxResults <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]int)
	for _, term := range terms {
		if names, ok := ix.inverted[term]; ok {
			for name := range names {
				scores[name] += 3
			}
		}
		for kw, names := range ix.inverted {
			if kw == term || !strings.HasPrefix(kw, term) {
				continue
			}
			for name := range names {
				scores[name]++
			}
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for name, score := range scores {
		results = append(results, SearchResult{Item: ix.items[name], Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.order < results[j].Item.order
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// GetByName returns the indexed item for name, or nil.
func (ix *Index) GetByName(name string) *IndexedItem {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.items[name]
}

// GetByNames returns items for the given names, silently skipping misses.
func (ix *Index) GetByNames(names []string) []*IndexedItem {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	items := make([]*IndexedItem, 0, len(names))
	for _, name := range names {
		if item, ok := ix.items[name]; ok {
			items = append(items, item)
		}
	}
	return items
}

// Schemas returns every indexed schema in insertion order.
func (ix *Index) Schemas() []protocol.ToolSchema {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	items := make([]*IndexedItem, 0, len(ix.items))
	for _, item := range ix.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].order < items[j].order })

	schemas := make([]protocol.ToolSchema, 0, len(items))
	for _, item := range items {
		schemas = append(schemas, item.Schema)
	}
	return schemas
}

// Len returns the number of indexed tools.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Clear drops both maps.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.items = make(map[string]*IndexedItem)
	ix.inverted = make(map[string]map[string]struct{})
	ix.nextOrd = 0
}
