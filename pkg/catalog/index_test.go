package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genui-go/genui/pkg/protocol"
)

func pickerCatalog() []protocol.ToolSchema {
	return []protocol.ToolSchema{
		{Name: "date_picker", Description: "Pick a calendar date"},
		{Name: "time_picker", Description: "Pick a time of day"},
		{Name: "data_table", Description: "Tabular data grid"},
		{Name: "button", Description: "Clickable button"},
	}
}

func TestIndexSearchRelevance(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(pickerCatalog())

	// Exact keyword match outscores prefix-only matches.
	results := ix.Search("date", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "date_picker", results[0].Item.Schema.Name)

	// Both pickers above data_table for "picker".
	results = ix.Search("picker", 10)
	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, "date_picker", results[0].Item.Schema.Name)
	assert.Equal(t, "time_picker", results[1].Item.Schema.Name)
	for _, r := range results[2:] {
		assert.NotEqual(t, "data_table", r.Item.Schema.Name,
			"data_table should not outrank the pickers")
	}
}

func TestIndexSearchEmptyQuery(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(pickerCatalog())

	assert.Empty(t, ix.Search("", 10))
	assert.Empty(t, ix.Search("   !!! ", 10))
	assert.Empty(t, ix.Search("date", 0))
}

func TestIndexSearchMaxResults(t *testing.T) {
	ix := NewIndex()
	for i := 0; i < 20; i++ {
		ix.Add(protocol.ToolSchema{
			Name:        fmt.Sprintf("picker_%c", 'a'+i),
			Description: "picker variant",
		})
	}
	results := ix.Search("picker", 5)
	assert.Len(t, results, 5)
}

func TestIndexSearchTieBreakInsertionOrder(t *testing.T) {
	ix := NewIndex()
	ix.Add(protocol.ToolSchema{Name: "chart_bar", Description: "bar chart"})
	ix.Add(protocol.ToolSchema{Name: "chart_pie", Description: "pie chart"})

	results := ix.Search("chart", 10)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, "chart_bar", results[0].Item.Schema.Name)
	assert.Equal(t, "chart_pie", results[1].Item.Schema.Name)
}

func TestIndexAddIdempotent(t *testing.T) {
	ix := NewIndex()
	schema := protocol.ToolSchema{Name: "button", Description: "Clickable button"}
	ix.Add(schema)
	ix.Add(protocol.ToolSchema{Name: "button", Description: "Different text entirely"})

	assert.Equal(t, 1, ix.Len())
	item := ix.GetByName("button")
	require.NotNil(t, item)
	assert.Equal(t, "Clickable button", item.Schema.Description)
}

func TestIndexGetByNames(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(pickerCatalog())

	items := ix.GetByNames([]string{"button", "missing", "date_picker"})
	require.Len(t, items, 2)
	assert.Equal(t, "button", items[0].Schema.Name)
	assert.Equal(t, "date_picker", items[1].Schema.Name)

	assert.Nil(t, ix.GetByName("missing"))
}

func TestIndexClear(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(pickerCatalog())
	require.Equal(t, 4, ix.Len())

	ix.Clear()
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Search("picker", 10))

	// Insertion order restarts after clear.
	ix.Add(protocol.ToolSchema{Name: "slider", Description: "Range slider"})
	assert.Equal(t, "slider", ix.Search("slider", 1)[0].Item.Schema.Name)
}

func TestIndexInvariants(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(pickerCatalog())

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// Every keyword of every item appears in the inverted index, and every
	// inverted entry maps to at least one live item.
	for name, item := range ix.items {
		for _, kw := range item.Keywords {
			names, ok := ix.inverted[kw]
			require.True(t, ok, "keyword %q of %q missing from inverted index", kw, name)
			_, ok = names[name]
			assert.True(t, ok, "inverted entry for %q missing name %q", kw, name)
		}
	}
	for kw, names := range ix.inverted {
		require.NotEmpty(t, names, "keyword %q maps to no items", kw)
		for name := range names {
			_, ok := ix.items[name]
			assert.True(t, ok, "inverted keyword %q references unknown item %q", kw, name)
		}
	}
}
