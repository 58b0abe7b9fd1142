// Copyright (c) 2026 Tessera. All rights reserved.

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/internal/search"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.New(schema.Registry{
		BaseURL: "https://repo.tessera.dev/",
		ID:      "https://vocab.tessera.dev/schema#hasIdentifier",
		Parent:  "https://vocab.tessera.dev/schema#isPartOf",
		Label:   "https://vocab.tessera.dev/schema#hasTitle",
		Class:   "http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
	})
	require.NoError(t, err)
	return reg
}

func TestToResources(t *testing.T) {
	reg := testRegistry(t)

	g := graph.New()
	g.Add(reg.BaseURL, schema.SearchCount, graph.Literal("2", "", ""))
	g.Add(reg.ResourceURI(1), reg.Label, graph.Literal("Climate report", "en", ""))
	g.Add(reg.ResourceURI(1), schema.SearchWeight, graph.Literal("3.5", "", ""))
	g.Add(reg.ResourceURI(1), schema.SearchFts, graph.Literal("<b>Climate</b> report", "", ""))
	g.Add(reg.ResourceURI(2), reg.Label, graph.Literal("Weather almanac", "", ""))

	payloads := toResources(graph.MapResources(g, reg))
	require.Len(t, payloads, 2)

	first := payloads[0]
	assert.Equal(t, reg.ResourceURI(1), first.URI)
	require.NotNil(t, first.Weight)
	assert.Equal(t, 3.5, *first.Weight)
	assert.Equal(t, []string{"<b>Climate</b> report"}, first.Highlights)
	require.Len(t, first.Metadata, 1)
	assert.Equal(t, "Climate report", first.Metadata[0].Value)
	assert.Equal(t, "en", first.Metadata[0].Lang)

	assert.Nil(t, payloads[1].Weight)
}

func TestToGraph_StripsTechnicalStatements(t *testing.T) {
	reg := testRegistry(t)

	g := graph.New()
	g.Add(reg.BaseURL, schema.SearchCount, graph.Literal("1", "", ""))
	g.Add(reg.ResourceURI(7), reg.Label, graph.Literal("Harbor survey", "", ""))
	g.Add(reg.ResourceURI(7), schema.SearchMatch, graph.Literal("", "", ""))
	g.Add(reg.ResourceURI(7), schema.SearchFts, graph.Literal("<b>Harbor</b>", "", ""))
	g.Add(reg.ResourceURI(7), reg.Parent, graph.Resource(reg.ResourceURI(3)))

	payloads := toGraph(g, reg)
	require.Len(t, payloads, 1)

	p := payloads[0]
	assert.Equal(t, reg.ResourceURI(7), p.URI)
	assert.Equal(t, []string{"<b>Harbor</b>"}, p.Highlights)
	require.Len(t, p.Metadata, 2)
	assert.Equal(t, "literal", p.Metadata[0].Kind)
	assert.Equal(t, "resource", p.Metadata[1].Kind)
	assert.Equal(t, reg.ResourceURI(3), p.Metadata[1].Value)
}

func TestSplitSpatial(t *testing.T) {
	structural, err := search.NewCondition(
		[]string{"https://vocab.tessera.dev/schema#hasSubject"},
		"=", []string{"weather"}, "string", "")
	require.NoError(t, err)

	spatial, err := search.NewCondition(nil, "&&", []string{"POINT(16.37 48.21)"}, "spatial", "")
	require.NoError(t, err)

	t.Run("separates the spatial predicate", func(t *testing.T) {
		rest, sp, err := splitSpatial([]*search.Condition{structural, spatial})
		require.NoError(t, err)
		assert.Equal(t, []*search.Condition{structural}, rest)
		assert.Same(t, spatial, sp)
	})

	t.Run("no spatial predicate", func(t *testing.T) {
		rest, sp, err := splitSpatial([]*search.Condition{structural})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
		assert.Nil(t, sp)
	})

	t.Run("detects a spatial operator without a type hint", func(t *testing.T) {
		c, err := search.NewCondition(nil, "&&&", []string{"POINT(0 0)"}, "", "")
		require.NoError(t, err)

		rest, sp, err := splitSpatial([]*search.Condition{c})
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Same(t, c, sp)
	})

	t.Run("rejects a second spatial predicate", func(t *testing.T) {
		_, _, err := splitSpatial([]*search.Condition{spatial, spatial})
		assert.Error(t, err)
	})
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, -1, intParam("", -1))
	assert.Equal(t, 5, intParam("5", -1))
	assert.Equal(t, -1, intParam("five", -1))
}
