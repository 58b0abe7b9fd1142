// Copyright (c) 2026 Tessera. All rights reserved.

package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

// staticAuthz returns a fixed filter fragment regardless of the caller.
type staticAuthz struct {
	f sqlfrag.Fragment
}

func (a staticAuthz) Filter(context.Context) sqlfrag.Fragment { return a.f }

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.New(schema.Registry{
		BaseURL: "https://repo.example.org/",
		ID:      "https://vocab.example.org/schema#hasIdentifier",
		Parent:  "https://vocab.example.org/schema#isPartOf",
		Label:   "https://vocab.example.org/schema#hasTitle",
		Class:   "http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
	})
	require.NoError(t, err)
	return reg
}

func testReader(t *testing.T) *Reader {
	t.Helper()
	return NewReader(nil, testRegistry(t), nil, nil)
}

func TestParseBreadth(t *testing.T) {
	b, err := ParseBreadth("")
	require.NoError(t, err)
	assert.Equal(t, BreadthResource, b)

	b, err = ParseBreadth("parentsOnly")
	require.NoError(t, err)
	assert.Equal(t, BreadthParentsOnly, b)

	_, err = ParseBreadth("everything")
	assert.Error(t, err)
}

func TestBreadth_Traversal(t *testing.T) {
	tests := []struct {
		breadth   Breadth
		fwd, rev  int
		neighbors bool
		reverse   bool
	}{
		{BreadthRelatives, -1, -1, true, false},
		{BreadthRelativesOnly, -1, -1, false, false},
		{BreadthRelativesReverse, -1, -1, false, true},
		{BreadthParents, 0, -1, true, false},
		{BreadthParentsOnly, 0, -1, false, false},
		{BreadthParentsReverse, -1, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.breadth), func(t *testing.T) {
			fwd, rev, neighbors, reverse := tt.breadth.traversal(-1)
			assert.Equal(t, tt.fwd, fwd)
			assert.Equal(t, tt.rev, rev)
			assert.Equal(t, tt.neighbors, neighbors)
			assert.Equal(t, tt.reverse, reverse)
		})
	}
}

func TestPageFragment_OrderingAndPaging(t *testing.T) {
	r := testReader(t)
	filter := sqlfrag.New("SELECT id FROM metadata WHERE property = ?", "p")

	f := r.pageFragment(filter, ReadConfig{
		OrderBy:   []string{"titleProp", "^dateProp"},
		OrderLang: "en",
		Offset:    20,
		Limit:     10,
	})

	sql, args, err := f.Numbered(1)
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT DISTINCT id FROM")
	assert.Contains(t, sql, "o0.v ASC NULLS LAST")
	assert.Contains(t, sql, "o1.v DESC NULLS LAST")
	assert.Contains(t, sql, "LIMIT $6 OFFSET $7")
	assert.Equal(t, []any{"p", "titleProp", "en", "dateProp", "en", 10, 20}, args)
}

func TestBuildQuery_RelativesUsesStoredFunction(t *testing.T) {
	r := testReader(t)
	filter := sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x")

	q := r.buildQuery(filter, ReadConfig{Breadth: BreadthRelatives, MaxDepth: 3})
	sql, _, err := q.Numbered(1)
	require.NoError(t, err)

	assert.Contains(t, sql, schema.RelativesFunc+"(page.id, $2, $3, $4, $5, $6)")
	assert.Contains(t, sql, ", scope AS (")
	assert.Contains(t, sql, "JOIN scope ON scope.id = m.id")
}

func TestBuildQuery_SyntheticRows(t *testing.T) {
	r := testReader(t)
	filter := sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x")

	q := r.buildQuery(filter, ReadConfig{
		Breadth:         BreadthResource,
		IncludeTotal:    true,
		HighlightPhrase: "climate",
	})
	sql, args, err := q.Numbered(1)
	require.NoError(t, err)

	assert.Contains(t, sql, "'"+schema.SearchCount+"'")
	assert.Contains(t, sql, "count(DISTINCT id)")
	assert.Contains(t, sql, "ts_headline('simple'")
	assert.Contains(t, sql, "'"+schema.SearchFts+"'")
	// The filter runs twice (page + count) and the phrase twice (headline +
	// match), so their parameters repeat.
	assert.Equal(t, []any{"x", r.reg.ID, "x", "climate", "climate"}, args)
}

func TestBuildQuery_HighlightOptions(t *testing.T) {
	r := testReader(t)
	filter := sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x")

	q := r.buildQuery(filter, ReadConfig{
		Breadth:         BreadthResource,
		HighlightPhrase: "climate",
		Highlight: HighlightOptions{
			StartSel:     "<mark>",
			StopSel:      "</mark>",
			MaxWords:     20,
			MinWords:     5,
			MaxFragments: 3,
		},
	})
	sql, args, err := q.Numbered(1)
	require.NoError(t, err)

	// The options travel as ts_headline's fourth argument, bound, never
	// concatenated into the statement text.
	assert.Contains(t, sql, "websearch_to_tsquery('simple', $3), $4)")
	assert.Contains(t, args, "StartSel=<mark>, StopSel=</mark>, MaxWords=20, MinWords=5, MaxFragments=3")
}

func TestHighlightOptions_DefaultsRenderEmpty(t *testing.T) {
	assert.Empty(t, HighlightOptions{}.headline())
	assert.Equal(t, "MaxWords=12", HighlightOptions{MaxWords: 12}.headline())
}

func TestBuildQuery_NoneWithTotalOnly(t *testing.T) {
	r := testReader(t)
	filter := sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x")

	q := r.buildQuery(filter, ReadConfig{Breadth: BreadthNone, IncludeTotal: true})
	sql, _, err := q.Numbered(1)
	require.NoError(t, err)

	assert.NotContains(t, sql, "FROM metadata m")
	assert.Contains(t, sql, "'"+schema.SearchCount+"'")
}

func TestBuildQuery_IDsModeFetchesOnlyLabels(t *testing.T) {
	r := testReader(t)
	filter := sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x")

	q := r.buildQuery(filter, ReadConfig{Breadth: BreadthIDs})
	sql, _, err := q.Numbered(1)
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE m.property = ")
	assert.NotContains(t, sql, "FROM relations")
}

func TestScoped_AppendsAuthzFilter(t *testing.T) {
	reg := testRegistry(t)
	r := NewReader(nil, reg, staticAuthz{sqlfrag.New("SELECT id FROM metadata WHERE value = ANY(?)", []string{"public"})}, nil)

	f := r.scoped(context.Background(), sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x"))
	sql, args, err := f.Numbered(1)
	require.NoError(t, err)

	assert.Contains(t, sql, "a.id IN (SELECT id FROM metadata WHERE value = ANY($2))")
	assert.Len(t, args, 2)
}

func TestScoped_NoopWithoutACL(t *testing.T) {
	r := testReader(t)
	in := sqlfrag.New("SELECT id FROM identifiers WHERE ids = ?", "x")
	assert.Equal(t, in, r.scoped(context.Background(), in))
}

func TestAddRow_TypeDispatch(t *testing.T) {
	r := testReader(t)
	g := graph.New()

	r.addRow(g, 7, r.reg.ID, schema.TypeID, "", "https://id.example.org/seven")
	r.addRow(g, 7, "partOf", schema.TypeRelation, "", "12")
	r.addRow(g, 7, "seeAlso", schema.TypeURI, "", "https://other.example.org/")
	r.addRow(g, 7, "coverage", schema.TypeGeom, "", "POINT(1 2)")
	r.addRow(g, 7, "title", schema.TypeString, "de", "Wien")
	r.addRow(g, 0, schema.SearchCount, schema.TypeCount, "", "42")
	r.addRow(g, 7, "partOf", schema.TypeRelation, "", "not-a-number")

	subject := r.reg.ResourceURI(7)

	v, ok := g.First(subject, r.reg.ID)
	require.True(t, ok)
	assert.Equal(t, graph.KindIdentifier, v.Kind)

	v, ok = g.First(subject, "partOf")
	require.True(t, ok)
	assert.Equal(t, graph.KindResource, v.Kind)
	assert.Equal(t, r.reg.ResourceURI(12), v.Text)
	// The malformed relation row was dropped.
	assert.Len(t, g.All(subject, "partOf"), 1)

	v, _ = g.First(subject, "seeAlso")
	assert.Equal(t, graph.KindResource, v.Kind)
	assert.Equal(t, "https://other.example.org/", v.Text)

	v, _ = g.First(subject, "coverage")
	assert.Equal(t, graph.KindLiteral, v.Kind)
	assert.Empty(t, v.Datatype)

	// Language excludes datatype on literals.
	v, _ = g.First(subject, "title")
	assert.Equal(t, "de", v.Lang)
	assert.Empty(t, v.Datatype)

	v, ok = g.First(r.reg.BaseURL, schema.SearchCount)
	require.True(t, ok)
	assert.Equal(t, "42", v.Text)
}