// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/schema"
)

func TestRequest_Empty(t *testing.T) {
	assert.True(t, Request{}.empty())
	assert.False(t, Request{Phrase: "x"}.empty())
	assert.False(t, Request{ParentIDs: []int64{1}}.empty())
	assert.False(t, Request{MatchAll: true}.empty())
	assert.False(t, Request{Spatial: &Condition{}}.empty())
}

func TestWeightValues_Deterministic(t *testing.T) {
	sql, args := weightValues(map[string]float64{"b": 2, "a": 1, "c": 3})

	assert.Equal(t, "(?, ?::double precision),(?, ?::double precision),(?, ?::double precision)", sql)
	// Keys come back sorted regardless of map iteration order.
	assert.Equal(t, []any{"a", 1.0, "b", 2.0, "c", 3.0}, args)
}

func TestWeightLookup(t *testing.T) {
	t.Run("empty map falls back to the scalar default", func(t *testing.T) {
		expr, exprArgs, join, joinArgs := weightLookup("w", "m.value", nil, 0.8)

		assert.Equal(t, "?::double precision", expr)
		assert.Equal(t, []any{0.8}, exprArgs)
		assert.Empty(t, join)
		assert.Empty(t, joinArgs)
	})

	t.Run("map renders a VALUES join with coalesced default", func(t *testing.T) {
		expr, exprArgs, join, joinArgs := weightLookup("w", "m.value", map[string]float64{"x": 2}, 1.0)

		assert.Equal(t, "COALESCE(w.weight, ?)", expr)
		assert.Equal(t, []any{1.0}, exprArgs)
		assert.Contains(t, join, "LEFT JOIN (VALUES")
		assert.Contains(t, join, "ON w.value = m.value")
		assert.Equal(t, []any{"x", 2.0}, joinArgs)
	})
}

func TestFacetType(t *testing.T) {
	assert.Equal(t, "literal", facetType(&LiteralFacet{}))
	assert.Equal(t, "object", facetType(&ObjectFacet{}))
	assert.Equal(t, "continuous", facetType(&ContinuousFacet{}))
	assert.Equal(t, "matchProperty", facetType(&MatchPropertyFacet{}))
	assert.Equal(t, "linkProperty", facetType(&LinkPropertyFacet{}))
	assert.Equal(t, "map", facetType(&MapFacet{}))
}

// # Integration

// integrationPool connects to the database named by TESSERA_TEST_DB, or
// skips. The schema must already be migrated.
func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TESSERA_TEST_DB")
	if dsn == "" {
		t.Skip("TESSERA_TEST_DB not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// seedCorpus inserts a small document set in a disjoint id range and removes
// it again after the test.
func seedCorpus(t *testing.T, pool *pgxpool.Pool, reg *schema.Registry) {
	t.Helper()
	ctx := context.Background()

	const subject = "https://vocab.tessera.dev/schema#hasSubject"
	type doc struct {
		id      int64
		title   string
		subject string
	}
	docs := []doc{
		{910001, "Climate report", "climate change"},
		{910002, "Weather almanac", "weather"},
		{910003, "Harbor survey", "shipping"},
	}

	for _, d := range docs {
		_, err := pool.Exec(ctx,
			"INSERT INTO metadata (id, property, type, lang, value) VALUES ($1, $2, $3, '', $4)",
			d.id, reg.Label, schema.TypeString, d.title)
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			"INSERT INTO metadata (id, property, type, lang, value) VALUES ($1, $2, $3, '', $4)",
			d.id, subject, schema.TypeString, d.subject)
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			"INSERT INTO identifiers (id, ids) VALUES ($1, $2)",
			d.id, fmt.Sprintf("https://id.tessera.dev/doc/%d", d.id))
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			"INSERT INTO full_text_search (id, property, raw, segments) VALUES ($1, $2, $3, to_tsvector('simple', $3))",
			d.id, reg.Label, d.title)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		for _, table := range []string{"full_text_search", "identifiers", "metadata"} {
			_, err := pool.Exec(ctx, "DELETE FROM "+table+" WHERE id BETWEEN 910001 AND 910003")
			assert.NoError(t, err)
		}
	})
}

func integrationRegistry(t *testing.T) *schema.Registry {
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

func TestEngine_Integration(t *testing.T) {
	pool := integrationPool(t)
	reg := integrationRegistry(t)
	seedCorpus(t, pool, reg)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	const subject = "https://vocab.tessera.dev/schema#hasSubject"

	run := func(t *testing.T, req Request) *Engine {
		t.Helper()
		engine, err := Begin(ctx, pool, reg, nil, DefaultConfig(), logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = engine.Close(ctx) })
		require.NoError(t, engine.Search(ctx, req))
		return engine
	}

	t.Run("structural condition matches and counts", func(t *testing.T) {
		c, err := NewCondition([]string{subject}, "=", []string{"climate change"}, "string", "")
		require.NoError(t, err)

		engine := run(t, Request{Conditions: []*Condition{c}})
		assert.Equal(t, int64(1), engine.Total())

		g, err := engine.Page(ctx, PageOptions{Limit: 10})
		require.NoError(t, err)
		_, ok := g.First(reg.ResourceURI(910001), schema.SearchMatch)
		assert.True(t, ok)
	})

	t.Run("full-text phrase ranks the exact title first", func(t *testing.T) {
		engine := run(t, Request{Phrase: "climate"})
		require.GreaterOrEqual(t, engine.Total(), int64(1))

		g, err := engine.Page(ctx, PageOptions{Limit: 10, Highlight: true})
		require.NoError(t, err)
		result := graph.MapResources(g, reg)
		require.NotEmpty(t, result.Resources)
		assert.Equal(t, reg.ResourceURI(910001), result.Resources[0].URI)
	})

	t.Run("zero facet weight drops the value from the report", func(t *testing.T) {
		facets, err := NewFacets(&LiteralFacet{
			Property:      subject,
			Weights:       map[string]float64{"weather": 0},
			DefaultWeight: NeutralWeight,
		})
		require.NoError(t, err)

		c, err := NewCondition([]string{subject}, "=", []string{"climate change", "weather"}, "string", "")
		require.NoError(t, err)

		engine := run(t, Request{Conditions: []*Condition{c}, Facets: facets})
		// Both resources stay matched through their structural rows; only the
		// zero-weight facet row is gone.
		assert.Equal(t, int64(2), engine.Total())

		stats, err := engine.Stats(ctx, nil)
		require.NoError(t, err)
		require.Len(t, stats.Facets, 1)
		require.Len(t, stats.Facets[0].Values, 1)
		assert.Equal(t, "climate change", stats.Facets[0].Values[0].Value)
	})

	t.Run("total counts only servable resources", func(t *testing.T) {
		facets, err := NewFacets(&LiteralFacet{Property: subject, Label: "Subject"})
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.PropertyWeights = map[string]float64{reg.Label: 0}

		engine, err := Begin(ctx, pool, reg, nil, cfg, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = engine.Close(ctx) })
		require.NoError(t, engine.Search(ctx, Request{Phrase: "weather", Facets: facets}))

		// The only weighted row was zeroed out and deleted; the remaining
		// null-weight facet rows must not inflate the total or the page.
		assert.Equal(t, int64(0), engine.Total())
		g, err := engine.Page(ctx, PageOptions{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, graph.MapResources(g, reg).Resources)
	})

	t.Run("pagination is exhaustive and disjoint", func(t *testing.T) {
		c, err := NewCondition([]string{reg.Label}, "=", []string{"Climate report", "Weather almanac", "Harbor survey"}, "string", "")
		require.NoError(t, err)

		engine := run(t, Request{Conditions: []*Condition{c}})
		require.Equal(t, int64(3), engine.Total())

		seen := map[string]bool{}
		for offset := 0; offset < 3; offset += 2 {
			g, err := engine.Page(ctx, PageOptions{Offset: offset, Limit: 2})
			require.NoError(t, err)
			for _, h := range graph.MapResources(g, reg).Resources {
				assert.False(t, seen[h.URI], "resource %s served twice", h.URI)
				seen[h.URI] = true
			}
		}
		assert.Len(t, seen, 3)
	})

	t.Run("statistics report the literal facet", func(t *testing.T) {
		facets, err := NewFacets(&LiteralFacet{Property: subject, Label: "Subject"})
		require.NoError(t, err)

		c, err := NewCondition([]string{reg.Label}, "=", []string{"Climate report", "Weather almanac"}, "string", "")
		require.NoError(t, err)

		engine := run(t, Request{Conditions: []*Condition{c}, Facets: facets})
		stats, err := engine.Stats(ctx, nil)
		require.NoError(t, err)
		require.Len(t, stats.Facets, 1)
		assert.Len(t, stats.Facets[0].Values, 2)
	})
}
