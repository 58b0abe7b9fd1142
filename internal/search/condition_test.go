// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

func testCompileCtx(t *testing.T) CompileCtx {
	t.Helper()
	reg, err := schema.New(schema.Registry{
		BaseURL:     "https://repo.example.org/",
		ID:          "https://vocab.example.org/schema#hasIdentifier",
		Parent:      "https://vocab.example.org/schema#isPartOf",
		Label:       "https://vocab.example.org/schema#hasTitle",
		Class:       "http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
		LiteralOnly: []string{"https://vocab.example.org/schema#hasNote"},
	})
	require.NoError(t, err)
	return CompileCtx{Schema: reg, StringIndexBound: 1000, MinTimestampYear: -4713}
}

func mustCompile(t *testing.T, c *Condition, ctx CompileCtx) sqlfrag.Fragment {
	t.Helper()
	f, err := c.Compile(ctx)
	require.NoError(t, err)
	return f
}

/*
TestNewCondition_Validation rejects unknown operators and datatype hints at
construction time.
*/
func TestNewCondition_Validation(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		typeHint string
		wantErr  bool
	}{
		{"equals", "=", "", false},
		{"fts", "@@", "", false},
		{"spatial_distance_suffix", "&&1000", "", false},
		{"xsd_hint", "=", "http://www.w3.org/2001/XMLSchema#date", false},
		{"unknown_operator", "<>", "", true},
		{"garbage_operator", "&&abc", "", true},
		{"unknown_type", "=", "blob", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCondition([]string{"p"}, tt.operator, []string{"v"}, tt.typeHint, "")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

/*
TestCompile_EmptyPredicate rejects conditions with neither property nor value.
*/
func TestCompile_EmptyPredicate(t *testing.T) {
	c, err := NewCondition(nil, "=", nil, "", "")
	require.NoError(t, err)
	_, err = c.Compile(testCompileCtx(t))
	assert.Error(t, err)
}

/*
TestCompile_ArrayExpansion verifies that an array-valued condition compiles to
the union of all single-valued expansions, parameters in combination order.
*/
func TestCompile_ArrayExpansion(t *testing.T) {
	ctx := testCompileCtx(t)

	combined, err := NewCondition([]string{"p1", "p2"}, "=", []string{"a", "b"}, "string", "")
	require.NoError(t, err)
	f := mustCompile(t, combined, ctx)

	var singles []sqlfrag.Fragment
	for _, p := range []string{"p1", "p2"} {
		for _, v := range []string{"a", "b"} {
			single, err := NewCondition([]string{p}, "=", []string{v}, "string", "")
			require.NoError(t, err)
			singles = append(singles, mustCompile(t, single, ctx))
		}
	}
	expected := sqlfrag.Union(singles...)

	assert.Equal(t, expected.SQL(), f.SQL())
	assert.Equal(t, expected.Args(), f.Args())
}

/*
TestCompile_StringIndexBound: equality predicates under the 1000-character
bound must use the substring form matching the partial index; values at or
over the bound must not.
*/
func TestCompile_StringIndexBound(t *testing.T) {
	ctx := testCompileCtx(t)

	t.Run("short_value_uses_substring", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, "=", []string{strings.Repeat("x", 999)}, "string", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "substring(value, 1, 1000) = ?")
	})

	t.Run("long_value_compares_directly", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, "=", []string{strings.Repeat("x", 1001)}, "string", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.NotContains(t, f.SQL(), "substring(")
		assert.Contains(t, f.SQL(), "value = ?")
	})

	t.Run("regex_never_uses_substring", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, "~*", []string{"abc"}, "string", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.NotContains(t, f.SQL(), "substring(")
	})
}

/*
TestCompile_DateFallback: dates before the minimum timestamp year compare the
numeric year column; later dates compare the timestamp column.
*/
func TestCompile_DateFallback(t *testing.T) {
	ctx := testCompileCtx(t)

	t.Run("bce_year_uses_numeric_column", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, ">", []string{"-5000-01-01"}, "date", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "value_n > ?")
		assert.NotContains(t, f.SQL(), "value_t")
		assert.Contains(t, f.Args(), float64(-5000))
	})

	t.Run("common_era_uses_timestamp_column", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, ">", []string{"2020-01-01"}, "date", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "value_t > ?::timestamp")
		assert.NotContains(t, f.SQL(), "value_n")
	})
}

/*
TestCompile_TypeGuessing resolves the effective datatype from the value shape
when no hint is given.
*/
func TestCompile_TypeGuessing(t *testing.T) {
	ctx := testCompileCtx(t)

	t.Run("numeric_value", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, ">", []string{"42"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "value_n > ?")
	})

	t.Run("date_value", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, "<", []string{"1999-12-31"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "value_t < ?::timestamp")
	})

	t.Run("plain_string", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, "=", []string{"hello"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "substring(value, 1, 1000)")
	})

	t.Run("literal_only_property_pins_string", func(t *testing.T) {
		c, err := NewCondition([]string{"https://vocab.example.org/schema#hasNote"}, "=", []string{"42"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.NotContains(t, f.SQL(), "value_n")
		assert.Contains(t, f.SQL(), "substring(value, 1, 1000)")
	})
}

/*
TestCompile_StringUnionsLiteralSources: string equality on a non-pinned
property also searches identifiers and relation targets as literal sources.
*/
func TestCompile_StringUnionsLiteralSources(t *testing.T) {
	ctx := testCompileCtx(t)

	c, err := NewCondition([]string{"p"}, "=", []string{"hello"}, "string", "")
	require.NoError(t, err)
	f := mustCompile(t, c, ctx)

	assert.Contains(t, f.SQL(), "FROM metadata")
	assert.Contains(t, f.SQL(), "FROM relations")
	assert.NotContains(t, f.SQL(), "FROM identifiers WHERE")

	// The identifier property additionally matches the identifiers table.
	c, err = NewCondition([]string{ctx.Schema.ID}, "=", []string{"https://id.example.org/x"}, "string", "")
	require.NoError(t, err)
	f = mustCompile(t, c, ctx)
	assert.Contains(t, f.SQL(), "FROM identifiers")
}

/*
TestCompile_Relation covers forward and negate-marker-reversed relations.
*/
func TestCompile_Relation(t *testing.T) {
	ctx := testCompileCtx(t)

	t.Run("forward", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, "=", []string{"https://id.example.org/t"}, "relation", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "SELECT r.id AS id FROM relations")
		assert.Contains(t, f.SQL(), "i.id = r.target_id")
	})

	t.Run("reversed", func(t *testing.T) {
		c, err := NewCondition([]string{"^p"}, "=", []string{"https://id.example.org/t"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "SELECT r.target_id AS id FROM relations")
		assert.Contains(t, f.SQL(), "i.id = r.id")
	})

	t.Run("ordering_operator_rejected", func(t *testing.T) {
		c, err := NewCondition([]string{"p"}, ">", []string{"https://id.example.org/t"}, "relation", "")
		require.NoError(t, err)
		_, err = c.Compile(ctx)
		assert.Error(t, err)
	})
}

/*
TestCompile_Fts covers URI quoting, language filtering, and the special
property scopes.
*/
func TestCompile_Fts(t *testing.T) {
	ctx := testCompileCtx(t)

	t.Run("plain_phrase", func(t *testing.T) {
		c, err := NewCondition(nil, "@@", []string{"climate change"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "websearch_to_tsquery('simple', ?)")
		assert.Equal(t, []any{"climate change"}, f.Args())
	})

	t.Run("uri_in_phrase_is_quoted", func(t *testing.T) {
		c, err := NewCondition(nil, "@@", []string{"see https://example.org/a?b=c"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Equal(t, []any{`see "https://example.org/a?b=c"`}, f.Args())
	})

	t.Run("language_filter", func(t *testing.T) {
		c, err := NewCondition(nil, "@@", []string{"klima"}, "", "de")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "m.lang = ? OR m.lang = ''")
	})

	t.Run("identifier_property_scope", func(t *testing.T) {
		c, err := NewCondition([]string{ctx.Schema.ID}, "@@", []string{"xyz"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "f.iid IS NOT NULL")
	})

	t.Run("binary_scope", func(t *testing.T) {
		c, err := NewCondition([]string{schema.BinarySearch}, "@@", []string{"xyz"}, "", "")
		require.NoError(t, err)
		f := mustCompile(t, c, ctx)
		assert.Contains(t, f.SQL(), "f.mid IS NULL AND f.iid IS NULL")
	})
}

/*
TestCompile_Spatial covers the operator dispatch including distance suffixes.
*/
func TestCompile_Spatial(t *testing.T) {
	ctx := testCompileCtx(t)
	wkt := "POINT(16.37 48.21)"

	tests := []struct {
		name     string
		operator string
		want     string
	}{
		{"bbox", "&&", "geom && ST_GeomFromText(?, 4326)"},
		{"exact_intersects", "&&&", "ST_Intersects(geom, ST_GeomFromText(?, 4326))"},
		{"contains", "&>", "ST_Contains(geom, ST_GeomFromText(?, 4326))"},
		{"contained_by", "&<", "ST_Contains(ST_GeomFromText(?, 4326), geom)"},
		{"distance", "&&5000", "ST_DWithin(geom::geography, ST_GeomFromText(?, 4326)::geography, ?)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCondition(nil, tt.operator, []string{wkt}, "", "")
			require.NoError(t, err)
			f := mustCompile(t, c, ctx)
			assert.Contains(t, f.SQL(), tt.want)
		})
	}
}

/*
TestCompile_IDFastPath expresses match-by-primary-key as a VALUES list.
*/
func TestCompile_IDFastPath(t *testing.T) {
	ctx := testCompileCtx(t)

	c, err := NewCondition(nil, "=", []string{"7", "8", "9"}, "id", "")
	require.NoError(t, err)
	f := mustCompile(t, c, ctx)

	assert.Equal(t, "SELECT id FROM (VALUES (?::bigint),(?::bigint),(?::bigint)) AS t (id)", f.SQL())
	assert.Equal(t, []any{int64(7), int64(8), int64(9)}, f.Args())

	c, err = NewCondition(nil, "=", []string{"abc"}, "id", "")
	require.NoError(t, err)
	_, err = c.Compile(ctx)
	assert.Error(t, err)

	// An id condition without values must be rejected before the driver
	// ever sees it; an empty VALUES list is not valid SQL.
	c, err = NewCondition([]string{"p"}, "=", nil, "id", "")
	require.NoError(t, err)
	_, err = c.Compile(ctx)
	assert.ErrorContains(t, err, "id condition without values")
}

/*
TestCompile_PropertyExistence matches "resource has this property".
*/
func TestCompile_PropertyExistence(t *testing.T) {
	ctx := testCompileCtx(t)

	c, err := NewCondition([]string{"p"}, "=", nil, "", "")
	require.NoError(t, err)
	f := mustCompile(t, c, ctx)
	assert.Contains(t, f.SQL(), "FROM metadata")
	assert.Contains(t, f.SQL(), "FROM relations")
	assert.Equal(t, []any{"p", "p"}, f.Args())
}

/*
TestCompile_PlaceholderInvariant: every compiled fragment must satisfy the
placeholder/parameter-count invariant.
*/
func TestCompile_PlaceholderInvariant(t *testing.T) {
	ctx := testCompileCtx(t)

	conditions := []*Condition{}
	add := func(p []string, op string, v []string, hint, lang string) {
		c, err := NewCondition(p, op, v, hint, lang)
		require.NoError(t, err)
		conditions = append(conditions, c)
	}

	add([]string{"p1", "p2"}, "=", []string{"a", "b"}, "", "")
	add(nil, "@@", []string{"climate"}, "", "en")
	add(nil, "&&100", []string{"POINT(1 2)"}, "", "")
	add([]string{"^p"}, "=", []string{"https://id.example.org/t"}, "", "")
	add(nil, "=", []string{"1", "2"}, "id", "")
	add([]string{"p"}, "<=", []string{"-5000-01-01"}, "date", "")

	for _, c := range conditions {
		f := mustCompile(t, c, ctx)
		_, _, err := f.Numbered(1)
		assert.NoError(t, err, "fragment %q", f.SQL())
	}
}
