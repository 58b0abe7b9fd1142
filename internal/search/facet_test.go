// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/platform/apperr"
)

func TestNewFacets_Validation(t *testing.T) {
	tests := []struct {
		name    string
		facets  []Facet
		wantErr bool
	}{
		{
			"valid_mixed",
			[]Facet{
				&LiteralFacet{Property: "p1", DefaultWeight: 1},
				&ObjectFacet{Property: "p2", DefaultWeight: 1},
				&ContinuousFacet{FacetName: "coverage", Start: []string{"s"}, End: []string{"e"}},
				&MatchPropertyFacet{},
				&MapFacet{},
			},
			false,
		},
		{"literal_without_property", []Facet{&LiteralFacet{}}, true},
		{"object_without_property", []Facet{&ObjectFacet{}}, true},
		{
			"continuous_without_start",
			[]Facet{&ContinuousFacet{FacetName: "c", End: []string{"e"}}},
			true,
		},
		{
			"continuous_without_end",
			[]Facet{&ContinuousFacet{FacetName: "c", Start: []string{"s"}}},
			true,
		},
		{
			"link_without_classes",
			[]Facet{&LinkPropertyFacet{DefaultWeight: 0.5}},
			true,
		},
		{
			"link_without_any_weight",
			[]Facet{&LinkPropertyFacet{Classes: []string{"c"}}},
			true,
		},
		{
			"duplicate_names",
			[]Facet{
				&LiteralFacet{Property: "p", DefaultWeight: 1},
				&ObjectFacet{Property: "p", DefaultWeight: 1},
			},
			true,
		},
		{
			"two_link_facets_share_a_name",
			[]Facet{
				&LinkPropertyFacet{Classes: []string{"a"}, DefaultWeight: 0.5},
				&LinkPropertyFacet{Classes: []string{"b"}, DefaultWeight: 0.5},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFacets(tt.facets...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsAppError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFacets_Accessors(t *testing.T) {
	link := &LinkPropertyFacet{Classes: []string{"Person"}, DefaultWeight: 0.5}
	fs, err := NewFacets(
		&LiteralFacet{Property: "keyword", DefaultWeight: 1},
		&ContinuousFacet{FacetName: "dates", Start: []string{"s"}, End: []string{"e"}},
		&ObjectFacet{Property: "creator", DefaultWeight: 1},
		link,
		&MapFacet{},
	)
	require.NoError(t, err)

	discrete := fs.Discrete()
	require.Len(t, discrete, 2)
	assert.Equal(t, "keyword", discrete[0].Name())
	assert.Equal(t, "creator", discrete[1].Name())

	continuous := fs.Continuous()
	require.Len(t, continuous, 1)
	assert.Equal(t, "dates", continuous[0].Name())

	assert.Same(t, link, fs.Link())
	assert.True(t, fs.HasMap())
	assert.False(t, fs.HasMatchProperty())

	var empty *Facets
	assert.Nil(t, empty.All())
	assert.Nil(t, empty.Link())
}

func TestLinkPropertyFacet_WeightFor(t *testing.T) {
	f := &LinkPropertyFacet{
		Classes:       []string{"Person"},
		Weights:       map[string]float64{"actor": 2},
		DefaultWeight: 0.5,
	}
	assert.Equal(t, 2.0, f.WeightFor("actor"))
	assert.Equal(t, 0.5, f.WeightFor("mentions"))
}

func TestLoadFacets(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		fs, err := LoadFacets("")
		require.NoError(t, err)
		assert.Empty(t, fs.All())
	})

	t.Run("yaml_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "facets.yaml")
		content := `
- type: literal
  property: "https://vocab.example.org/schema#hasSubject"
  label: Subject
  weights:
    "climate change": 5
- type: continuous
  name: coverage
  start: ["https://vocab.example.org/schema#hasStartDate"]
  end: ["https://vocab.example.org/schema#hasEndDate"]
  bins: 10
  precision: 0
  distribution: true
- type: linkProperty
  classes: ["https://vocab.example.org/schema#Person"]
  defaultWeight: 0.3
- type: map
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		fs, err := LoadFacets(path)
		require.NoError(t, err)
		require.Len(t, fs.All(), 4)

		lit, ok := fs.All()[0].(*LiteralFacet)
		require.True(t, ok)
		assert.Equal(t, 5.0, lit.Weights["climate change"])
		assert.Equal(t, NeutralWeight, lit.DefaultWeight)

		cont := fs.Continuous()
		require.Len(t, cont, 1)
		assert.Equal(t, 10, cont[0].Bins)
		assert.True(t, cont[0].Distribution)

		require.NotNil(t, fs.Link())
		assert.Equal(t, 0.3, fs.Link().DefaultWeight)
		assert.True(t, fs.HasMap())
	})

	t.Run("unknown_type", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "facets.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- type: histogram\n"), 0o600))

		_, err := LoadFacets(path)
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "FACET_CONFIG", ae.Code)
	})
}
