// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/pointer"
)

// MapFacetName is the reporting key of the geographic pseudo-facet.
const MapFacetName = "map"

// NeutralWeight is the default weight applied when a facet carries no
// explicit weight for a property or value. Distinct from 0, which means
// "explicitly excluded".
const NeutralWeight = 1.0

/*
Facet is one configured search dimension: a property or derived signal used
to weight ranking and to report aggregate statistics over the match set.

Exactly six variants exist. Dispatch is by type switch, never by a runtime
type string, so a new variant breaks every switch that fails to handle it.
*/
type Facet interface {
	// Name is the facet's reporting key in statistics output.
	Name() string
	// DisplayLabel is the human-readable widget label; may be empty.
	DisplayLabel() string

	validate() error
}

// LiteralFacet aggregates a literal-valued metadata property. Optional
// per-value weights feed the ranking; values without an entry fall back to
// the default weight.
type LiteralFacet struct {
	Property      string
	Label         string
	Weights       map[string]float64
	DefaultWeight float64
}

func (f *LiteralFacet) Name() string         { return f.Property }
func (f *LiteralFacet) DisplayLabel() string { return f.Label }

func (f *LiteralFacet) validate() error {
	if f.Property == "" {
		return apperr.FacetConfig("literal facet without a property")
	}
	return nil
}

// ObjectFacet aggregates a relation-valued property. Statistics additionally
// resolve a human-readable label for each target resource.
type ObjectFacet struct {
	Property      string
	Label         string
	Weights       map[string]float64
	DefaultWeight float64
}

func (f *ObjectFacet) Name() string         { return f.Property }
func (f *ObjectFacet) DisplayLabel() string { return f.Label }

func (f *ObjectFacet) validate() error {
	if f.Property == "" {
		return apperr.FacetConfig("object facet without a property")
	}
	return nil
}

// ContinuousFacet reports the numeric range spanned by a set of start/end
// properties per matched resource, plus an adaptively binned histogram.
// Continuous facets are informational and never affect ranking.
type ContinuousFacet struct {
	FacetName string
	Label     string
	// Start and End list the properties delimiting the range; a resource's
	// facet value spans min(start values) to max(end values).
	Start []string
	End   []string
	// Bins caps the histogram resolution; 0 means the configured maximum.
	Bins int
	// Precision is the number of decimal places bin edges are rounded to.
	Precision int
	// Distribution additionally reports per-bin resource counts.
	Distribution bool
}

func (f *ContinuousFacet) Name() string         { return f.FacetName }
func (f *ContinuousFacet) DisplayLabel() string { return f.Label }

func (f *ContinuousFacet) validate() error {
	if f.FacetName == "" {
		return apperr.FacetConfig("continuous facet without a name")
	}
	if len(f.Start) == 0 || len(f.End) == 0 {
		return apperr.FacetConfig("continuous facet %q requires non-empty start and end property lists", f.FacetName)
	}
	if f.Bins < 0 || f.Precision < 0 {
		return apperr.FacetConfig("continuous facet %q has negative bins or precision", f.FacetName)
	}
	return nil
}

// MatchPropertyFacet is the pseudo-facet reporting counts per distinct
// matched property.
type MatchPropertyFacet struct {
	Label string
}

func (f *MatchPropertyFacet) Name() string         { return schema.SearchMatch }
func (f *MatchPropertyFacet) DisplayLabel() string { return f.Label }
func (f *MatchPropertyFacet) validate() error      { return nil }

// LinkPropertyFacet configures named-entity linking: a match found on a
// resource carrying one of the target classes bleeds onto every resource
// referencing it, discounted by the link weight. Statistics report counts
// per distinct linking property.
type LinkPropertyFacet struct {
	Label string
	// Classes lists the rdf:type values marking a resource as a linkable
	// named entity.
	Classes []string
	// Weights maps linking properties to their discount multiplier.
	Weights       map[string]float64
	DefaultWeight float64
}

func (f *LinkPropertyFacet) Name() string         { return schema.SearchLink }
func (f *LinkPropertyFacet) DisplayLabel() string { return f.Label }

func (f *LinkPropertyFacet) validate() error {
	if len(f.Classes) == 0 {
		return apperr.FacetConfig("link facet requires a non-empty class list")
	}
	if len(f.Weights) == 0 && f.DefaultWeight == 0 {
		return apperr.FacetConfig("link facet requires a weight table or a non-zero default weight")
	}
	return nil
}

// WeightFor returns the discount multiplier for one linking property.
func (f *LinkPropertyFacet) WeightFor(property string) float64 {
	if w, ok := f.Weights[property]; ok {
		return w
	}
	return f.DefaultWeight
}

// MapFacet is the pseudo-facet reporting one aggregated geometry (the union
// of centroids) over all matched resources.
type MapFacet struct {
	Label string
}

func (f *MapFacet) Name() string         { return MapFacetName }
func (f *MapFacet) DisplayLabel() string { return f.Label }
func (f *MapFacet) validate() error      { return nil }

/*
Facets is a validated, ordered facet configuration.

Validation happens once, at construction, so the engine never meets an
invalid descriptor at query time. At most one link facet and one map facet
may be configured; reporting keys must be unique.
*/
type Facets struct {
	all  []Facet
	link *LinkPropertyFacet
}

// NewFacets validates a facet list eagerly.
func NewFacets(list ...Facet) (*Facets, error) {
	fs := &Facets{all: list}
	seen := make(map[string]struct{}, len(list))

	for _, f := range list {
		if err := f.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[f.Name()]; dup {
			return nil, apperr.FacetConfig("duplicate facet %q", f.Name())
		}
		seen[f.Name()] = struct{}{}

		if lf, ok := f.(*LinkPropertyFacet); ok {
			if fs.link != nil {
				return nil, apperr.FacetConfig("more than one link facet configured")
			}
			fs.link = lf
		}
	}
	return fs, nil
}

// All returns the facets in configuration order.
func (fs *Facets) All() []Facet {
	if fs == nil {
		return nil
	}
	return fs.all
}

// Discrete returns the literal and object facets, in order.
func (fs *Facets) Discrete() []Facet {
	var out []Facet
	for _, f := range fs.All() {
		switch f.(type) {
		case *LiteralFacet, *ObjectFacet:
			out = append(out, f)
		}
	}
	return out
}

// Continuous returns the continuous facets, in order.
func (fs *Facets) Continuous() []*ContinuousFacet {
	var out []*ContinuousFacet
	for _, f := range fs.All() {
		if cf, ok := f.(*ContinuousFacet); ok {
			out = append(out, cf)
		}
	}
	return out
}

// Link returns the link facet, or nil when named-entity linking is off.
func (fs *Facets) Link() *LinkPropertyFacet {
	if fs == nil {
		return nil
	}
	return fs.link
}

// HasMap reports whether the geographic pseudo-facet is configured.
func (fs *Facets) HasMap() bool {
	for _, f := range fs.All() {
		if _, ok := f.(*MapFacet); ok {
			return true
		}
	}
	return false
}

// HasMatchProperty reports whether the matched-property pseudo-facet is
// configured.
func (fs *Facets) HasMatchProperty() bool {
	for _, f := range fs.All() {
		if _, ok := f.(*MatchPropertyFacet); ok {
			return true
		}
	}
	return false
}

// # Wire form

// FacetDescriptor is the YAML/JSON wire shape of one facet: a type
// discriminator plus the superset of type-dependent fields.
type FacetDescriptor struct {
	Type          string             `yaml:"type" json:"type"`
	Name          string             `yaml:"name" json:"name"`
	Label         string             `yaml:"label" json:"label"`
	Property      string             `yaml:"property" json:"property"`
	Weights       map[string]float64 `yaml:"weights" json:"weights"`
	DefaultWeight *float64           `yaml:"defaultWeight" json:"defaultWeight"`
	Classes       []string           `yaml:"classes" json:"classes"`
	Start         []string           `yaml:"start" json:"start"`
	End           []string           `yaml:"end" json:"end"`
	Bins          int                `yaml:"bins" json:"bins"`
	Precision     int                `yaml:"precision" json:"precision"`
	Distribution  bool               `yaml:"distribution" json:"distribution"`
}

// toFacet converts one wire descriptor into its typed variant.
func (d FacetDescriptor) toFacet() (Facet, error) {
	defaultWeight := pointer.Fallback(d.DefaultWeight, NeutralWeight)

	switch d.Type {
	case "literal":
		return &LiteralFacet{
			Property:      d.Property,
			Label:         d.Label,
			Weights:       d.Weights,
			DefaultWeight: defaultWeight,
		}, nil
	case "object":
		return &ObjectFacet{
			Property:      d.Property,
			Label:         d.Label,
			Weights:       d.Weights,
			DefaultWeight: defaultWeight,
		}, nil
	case "continuous":
		name := d.Name
		if name == "" {
			name = d.Property
		}
		return &ContinuousFacet{
			FacetName:    name,
			Label:        d.Label,
			Start:        d.Start,
			End:          d.End,
			Bins:         d.Bins,
			Precision:    d.Precision,
			Distribution: d.Distribution,
		}, nil
	case "matchProperty":
		return &MatchPropertyFacet{Label: d.Label}, nil
	case "linkProperty":
		return &LinkPropertyFacet{
			Label:         d.Label,
			Classes:       d.Classes,
			Weights:       d.Weights,
			DefaultWeight: defaultWeight,
		}, nil
	case "map":
		return &MapFacet{Label: d.Label}, nil
	}
	return nil, apperr.FacetConfig("unknown facet type %q", d.Type)
}

// ParseFacets converts wire descriptors into a validated configuration.
func ParseFacets(descriptors []FacetDescriptor) (*Facets, error) {
	list := make([]Facet, 0, len(descriptors))
	for _, d := range descriptors {
		f, err := d.toFacet()
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return NewFacets(list...)
}

// LoadFacets reads the facet configuration from a YAML file. A missing path
// yields an empty configuration.
func LoadFacets(path string) (*Facets, error) {
	if path == "" {
		return NewFacets()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("search: failed to read facets file: %w", err)
	}

	var descriptors []FacetDescriptor
	if err := yaml.Unmarshal(raw, &descriptors); err != nil {
		return nil, fmt.Errorf("search: failed to parse facets file: %w", err)
	}
	return ParseFacets(descriptors)
}
