// Copyright (c) 2026 Tessera. All rights reserved.

package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Technical property names carried in result graphs purely to transport
// search metadata. They use the search:// scheme so they can never collide
// with real repository vocabulary, and are stripped before a resource's
// metadata is exposed.
const (
	SearchMatch  = "search://match"
	SearchOrder  = "search://order"
	SearchCount  = "search://count"
	SearchFts    = "search://fts"
	SearchWeight = "search://weight"
	SearchLink   = "search://link"
)

// BinarySearch is the synthetic property routing a full-text condition to
// the binary payload index instead of metadata.
const BinarySearch = "BINARY"

// Registry is the immutable mapping from logical concepts to the concrete
// RDF property names used by one repository instance.
//
// It is resolved once per connection (from the repository's vocabulary
// configuration) and shared read-only by every component.
type Registry struct {
	// BaseURL is the repository's resource namespace; internal numeric ids
	// concatenate onto it to form resource URIs.
	BaseURL string `yaml:"baseUrl"`

	// ID is the identifier property (resource URI -> external identifiers).
	ID string `yaml:"id"`
	// Parent is the designated hierarchy property traversed by the
	// relatives breadth modes and parent scoping.
	Parent string `yaml:"parent"`
	// Label is the human-readable title property, used for entity label
	// resolution and as the cheapest "ids" breadth triple.
	Label string `yaml:"label"`
	// Class is the rdf:type property.
	Class string `yaml:"class"`
	// ModificationDate keys the initial-facet cache.
	ModificationDate string `yaml:"modificationDate"`
	// ACL is the property carrying read-access roles; empty when the
	// repository has no row-level access control.
	ACL string `yaml:"acl"`

	// LiteralOnly lists properties that must always compile as string
	// literals regardless of operator or value shape.
	LiteralOnly []string `yaml:"literalOnly"`

	literalOnly map[string]struct{}
}

// Load reads a registry from a YAML vocabulary file and validates it.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to read vocabulary file: %w", err)
	}

	r := &Registry{}
	if err := yaml.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("schema: failed to parse vocabulary file: %w", err)
	}

	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

// New validates and finalizes a registry built in code (tests, embedders).
func New(r Registry) (*Registry, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	return &r, nil
}

// init validates required bindings and builds the literal-only lookup set.
func (r *Registry) init() error {
	required := map[string]string{
		"baseUrl": r.BaseURL,
		"id":      r.ID,
		"parent":  r.Parent,
		"label":   r.Label,
		"class":   r.Class,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("schema: missing required vocabulary binding %q", name)
		}
	}
	if !strings.HasSuffix(r.BaseURL, "/") {
		r.BaseURL += "/"
	}

	r.literalOnly = make(map[string]struct{}, len(r.LiteralOnly))
	for _, p := range r.LiteralOnly {
		r.literalOnly[p] = struct{}{}
	}
	return nil
}

// ResourceURI forms the resource URI for an internal numeric id.
func (r *Registry) ResourceURI(id int64) string {
	return fmt.Sprintf("%s%d", r.BaseURL, id)
}

// IsLiteralOnly reports whether a property is pinned to string-literal
// compilation for this repository.
func (r *Registry) IsLiteralOnly(property string) bool {
	_, ok := r.literalOnly[property]
	return ok
}

// IsTechnical reports whether a property is a synthetic search-metadata
// property rather than real resource state.
func IsTechnical(property string) bool {
	switch property {
	case SearchMatch, SearchOrder, SearchCount, SearchFts, SearchWeight, SearchLink:
		return true
	}
	return false
}
