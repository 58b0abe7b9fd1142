// Copyright (c) 2026 Tessera. All rights reserved.

package graph

import (
	"sort"
	"strconv"

	"github.com/tessera-dev/tessera/internal/schema"
)

// ResourceHandle is one matched resource carrying its slice of the result
// graph. Real metadata and synthetic search-technical statements are kept
// apart so callers never see the technical ones unless they ask.
type ResourceHandle struct {
	// URI is the resource URI (base URL + numeric id).
	URI string

	metadata  []Statement
	technical []Statement
	classes   []string
	order     float64
	hasOrder  bool
}

// Metadata returns the resource's real statements, technical ones stripped.
func (r *ResourceHandle) Metadata() []Statement {
	out := make([]Statement, len(r.metadata))
	copy(out, r.metadata)
	return out
}

// Technical returns the synthetic search statements (match marker, order,
// highlight, weight) attached to this resource.
func (r *ResourceHandle) Technical() []Statement {
	out := make([]Statement, len(r.technical))
	copy(out, r.technical)
	return out
}

// Classes returns the resource's RDF classes.
func (r *ResourceHandle) Classes() []string {
	out := make([]string, len(r.classes))
	copy(out, r.classes)
	return out
}

// MatchWeight returns the search weight statement value, when present.
func (r *ResourceHandle) MatchWeight() (float64, bool) {
	for _, s := range r.technical {
		if s.Property == schema.SearchWeight {
			w, err := strconv.ParseFloat(s.Object.Text, 64)
			return w, err == nil
		}
	}
	return 0, false
}

// Result is an ordered page of resource handles plus the total match count
// extracted from the base-URL pseudo-resource.
type Result struct {
	Resources []*ResourceHandle
	// Total is the full match count, independent of the page size.
	Total int
}

// MapResources converts a result graph into ordered resource handles.
//
// Ordering follows the synthetic search-order statement's numeric value when
// present (stable), otherwise subject insertion order. The search-count
// statement attached to the base-URL pseudo-resource is extracted into
// [Result.Total] and its pseudo-resource is dropped.
func MapResources(g *Graph, reg *schema.Registry) *Result {
	res := &Result{}

	for _, subject := range g.Subjects() {
		if subject == reg.BaseURL {
			// Pseudo-resource: carries the total count, nothing else.
			if v, ok := g.First(subject, schema.SearchCount); ok {
				if n, err := strconv.Atoi(v.Text); err == nil {
					res.Total = n
				}
			}
			continue
		}

		h := &ResourceHandle{URI: subject}
		for _, s := range g.Statements(subject) {
			if schema.IsTechnical(s.Property) {
				h.technical = append(h.technical, s)
				if s.Property == schema.SearchOrder {
					if v, err := strconv.ParseFloat(s.Object.Text, 64); err == nil {
						h.order = v
						h.hasOrder = true
					}
				}
				continue
			}
			h.metadata = append(h.metadata, s)
			if s.Property == reg.Class {
				h.classes = append(h.classes, s.Object.Text)
			}
		}
		res.Resources = append(res.Resources, h)
	}

	// Stable sort: ordered handles first by their order value, unordered
	// ones keep insertion order at the tail.
	sort.SliceStable(res.Resources, func(i, j int) bool {
		a, b := res.Resources[i], res.Resources[j]
		if a.hasOrder != b.hasOrder {
			return a.hasOrder
		}
		return a.hasOrder && a.order < b.order
	})

	return res
}
