// Copyright (c) 2026 Tessera. All rights reserved.

package api

import (
	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/pointer"
	"github.com/tessera-dev/tessera/pkg/slice"
)

// statementPayload is the JSON shape of one metadata statement.
type statementPayload struct {
	Property string `json:"property"`
	Value    string `json:"value"`
	Kind     string `json:"kind"`
	Lang     string `json:"lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// resourcePayload is the JSON shape of one resource with its metadata slice.
type resourcePayload struct {
	URI        string             `json:"uri"`
	Weight     *float64           `json:"weight,omitempty"`
	Classes    []string           `json:"classes,omitempty"`
	Metadata   []statementPayload `json:"metadata"`
	Highlights []string           `json:"highlights,omitempty"`
}

func kindName(k graph.Kind) string {
	switch k {
	case graph.KindResource:
		return "resource"
	case graph.KindIdentifier:
		return "identifier"
	}
	return "literal"
}

func toStatement(s graph.Statement) statementPayload {
	return statementPayload{
		Property: s.Property,
		Value:    s.Object.Text,
		Kind:     kindName(s.Object.Kind),
		Lang:     s.Object.Lang,
		Datatype: s.Object.Datatype,
	}
}

// toResources converts ordered resource handles into the wire shape,
// extracting the weight and highlight snippets from the technical statements.
func toResources(res *graph.Result) []resourcePayload {
	return slice.Map(res.Resources, func(h *graph.ResourceHandle) resourcePayload {
		p := resourcePayload{
			URI:      h.URI,
			Classes:  h.Classes(),
			Metadata: slice.Map(h.Metadata(), toStatement),
		}
		if w, ok := h.MatchWeight(); ok {
			p.Weight = pointer.To(w)
		}
		for _, s := range h.Technical() {
			if s.Property == schema.SearchFts {
				p.Highlights = append(p.Highlights, s.Object.Text)
			}
		}
		return p
	})
}

// toGraph converts a plain metadata graph (no ranking) into the wire shape,
// skipping the base-URL pseudo-subject and technical statements.
func toGraph(g *graph.Graph, reg *schema.Registry) []resourcePayload {
	var out []resourcePayload
	for _, subject := range g.Subjects() {
		if subject == reg.BaseURL {
			continue
		}
		p := resourcePayload{URI: subject}
		for _, s := range g.Statements(subject) {
			if schema.IsTechnical(s.Property) {
				if s.Property == schema.SearchFts {
					p.Highlights = append(p.Highlights, s.Object.Text)
				}
				continue
			}
			p.Metadata = append(p.Metadata, toStatement(s))
		}
		out = append(out, p)
	}
	return out
}
