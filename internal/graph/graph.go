// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package graph holds the in-memory representation of resource metadata
reconstructed from flat relational rows, and the mapper exposing it as
ordered resource handles.

The representation is deliberately minimal: subjects in insertion order, each
carrying (property, value) statements. RDF serialization is the concern of
external consumers; this type only has to preserve what the relational rows
carry, including the synthetic search-technical statements.
*/
package graph

// Kind discriminates the three value shapes a statement can carry.
type Kind int

const (
	// KindLiteral is a typed literal with optional language or datatype.
	KindLiteral Kind = iota
	// KindResource is a reference to another resource by URI.
	KindResource
	// KindIdentifier is an external identifier URI of the subject itself.
	KindIdentifier
)

// Value is one statement object.
//
// Lang and Datatype are mutually exclusive: per RDF literal rules a
// language-tagged literal carries no explicit datatype.
type Value struct {
	Kind     Kind
	Text     string
	Lang     string
	Datatype string
}

// Literal constructs a typed literal value. When lang is non-empty the
// datatype is dropped.
func Literal(text, lang, datatype string) Value {
	if lang != "" {
		datatype = ""
	}
	return Value{Kind: KindLiteral, Text: text, Lang: lang, Datatype: datatype}
}

// Resource constructs a resource-reference value.
func Resource(uri string) Value { return Value{Kind: KindResource, Text: uri} }

// Identifier constructs an identifier value.
func Identifier(uri string) Value { return Value{Kind: KindIdentifier, Text: uri} }

// Statement is one (property, object) pair on a subject.
type Statement struct {
	Property string
	Object   Value
}

// Graph is a mutable subject -> statements map preserving subject insertion
// order. It is not safe for concurrent mutation.
type Graph struct {
	order []string
	nodes map[string][]Statement
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string][]Statement)}
}

// Add appends a statement to a subject, registering the subject on first use.
func (g *Graph) Add(subject, property string, object Value) {
	if _, ok := g.nodes[subject]; !ok {
		g.order = append(g.order, subject)
	}
	g.nodes[subject] = append(g.nodes[subject], Statement{Property: property, Object: object})
}

// Subjects returns subjects in insertion order.
func (g *Graph) Subjects() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Statements returns all statements of a subject in insertion order.
func (g *Graph) Statements(subject string) []Statement {
	stmts := g.nodes[subject]
	out := make([]Statement, len(stmts))
	copy(out, stmts)
	return out
}

// First returns the first object for (subject, property).
func (g *Graph) First(subject, property string) (Value, bool) {
	for _, s := range g.nodes[subject] {
		if s.Property == property {
			return s.Object, true
		}
	}
	return Value{}, false
}

// All returns every object for (subject, property).
func (g *Graph) All(subject, property string) []Value {
	var out []Value
	for _, s := range g.nodes[subject] {
		if s.Property == property {
			out = append(out, s.Object)
		}
	}
	return out
}

// Len returns the number of subjects.
func (g *Graph) Len() int { return len(g.order) }
