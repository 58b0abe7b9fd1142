// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package schema defines the relational layout consumed by the search core and
the registry of logical-to-concrete RDF property bindings.

Architecture:

  - Physical names: one definition struct per consumed table, so SQL builders
    never embed raw column strings.
  - Logical names: a [Registry] resolved once per repository connection and
    shared read-only by every component.

The tables themselves are owned by the repository ingestion service; this
package only reads them.
*/
package schema

// MetadataTable represents the flat triple table 'metadata'.
type MetadataTable struct {
	Table    string
	ID       string
	Property string
	Type     string
	Lang     string
	Value    string
	ValueN   string
	ValueT   string
	MID      string
}

// Metadata is the schema definition for the metadata table. One row per
// literal triple; value_n and value_t carry the numeric and timestamp
// projections of value when the type allows it.
var Metadata = MetadataTable{
	Table:    "metadata",
	ID:       "id",
	Property: "property",
	Type:     "type",
	Lang:     "lang",
	Value:    "value",
	ValueN:   "value_n",
	ValueT:   "value_t",
	MID:      "mid",
}

// IdentifiersTable represents the 'identifiers' table.
type IdentifiersTable struct {
	Table string
	ID    string
	IDs   string
}

// Identifiers maps internal numeric ids to external identifier URIs.
var Identifiers = IdentifiersTable{
	Table: "identifiers",
	ID:    "id",
	IDs:   "ids",
}

// RelationsTable represents the 'relations' table.
type RelationsTable struct {
	Table    string
	ID       string
	Property string
	TargetID string
}

// Relations holds resource-to-resource triples (subject id, property, object id).
var Relations = RelationsTable{
	Table:    "relations",
	ID:       "id",
	Property: "property",
	TargetID: "target_id",
}

// FullTextSearchTable represents the 'full_text_search' table.
type FullTextSearchTable struct {
	Table    string
	ID       string
	IID      string
	MID      string
	FTSID    string
	Property string
	Raw      string
	Segments string
}

// FullTextSearch holds precomputed tsvector segments. iid points at an
// identifier row, mid at a metadata row; both NULL means the row indexes
// binary payload content.
var FullTextSearch = FullTextSearchTable{
	Table:    "full_text_search",
	ID:       "id",
	IID:      "iid",
	MID:      "mid",
	FTSID:    "ftsid",
	Property: "property",
	Raw:      "raw",
	Segments: "segments",
}

// SpatialSearchTable represents the 'spatial_search' table.
type SpatialSearchTable struct {
	Table string
	ID    string
	MID   string
	Geom  string
}

// SpatialSearch holds one PostGIS geometry per spatial triple.
var SpatialSearch = SpatialSearchTable{
	Table: "spatial_search",
	ID:    "id",
	MID:   "mid",
	Geom:  "geom",
}

// Stored functions required by the core. tessera_relatives returns ids
// reachable from a root along one relation property, parameterized by
// (root id, property, max forward depth, max backward depth, include
// neighbors, reverse); tessera_relatives_metadata is its metadata-returning
// counterpart. Shipped in data/migrations.
const (
	RelativesFunc         = "tessera_relatives"
	RelativesMetadataFunc = "tessera_relatives_metadata"
)

// Row type tags used in the metadata/type column and the flat result stream.
// COUNT and FTS tag synthetic rows injected by the reader; they never occur
// in the metadata table itself.
const (
	TypeID       = "ID"
	TypeRelation = "REL"
	TypeURI      = "URI"
	TypeGeom     = "GEOM"
	TypeCount    = "COUNT"
	TypeFts      = "FTS"
	TypeString   = "http://www.w3.org/2001/XMLSchema#string"
	TypeInteger  = "http://www.w3.org/2001/XMLSchema#integer"
	TypeDecimal  = "http://www.w3.org/2001/XMLSchema#decimal"
	TypeDate     = "http://www.w3.org/2001/XMLSchema#date"
	TypeDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
	TypeBoolean  = "http://www.w3.org/2001/XMLSchema#boolean"
)
