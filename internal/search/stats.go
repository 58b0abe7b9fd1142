// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/pointer"
)

// ValueCount is one discrete facet bucket.
type ValueCount struct {
	Value string `json:"value"`
	// Label is the resolved human-readable label for object facet values.
	Label string `json:"label,omitempty"`
	Count int64  `json:"count"`
}

// FacetStats is the aggregate report of one facet over the match set.
type FacetStats struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type"`

	Values    []ValueCount `json:"values,omitempty"`
	Histogram *Histogram   `json:"histogram,omitempty"`
	// Geometry is the aggregated centroid collection of the map facet, WKT.
	Geometry string `json:"geometry,omitempty"`
}

// Statistics is the full facet report of one search.
type Statistics struct {
	Total  int64        `json:"total"`
	Facets []FacetStats `json:"facets"`
}

// LabelCache memoizes resolved object-facet labels across searches. Safe for
// concurrent use.
type LabelCache struct {
	cache *lru.Cache[string, string]
}

// NewLabelCache builds a bounded label cache.
func NewLabelCache(size int) (*LabelCache, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LabelCache{cache: c}, nil
}

func (lc *LabelCache) get(key string) (string, bool) {
	if lc == nil {
		return "", false
	}
	return lc.cache.Get(key)
}

func (lc *LabelCache) put(key, label string) {
	if lc != nil {
		lc.cache.Add(key, label)
	}
}

// facetType names a facet's wire type for the statistics report.
func facetType(f Facet) string {
	switch f.(type) {
	case *LiteralFacet:
		return "literal"
	case *ObjectFacet:
		return "object"
	case *ContinuousFacet:
		return "continuous"
	case *MatchPropertyFacet:
		return "matchProperty"
	case *LinkPropertyFacet:
		return "linkProperty"
	case *MapFacet:
		return "map"
	}
	return ""
}

/*
Stats computes the configured facet statistics from the live match table.
Valid after Search and until Close; runs after the zero-weight cleanup, so
excluded rows never show up in the report.
*/
func (e *Engine) Stats(ctx context.Context, labels *LabelCache) (*Statistics, error) {
	stats := &Statistics{Total: e.total}

	for _, f := range e.facets.All() {
		fs := FacetStats{Name: f.Name(), Label: f.DisplayLabel(), Type: facetType(f)}
		var err error

		switch facet := f.(type) {
		case *LiteralFacet:
			fs.Values, err = e.discreteCounts(ctx, facet.Name())
		case *ObjectFacet:
			fs.Values, err = e.discreteCounts(ctx, facet.Name())
			if err == nil {
				err = e.resolveLabels(ctx, fs.Values, labels)
			}
		case *ContinuousFacet:
			fs.Histogram, err = e.continuousHistogram(ctx, facet)
		case *MatchPropertyFacet:
			fs.Values, err = e.columnCounts(ctx, "property", "link_property IS NULL")
		case *LinkPropertyFacet:
			fs.Values, err = e.columnCounts(ctx, "link_property", "true")
		case *MapFacet:
			fs.Geometry, err = e.mapGeometry(ctx)
		}
		if err != nil {
			return nil, err
		}
		stats.Facets = append(stats.Facets, fs)
	}
	return stats, nil
}

// discreteCounts reports value -> distinct-resource counts for one facet.
func (e *Engine) discreteCounts(ctx context.Context, facet string) ([]ValueCount, error) {
	rows, err := e.tx.Query(ctx,
		"SELECT value, count(DISTINCT id) FROM "+matchesTable+
			" WHERE facet = $1 AND value IS NOT NULL"+
			" GROUP BY value ORDER BY count(DISTINCT id) DESC, value",
		facet,
	)
	if err != nil {
		return nil, e.badQuery(ctx, "facet count query failed", err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, apperr.BadQuery(err)
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.BadQuery(err)
	}
	return out, nil
}

// columnCounts reports distinct-resource counts grouped by one match-table
// column, for the match-property and link-property pseudo-facets.
func (e *Engine) columnCounts(ctx context.Context, column, extra string) ([]ValueCount, error) {
	rows, err := e.tx.Query(ctx,
		"SELECT "+column+", count(DISTINCT id) FROM "+matchesTable+
			" WHERE "+column+" IS NOT NULL AND "+extra+
			" GROUP BY "+column+" ORDER BY count(DISTINCT id) DESC, "+column,
	)
	if err != nil {
		return nil, e.badQuery(ctx, "pseudo-facet count query failed", err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, apperr.BadQuery(err)
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.BadQuery(err)
	}
	return out, nil
}

// continuousHistogram bins the facet's value ranges in memory.
func (e *Engine) continuousHistogram(ctx context.Context, facet *ContinuousFacet) (*Histogram, error) {
	rows, err := e.tx.Query(ctx,
		"SELECT lower, upper FROM "+matchesTable+
			" WHERE facet = $1 AND lower IS NOT NULL AND upper IS NOT NULL",
		facet.Name(),
	)
	if err != nil {
		return nil, e.badQuery(ctx, "continuous facet query failed", err)
	}
	defer rows.Close()

	var ranges []Range
	for rows.Next() {
		var r Range
		if err := rows.Scan(&r.Lower, &r.Upper); err != nil {
			return nil, apperr.BadQuery(err)
		}
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.BadQuery(err)
	}
	if len(ranges) == 0 {
		return nil, nil
	}

	h := BuildHistogram(ranges, facet.Bins, facet.Precision, e.cfg.MaxFacetBins)
	if !facet.Distribution {
		h.Bins = nil
	}
	return &h, nil
}

// resolveLabels fills the human-readable labels of object facet values,
// preferring the requested language, via the shared cache.
func (e *Engine) resolveLabels(ctx context.Context, values []ValueCount, labels *LabelCache) error {
	for n := range values {
		key := values[n].Value + "\x00" + e.language
		if label, ok := labels.get(key); ok {
			values[n].Label = label
			continue
		}

		var label *string
		err := e.tx.QueryRow(ctx,
			"SELECT m."+schema.Metadata.Value+
				" FROM "+schema.Identifiers.Table+" i"+
				" JOIN "+schema.Metadata.Table+" m ON m."+schema.Metadata.ID+" = i."+schema.Identifiers.ID+
				" WHERE i."+schema.Identifiers.IDs+" = $1 AND m."+schema.Metadata.Property+" = $2"+
				" ORDER BY (m."+schema.Metadata.Lang+" = $3) DESC, m."+schema.Metadata.Lang+
				" LIMIT 1",
			values[n].Value, e.reg.Label, e.language,
		).Scan(&label)
		if err != nil {
			// A missing label is not an error; the identifier stands alone.
			continue
		}
		if label != nil {
			values[n].Label = *label
			labels.put(key, *label)
		}
	}
	return nil
}

// mapGeometry aggregates the matched geometries into one centroid
// collection.
func (e *Engine) mapGeometry(ctx context.Context) (string, error) {
	var geom *string
	err := e.tx.QueryRow(ctx,
		"SELECT ST_AsText(ST_Collect(ST_Centroid("+schema.SpatialSearch.Geom+")))"+
			" FROM "+schema.SpatialSearch.Table+
			" WHERE "+schema.SpatialSearch.ID+" IN (SELECT DISTINCT id FROM "+matchesTable+")",
	).Scan(&geom)
	if err != nil {
		return "", e.badQuery(ctx, "map facet query failed", err)
	}
	// ST_Collect over an empty match set yields NULL.
	return pointer.Val(geom), nil
}
