// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package metadata retrieves resource metadata from the relational store and
reconstructs it as RDF-like graphs.

The [Reader] builds one SQL statement per retrieval: a paged, ordered,
authorization-filtered id set, expanded to the requested breadth, streamed as
flat (id, property, type, lang, value) rows. Synthetic rows carry the total
match count and full-text highlights alongside the real triples.
*/
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/platform/authz"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

// Querier is the subset of pgx executors the reader needs. Both a pool and
// an open transaction satisfy it, so the search engine can run the reader
// inside its temp-table session.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Breadth selects how far metadata retrieval traverses from each matched
// resource. The modes are mutually exclusive retrieval strategies, not
// sequential states.
type Breadth string

const (
	// BreadthNone retrieves no metadata, only the synthetic rows.
	BreadthNone Breadth = "none"
	// BreadthIDs retrieves only the label triple and identifiers, the
	// cheapest mode, used for existence checks.
	BreadthIDs Breadth = "ids"
	// BreadthResource retrieves the resource's own triples, identifiers and
	// outgoing relations.
	BreadthResource Breadth = "resource"
	// BreadthNeighbors adds everything one hop away, in both directions.
	BreadthNeighbors Breadth = "neighbors"

	// The relatives modes traverse the designated parent property
	// transitively, bounded by MaxDepth.
	BreadthRelatives        Breadth = "relatives"
	BreadthRelativesOnly    Breadth = "relativesOnly"
	BreadthRelativesReverse Breadth = "relativesReverse"
	BreadthParents          Breadth = "parents"
	BreadthParentsOnly      Breadth = "parentsOnly"
	BreadthParentsReverse   Breadth = "parentsReverse"
)

// ParseBreadth validates a wire-supplied breadth mode. Empty defaults to
// resource.
func ParseBreadth(raw string) (Breadth, error) {
	if raw == "" {
		return BreadthResource, nil
	}
	switch b := Breadth(raw); b {
	case BreadthNone, BreadthIDs, BreadthResource, BreadthNeighbors,
		BreadthRelatives, BreadthRelativesOnly, BreadthRelativesReverse,
		BreadthParents, BreadthParentsOnly, BreadthParentsReverse:
		return b, nil
	}
	return "", apperr.MalformedCondition("unknown metadata breadth mode %q", raw)
}

// traversal returns the stored-function parameters (forward depth, backward
// depth, include neighbors, reverse) realizing a relatives-family mode.
// depth -1 means unlimited.
func (b Breadth) traversal(depth int) (fwd, rev int, neighbors, reverse bool) {
	switch b {
	case BreadthRelatives:
		return depth, depth, true, false
	case BreadthRelativesOnly:
		return depth, depth, false, false
	case BreadthRelativesReverse:
		return depth, depth, false, true
	case BreadthParents:
		return 0, depth, true, false
	case BreadthParentsOnly:
		return 0, depth, false, false
	case BreadthParentsReverse:
		return depth, 0, false, false
	}
	return 0, 0, false, false
}

// ReadConfig carries the paging, ordering and enrichment options of one
// retrieval.
type ReadConfig struct {
	Breadth Breadth
	// MaxDepth bounds the relatives traversal; -1 means unlimited.
	MaxDepth int
	// Offset and Limit page the matched id set. Limit <= 0 disables paging.
	Offset int
	Limit  int
	// OrderBy lists ordering properties, ascending unless prefixed with the
	// descending marker. Applied before paging.
	OrderBy []string
	// OrderLang restricts ordering values to one language when set.
	OrderLang string
	// IncludeTotal injects a synthetic count row with the unpaged total.
	IncludeTotal bool
	// HighlightPhrase injects full-text highlight rows for page members
	// matching the phrase.
	HighlightPhrase string
	// Highlight tunes the snippet rendering; zero values defer to the
	// database defaults.
	Highlight HighlightOptions
}

// HighlightOptions are the ts_headline knobs exposed per retrieval.
type HighlightOptions struct {
	// StartSel and StopSel delimit matched words in the snippet.
	StartSel string
	StopSel  string
	// MaxWords and MinWords bound the snippet length.
	MaxWords int
	MinWords int
	// MaxFragments splits the snippet into up to this many fragments.
	MaxFragments int
}

// headline renders the ts_headline options string; empty when every knob is
// at its default.
func (o HighlightOptions) headline() string {
	var opts []string
	if o.StartSel != "" {
		opts = append(opts, "StartSel="+o.StartSel)
	}
	if o.StopSel != "" {
		opts = append(opts, "StopSel="+o.StopSel)
	}
	if o.MaxWords > 0 {
		opts = append(opts, "MaxWords="+strconv.Itoa(o.MaxWords))
	}
	if o.MinWords > 0 {
		opts = append(opts, "MinWords="+strconv.Itoa(o.MinWords))
	}
	if o.MaxFragments > 0 {
		opts = append(opts, "MaxFragments="+strconv.Itoa(o.MaxFragments))
	}
	return strings.Join(opts, ", ")
}

// DescMark prefixed on an ordering property requests descending order.
const DescMark = "^"

// Reader reconstructs resource metadata graphs from the flat triple tables.
type Reader struct {
	db     Querier
	reg    *schema.Registry
	authz  authz.Provider
	logger *slog.Logger
}

// NewReader wires a reader over any pgx executor.
func NewReader(db Querier, reg *schema.Registry, authzProvider authz.Provider, logger *slog.Logger) *Reader {
	if authzProvider == nil {
		authzProvider = authz.AllowAll{}
	}
	return &Reader{db: db, reg: reg, authz: authzProvider, logger: logger}
}

/*
Read executes one metadata retrieval.

filter is the "which ids" subquery (any SELECT id FROM ... fragment, usually
compiled from search conditions). The result graph contains one subject per
retrieved resource plus, when configured, the base-URL pseudo-subject
carrying the total count.
*/
func (r *Reader) Read(ctx context.Context, filter sqlfrag.Fragment, cfg ReadConfig) (*graph.Graph, error) {
	if filter.IsEmpty() {
		return nil, apperr.MalformedCondition("metadata retrieval without an id filter")
	}

	q := r.buildQuery(r.scoped(ctx, filter), cfg)
	sql, args, err := q.Numbered(1)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		// Driver errors never leak raw; the caller sees a stable surface.
		r.logError(ctx, "metadata query failed", err)
		return nil, apperr.BadQuery(err)
	}
	defer rows.Close()

	g := graph.New()
	for rows.Next() {
		var (
			id                         int64
			property, typeTag, lang, value string
		)
		if err := rows.Scan(&id, &property, &typeTag, &lang, &value); err != nil {
			return nil, apperr.BadQuery(err)
		}
		r.addRow(g, id, property, typeTag, lang, value)
	}
	if err := rows.Err(); err != nil {
		r.logError(ctx, "metadata row stream failed", err)
		return nil, apperr.BadQuery(err)
	}
	return g, nil
}

// # Query construction

// scoped applies the authorization fragment to an id-set fragment.
func (r *Reader) scoped(ctx context.Context, ids sqlfrag.Fragment) sqlfrag.Fragment {
	authzFilter := r.authz.Filter(ctx)
	if authzFilter.IsEmpty() {
		return ids
	}
	return sqlfrag.Join("",
		ids.Wrap("SELECT a.id FROM (", ") a WHERE a.id IN ("),
		authzFilter,
	).Append(")")
}

// buildQuery assembles the full retrieval statement: page CTE, breadth
// expansion, flat-row union, synthetic rows.
func (r *Reader) buildQuery(filter sqlfrag.Fragment, cfg ReadConfig) sqlfrag.Fragment {
	page := r.pageFragment(filter, cfg)

	q := page.Wrap("WITH page AS (", ")")
	scope := r.scopeFragment(cfg)
	if !scope.IsEmpty() {
		q = sqlfrag.Join("", q, scope.Wrap(", scope AS (", ")"))
	}

	var parts []sqlfrag.Fragment
	if cfg.Breadth != BreadthNone {
		parts = append(parts, r.tripleSelects(cfg)...)
	}
	if cfg.IncludeTotal {
		parts = append(parts, filter.Wrap(
			"SELECT 0::bigint AS id, '"+schema.SearchCount+"' AS property, '"+schema.TypeCount+"' AS type, '' AS lang, (SELECT count(DISTINCT id) FROM (",
			") c)::text AS value",
		))
	}
	if len(parts) == 0 && cfg.HighlightPhrase == "" {
		// Nothing requested; keep the statement well-formed.
		parts = append(parts, sqlfrag.New(
			"SELECT page.id, ''::text, ''::text, ''::text, ''::text FROM page WHERE false",
		))
	}
	if cfg.HighlightPhrase != "" {
		headline := sqlfrag.New(
			"ts_headline('simple', f."+schema.FullTextSearch.Raw+", websearch_to_tsquery('simple', ?))",
			cfg.HighlightPhrase,
		)
		if opts := cfg.Highlight.headline(); opts != "" {
			headline = sqlfrag.New(
				"ts_headline('simple', f."+schema.FullTextSearch.Raw+", websearch_to_tsquery('simple', ?), ?)",
				cfg.HighlightPhrase, opts,
			)
		}
		parts = append(parts, sqlfrag.Join("",
			sqlfrag.New("SELECT f."+schema.FullTextSearch.ID+", '"+schema.SearchFts+"', '"+schema.TypeFts+"', '', "),
			headline,
			sqlfrag.New(
				" FROM "+schema.FullTextSearch.Table+" f"+
					" JOIN page ON page.id = f."+schema.FullTextSearch.ID+
					" WHERE f."+schema.FullTextSearch.Segments+" @@ websearch_to_tsquery('simple', ?)",
				cfg.HighlightPhrase,
			),
		))
	}

	return sqlfrag.Join("", q, sqlfrag.Join(" UNION ALL ", parts...).Wrap(" ", ""))
}

// pageFragment orders and pages the filtered id set. Ordering left-joins one
// aggregated value per ordering property.
func (r *Reader) pageFragment(filter sqlfrag.Fragment, cfg ReadConfig) sqlfrag.Fragment {
	// Condition fragments may yield duplicate ids; dedupe before paging so
	// LIMIT/OFFSET count resources, not rows.
	f := filter.Wrap("SELECT t.id FROM (SELECT DISTINCT id FROM (", ") d) t")

	var orderCols []string
	for n, property := range cfg.OrderBy {
		direction := "ASC"
		if strings.HasPrefix(property, DescMark) {
			property = strings.TrimPrefix(property, DescMark)
			direction = "DESC"
		}
		alias := "o" + strconv.Itoa(n)

		join := sqlfrag.New(
			"(SELECT "+schema.Metadata.ID+", min("+schema.Metadata.Value+") AS v"+
				" FROM "+schema.Metadata.Table+
				" WHERE "+schema.Metadata.Property+" = ?",
			property,
		)
		if cfg.OrderLang != "" {
			join = join.Append(" AND "+schema.Metadata.Lang+" = ?", cfg.OrderLang)
		}
		join = join.Append(" GROUP BY " + schema.Metadata.ID + ")")

		f = sqlfrag.Join("", f, join.Wrap(" LEFT JOIN ", " "+alias+" ON "+alias+".id = t.id"))
		orderCols = append(orderCols, alias+".v "+direction+" NULLS LAST")
	}

	if len(orderCols) > 0 {
		f = f.Append(" ORDER BY " + strings.Join(orderCols, ", ") + ", t.id")
	}
	if cfg.Limit > 0 {
		f = f.Append(" LIMIT ? OFFSET ?", cfg.Limit, cfg.Offset)
	}
	return f
}

// scopeFragment expands the page ids to the breadth scope. Empty means the
// page itself is the scope.
func (r *Reader) scopeFragment(cfg ReadConfig) sqlfrag.Fragment {
	switch cfg.Breadth {
	case BreadthNeighbors:
		return sqlfrag.New(
			"SELECT id FROM page" +
				" UNION SELECT r." + schema.Relations.TargetID + " FROM " + schema.Relations.Table + " r JOIN page ON page.id = r." + schema.Relations.ID +
				" UNION SELECT r." + schema.Relations.ID + " FROM " + schema.Relations.Table + " r JOIN page ON page.id = r." + schema.Relations.TargetID,
		)
	case BreadthRelatives, BreadthRelativesOnly, BreadthRelativesReverse,
		BreadthParents, BreadthParentsOnly, BreadthParentsReverse:
		fwd, rev, neighbors, reverse := cfg.Breadth.traversal(cfg.MaxDepth)
		return sqlfrag.New(
			"SELECT rel.id FROM page, "+schema.RelativesFunc+"(page.id, ?, ?, ?, ?, ?) rel",
			r.reg.Parent, fwd, rev, neighbors, reverse,
		)
	}
	return sqlfrag.Empty()
}

// tripleSelects builds the flat-row selects over the breadth scope, all
// shaped as (id, property, type, lang, value).
func (r *Reader) tripleSelects(cfg ReadConfig) []sqlfrag.Fragment {
	source := "page"
	switch cfg.Breadth {
	case BreadthIDs, BreadthResource:
	default:
		source = "scope"
	}

	m := sqlfrag.New(
		"SELECT m." + schema.Metadata.ID + ", m." + schema.Metadata.Property + ", m." + schema.Metadata.Type +
			", m." + schema.Metadata.Lang + ", m." + schema.Metadata.Value +
			" FROM " + schema.Metadata.Table + " m JOIN " + source + " ON " + source + ".id = m." + schema.Metadata.ID,
	)
	if cfg.Breadth == BreadthIDs {
		// Only the label triple: the cheapest existence-check shape.
		m = m.Append(" WHERE m."+schema.Metadata.Property+" = ?", r.reg.Label)
	}

	identifiers := sqlfrag.New(
		"SELECT i."+schema.Identifiers.ID+", ?, '"+schema.TypeID+"', '', i."+schema.Identifiers.IDs+
			" FROM "+schema.Identifiers.Table+" i JOIN "+source+" ON "+source+".id = i."+schema.Identifiers.ID,
		r.reg.ID,
	)

	parts := []sqlfrag.Fragment{m, identifiers}
	if cfg.Breadth != BreadthIDs {
		parts = append(parts, sqlfrag.New(
			"SELECT r."+schema.Relations.ID+", r."+schema.Relations.Property+", '"+schema.TypeRelation+"', '', r."+schema.Relations.TargetID+"::text"+
				" FROM "+schema.Relations.Table+" r JOIN "+source+" ON "+source+".id = r."+schema.Relations.ID,
		))
	}
	return parts
}

// # Row conversion

// addRow converts one flat row into a graph statement, dispatching on the
// row's type tag.
func (r *Reader) addRow(g *graph.Graph, id int64, property, typeTag, lang, value string) {
	subject := r.reg.ResourceURI(id)

	switch typeTag {
	case schema.TypeID:
		g.Add(subject, property, graph.Identifier(value))
	case schema.TypeRelation:
		targetID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return
		}
		g.Add(subject, property, graph.Resource(r.reg.ResourceURI(targetID)))
	case schema.TypeURI:
		g.Add(subject, property, graph.Resource(value))
	case schema.TypeGeom:
		// Geometries travel as plain strings.
		g.Add(subject, property, graph.Literal(value, "", ""))
	case schema.TypeCount:
		// The count row belongs to the base-URL pseudo-resource.
		g.Add(r.reg.BaseURL, property, graph.Literal(value, "", schema.TypeInteger))
	case schema.TypeFts:
		g.Add(subject, property, graph.Literal(value, "", ""))
	default:
		g.Add(subject, property, graph.Literal(value, lang, typeTag))
	}
}

// # Identifier resolution

// Resolve maps an external identifier to the internal numeric id. Zero
// matches and multiple matches are distinct error conditions.
func (r *Reader) Resolve(ctx context.Context, identifier string) (int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		schema.Identifiers.ID, schema.Identifiers.Table, schema.Identifiers.IDs)

	rows, err := r.db.Query(ctx, query, identifier)
	if err != nil {
		r.logError(ctx, "identifier resolution failed", err)
		return 0, apperr.BadQuery(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, apperr.BadQuery(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, apperr.BadQuery(err)
	}

	switch len(ids) {
	case 0:
		return 0, apperr.NotFound(identifier)
	case 1:
		return ids[0], nil
	}
	return 0, apperr.Ambiguous(identifier, len(ids))
}

func (r *Reader) logError(ctx context.Context, msg string, err error) {
	if r.logger != nil {
		r.logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	}
}
