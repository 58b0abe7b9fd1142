// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package search implements the weighted search and ranking engine.

A search runs as a three-stage temporary-table pipeline inside one explicit
transaction on a dedicated connection:

  - Stage A materializes _filters: the intersection of every structural
    condition's id set, the parent-scoping descendant sets and the
    authorization filter.
  - Stage B materializes _matches: full-text and spatial match candidates
    (combined conjunctively at the id level when both are active), optionally
    expanded through named-entity links, falling back to _filters for purely
    structural searches.
  - Stage C augments _matches with facet rows, multiplies the configured
    property weights in and deletes rows whose weight collapsed to zero.

The temporary tables live for the transaction only; [Engine.Close] rolls
back, never commits. One engine owns its connection exclusively until closed.
*/
package search

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/metadata"
	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/platform/authz"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

// Session-local temporary table names. Fixed names are safe because one
// engine owns its connection exclusively.
const (
	filtersTable = "_filters"
	matchesTable = "_matches"
)

// Config carries the tunable weighting and compilation parameters.
type Config struct {
	// StringIndexBound is the substring length of the partial index on
	// metadata string values.
	StringIndexBound int
	// MinTimestampYear is the earliest year the timestamp column can hold.
	MinTimestampYear int

	// ExactMatchWeight multiplies full-text candidates whose raw indexed
	// text equals the phrase verbatim.
	ExactMatchWeight float64
	// LangMatchWeight multiplies full-text candidates whose language equals
	// the requested language.
	LangMatchWeight float64

	// PropertyWeights up/down-weights individual matched properties; absent
	// properties fall back to DefaultPropertyWeight.
	PropertyWeights       map[string]float64
	DefaultPropertyWeight float64

	// MaxFacetBins caps continuous-facet histogram resolution.
	MaxFacetBins int
}

// DefaultConfig returns the neutral weighting configuration.
func DefaultConfig() Config {
	return Config{
		StringIndexBound:      1000,
		MinTimestampYear:      -4713,
		ExactMatchWeight:      10,
		LangMatchWeight:       2,
		DefaultPropertyWeight: NeutralWeight,
		MaxFacetBins:          20,
	}
}

// Request describes one search invocation.
type Request struct {
	// Conditions are the structural predicates, intersected in Stage A.
	Conditions []*Condition
	// Phrase activates the full-text signal.
	Phrase string
	// Language scopes full-text language weighting and facet labels.
	Language string
	// Spatial activates the spatial signal.
	Spatial *Condition
	// ParentIDs scope the search to the descendants of these resources.
	ParentIDs []int64
	// Facets configures weighting and statistics; nil means none.
	Facets *Facets
	// MatchAll searches the entire store with no signals or filters, used
	// for store-wide statistics. Mutually exclusive with everything above.
	MatchAll bool
}

// empty reports whether the request carries no predicate at all.
func (r Request) empty() bool {
	return len(r.Conditions) == 0 && r.Phrase == "" && r.Spatial == nil &&
		len(r.ParentIDs) == 0 && !r.MatchAll
}

// Engine executes one search and serves pages and statistics from its
// temporary match tables until closed. Not safe for concurrent use.
type Engine struct {
	conn   *pgxpool.Conn
	tx     pgx.Tx
	reg    *schema.Registry
	authz  authz.Provider
	cfg    Config
	logger *slog.Logger

	facets     *Facets
	phrase     string
	language   string
	hasFilters bool
	total      int64
	closed     bool
}

// Begin acquires a dedicated connection and opens the engine's transaction.
// The caller must Close the engine to release the connection.
func Begin(ctx context.Context, pool *pgxpool.Pool, reg *schema.Registry, authzProvider authz.Provider, cfg Config, logger *slog.Logger) (*Engine, error) {
	if authzProvider == nil {
		authzProvider = authz.AllowAll{}
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// Defensive reset: a crashed search may have left a transaction open on
	// this connection.
	_, _ = conn.Exec(ctx, "ROLLBACK")

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, apperr.Internal(err)
	}

	return &Engine{
		conn:   conn,
		tx:     tx,
		reg:    reg,
		authz:  authzProvider,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Close rolls back the transaction and releases the connection. The
// temporary tables are never committed. Safe to call twice.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.tx.Rollback(ctx)
	e.conn.Release()
	if err != nil && err != pgx.ErrTxClosed {
		return apperr.Internal(err)
	}
	return nil
}

// Total returns the number of distinct matched resources. Valid after
// Search.
func (e *Engine) Total() int64 { return e.total }

// compileCtx builds the condition-compilation context from the engine's
// configuration.
func (e *Engine) compileCtx() CompileCtx {
	return CompileCtx{
		Schema:           e.reg,
		StringIndexBound: e.cfg.StringIndexBound,
		MinTimestampYear: e.cfg.MinTimestampYear,
	}
}

/*
Search runs the staged pipeline for one request. After it returns, pages and
statistics can be served until the engine is closed.
*/
func (e *Engine) Search(ctx context.Context, req Request) error {
	if req.empty() {
		return apperr.MalformedCondition("search without conditions, phrase, spatial predicate or scope")
	}

	e.facets = req.Facets
	if e.facets == nil {
		e.facets, _ = NewFacets()
	}
	e.phrase = req.Phrase
	e.language = req.Language

	if err := e.stageFilters(ctx, req); err != nil {
		return err
	}
	if err := e.stageMatches(ctx, req); err != nil {
		return err
	}
	if err := e.stageFacets(ctx); err != nil {
		return err
	}

	// Null-weight facet rows are informational; a resource counts only when
	// at least one weighted row survived the zero-weight cleanup, matching
	// what the ranked page can serve.
	row := e.tx.QueryRow(ctx, "SELECT count(DISTINCT id) FROM "+matchesTable+" WHERE weight > 0")
	if err := row.Scan(&e.total); err != nil {
		return e.badQuery(ctx, "match count failed", err)
	}
	return nil
}

// # Stage A

// stageFilters materializes _filters as the join intersection of every
// condition id set, the parent descendant sets and the authorization filter.
// No statement runs when nothing restricts the candidate set.
func (e *Engine) stageFilters(ctx context.Context, req Request) error {
	var parts []sqlfrag.Fragment

	for _, c := range req.Conditions {
		f, err := c.Compile(e.compileCtx())
		if err != nil {
			return err
		}
		parts = append(parts, f)
	}

	if len(req.ParentIDs) > 0 {
		roots := make([]sqlfrag.Fragment, 0, len(req.ParentIDs))
		for _, id := range req.ParentIDs {
			// Descendants only, unlimited depth.
			roots = append(roots, sqlfrag.New(
				"SELECT rel.id FROM "+schema.RelativesFunc+"(?, ?, ?, 0, false, false) rel",
				id, e.reg.Parent, -1,
			))
		}
		parts = append(parts, sqlfrag.Union(roots...))
	}

	if authzFilter := e.authz.Filter(ctx); !authzFilter.IsEmpty() {
		parts = append(parts, authzFilter)
	}

	if len(parts) == 0 {
		return nil
	}

	stmt := parts[0].Wrap(
		"CREATE TEMPORARY TABLE "+filtersTable+" ON COMMIT DROP AS SELECT DISTINCT f0.id FROM (",
		") f0",
	)
	for n, p := range parts[1:] {
		alias := "f" + strconv.Itoa(n+1)
		stmt = sqlfrag.Join("", stmt, p.Wrap(" JOIN (", ") "+alias+" ON "+alias+".id = f0.id"))
	}

	if err := e.exec(ctx, stmt); err != nil {
		return err
	}
	e.hasFilters = true
	return nil
}

// # Stage B

const matchesDDL = "CREATE TEMPORARY TABLE " + matchesTable + ` (
	id bigint NOT NULL,
	ftsid bigint,
	property text,
	link_property text,
	facet text,
	value text,
	lower double precision,
	upper double precision,
	weight double precision
) ON COMMIT DROP`

// stageMatches materializes the match-candidate rows.
func (e *Engine) stageMatches(ctx context.Context, req Request) error {
	if err := e.exec(ctx, sqlfrag.New(matchesDDL)); err != nil {
		return err
	}

	hasFts := req.Phrase != ""
	hasSpatial := req.Spatial != nil

	if hasFts {
		if err := e.insertFtsSignal(ctx, req); err != nil {
			return err
		}
	}
	if hasSpatial {
		if err := e.insertSpatialSignal(ctx, req); err != nil {
			return err
		}
	}

	switch {
	case hasFts && hasSpatial:
		// Signals combine conjunctively at the id level: a row survives only
		// when its id appears in both signals' candidate sets.
		err := e.exec(ctx, sqlfrag.New(
			"DELETE FROM "+matchesTable+" AS m WHERE"+
				" NOT EXISTS (SELECT 1 FROM "+matchesTable+" t WHERE t.id = m.id AND t.ftsid IS NOT NULL)"+
				" OR NOT EXISTS (SELECT 1 FROM "+matchesTable+" t WHERE t.id = m.id AND t.facet = ?)",
			MapFacetName,
		))
		if err != nil {
			return err
		}
	case !hasFts && !hasSpatial:
		if err := e.insertFallback(ctx, req); err != nil {
			return err
		}
	}

	if link := e.facets.Link(); link != nil {
		return e.insertLinkExpansion(ctx, link)
	}
	return nil
}

// insertFtsSignal inserts full-text candidates. A candidate matches the
// parsed web-search query or carries the phrase as a literal substring; its
// weight multiplies the exact-phrase and language bonuses.
func (e *Engine) insertFtsSignal(ctx context.Context, req Request) error {
	f := sqlfrag.New(
		"INSERT INTO "+matchesTable+" (id, ftsid, property, weight)"+
			" SELECT f."+schema.FullTextSearch.ID+", f."+schema.FullTextSearch.FTSID+", f."+schema.FullTextSearch.Property+","+
			" (CASE WHEN f."+schema.FullTextSearch.Raw+" = ? THEN ? ELSE 1 END)",
		req.Phrase, e.cfg.ExactMatchWeight,
	)
	if req.Language != "" {
		f = f.Append(" * (CASE WHEN m."+schema.Metadata.Lang+" = ? THEN ? ELSE 1 END)",
			req.Language, e.cfg.LangMatchWeight)
	}
	f = f.Append(" FROM " + schema.FullTextSearch.Table + " f")
	if req.Language != "" {
		f = f.Append(" LEFT JOIN " + schema.Metadata.Table + " m ON m." + schema.Metadata.MID + " = f." + schema.FullTextSearch.MID)
	}
	f = f.Append(
		" WHERE (f."+schema.FullTextSearch.Segments+" @@ websearch_to_tsquery('simple', ?)"+
			" OR f."+schema.FullTextSearch.Raw+" ILIKE ?)",
		QuoteURIs(req.Phrase), "%"+req.Phrase+"%",
	)
	return e.exec(ctx, e.filterRestricted(f, "f."+schema.FullTextSearch.ID))
}

// insertSpatialSignal inserts spatial candidates at weight 1.0, tagged as
// map facet rows carrying the raw geometry.
func (e *Engine) insertSpatialSignal(ctx context.Context, req Request) error {
	sp, err := req.Spatial.Compile(e.compileCtx())
	if err != nil {
		return err
	}

	f := sqlfrag.New(
		"INSERT INTO "+matchesTable+" (id, facet, value, weight)"+
			" SELECT s."+schema.SpatialSearch.ID+", ?, ST_AsText(s."+schema.SpatialSearch.Geom+"), 1.0"+
			" FROM "+schema.SpatialSearch.Table+" s WHERE s."+schema.SpatialSearch.ID+" IN (",
		MapFacetName,
	)
	f = sqlfrag.Join("", f, sp).Append(")")
	return e.exec(ctx, e.filterRestricted(f, "s."+schema.SpatialSearch.ID))
}

// insertFallback materializes a pure structural search: every id passing the
// filters (or, for MatchAll, every resource) at neutral weight.
func (e *Engine) insertFallback(ctx context.Context, req Request) error {
	if e.hasFilters {
		return e.exec(ctx, sqlfrag.New(
			"INSERT INTO "+matchesTable+" (id, weight) SELECT id, 1.0 FROM "+filtersTable,
		))
	}
	if req.MatchAll {
		return e.exec(ctx, sqlfrag.New(
			"INSERT INTO "+matchesTable+" (id, weight) SELECT DISTINCT "+schema.Identifiers.ID+", 1.0 FROM "+schema.Identifiers.Table,
		))
	}
	return apperr.MalformedCondition("search without any active signal or filter")
}

// insertLinkExpansion bleeds matches found on classified named entities onto
// the resources referencing them, discounted by the link property's weight.
func (e *Engine) insertLinkExpansion(ctx context.Context, link *LinkPropertyFacet) error {
	weightExpr, exprArgs, weightJoin, joinArgs := weightLookup("w", "r."+schema.Relations.Property, link.Weights, link.DefaultWeight)

	f := sqlfrag.New(
		"INSERT INTO "+matchesTable+" (id, ftsid, property, link_property, weight)"+
			" SELECT r."+schema.Relations.ID+", m.ftsid, m.property, r."+schema.Relations.Property+", m.weight * "+weightExpr+
			" FROM "+matchesTable+" m"+
			" JOIN "+schema.Metadata.Table+" cm ON cm."+schema.Metadata.ID+" = m.id",
		exprArgs...,
	)
	f = f.Append(" AND cm."+schema.Metadata.Property+" = ? AND cm."+schema.Metadata.Value+" = ANY(?)",
		e.reg.Class, link.Classes)
	f = f.Append(" JOIN " + schema.Relations.Table + " r ON r." + schema.Relations.TargetID + " = m.id")
	if weightJoin != "" {
		f = f.Append(weightJoin, joinArgs...)
	}
	f = f.Append(" WHERE m.weight IS NOT NULL")
	if e.hasFilters {
		f = f.Append(" AND r." + schema.Relations.ID + " IN (SELECT id FROM " + filtersTable + ")")
	}
	return e.exec(ctx, f)
}

// filterRestricted appends the Stage-A restriction when filters exist.
func (e *Engine) filterRestricted(f sqlfrag.Fragment, idCol string) sqlfrag.Fragment {
	if !e.hasFilters {
		return f
	}
	return f.Append(" AND " + idCol + " IN (SELECT id FROM " + filtersTable + ")")
}

// # Stage C

// stageFacets augments _matches with facet rows, multiplies property weights
// in and deletes zero-weight rows.
func (e *Engine) stageFacets(ctx context.Context) error {
	for _, facet := range e.facets.Discrete() {
		var err error
		switch f := facet.(type) {
		case *LiteralFacet:
			err = e.insertLiteralFacet(ctx, f)
		case *ObjectFacet:
			err = e.insertObjectFacet(ctx, f)
		}
		if err != nil {
			return err
		}
	}

	for _, f := range e.facets.Continuous() {
		if err := e.insertContinuousFacet(ctx, f); err != nil {
			return err
		}
	}

	if err := e.applyPropertyWeights(ctx); err != nil {
		return err
	}

	// A weight of exactly zero means "explicitly excluded", distinct from
	// the neutral default. Statistics run after this cleanup.
	return e.exec(ctx, sqlfrag.New("DELETE FROM "+matchesTable+" WHERE weight = 0"))
}

// insertLiteralFacet adds one row per (matched id, facet value) found in the
// metadata table. Unweighted facets carry a null weight and stay out of the
// ranking.
func (e *Engine) insertLiteralFacet(ctx context.Context, facet *LiteralFacet) error {
	// An unweighted facet is informational only: null weight, no lookup.
	weightExpr, exprArgs := "NULL::double precision", []any(nil)
	weightJoin, joinArgs := "", []any(nil)
	if len(facet.Weights) > 0 {
		weightExpr, exprArgs, weightJoin, joinArgs = weightLookup("w", "m."+schema.Metadata.Value, facet.Weights, facet.DefaultWeight)
	}

	f := sqlfrag.New(
		"INSERT INTO "+matchesTable+" (id, facet, value, weight)"+
			" SELECT m."+schema.Metadata.ID+", ?, m."+schema.Metadata.Value+", "+weightExpr+
			" FROM "+schema.Metadata.Table+" m",
		append([]any{facet.Name()}, exprArgs...)...,
	)
	if weightJoin != "" {
		f = f.Append(weightJoin, joinArgs...)
	}
	f = f.Append(" WHERE m."+schema.Metadata.Property+" = ?"+
		" AND m."+schema.Metadata.ID+" IN (SELECT DISTINCT id FROM "+matchesTable+")",
		facet.Property)
	return e.exec(ctx, f)
}

// insertObjectFacet adds one row per (matched id, relation target) with the
// target's identifier as the facet value.
func (e *Engine) insertObjectFacet(ctx context.Context, facet *ObjectFacet) error {
	weightExpr, exprArgs := "NULL::double precision", []any(nil)
	weightJoin, joinArgs := "", []any(nil)
	if len(facet.Weights) > 0 {
		weightExpr, exprArgs, weightJoin, joinArgs = weightLookup("w", "i."+schema.Identifiers.IDs, facet.Weights, facet.DefaultWeight)
	}

	f := sqlfrag.New(
		"INSERT INTO "+matchesTable+" (id, facet, value, weight)"+
			" SELECT r."+schema.Relations.ID+", ?, i."+schema.Identifiers.IDs+", "+weightExpr+
			" FROM "+schema.Relations.Table+" r"+
			" JOIN "+schema.Identifiers.Table+" i ON i."+schema.Identifiers.ID+" = r."+schema.Relations.TargetID,
		append([]any{facet.Name()}, exprArgs...)...,
	)
	if weightJoin != "" {
		f = f.Append(weightJoin, joinArgs...)
	}
	f = f.Append(" WHERE r."+schema.Relations.Property+" = ?"+
		" AND r."+schema.Relations.ID+" IN (SELECT DISTINCT id FROM "+matchesTable+")",
		facet.Property)
	return e.exec(ctx, f)
}

// insertContinuousFacet adds one informational row per matched id carrying
// the numeric min/max across the facet's start/end property lists.
func (e *Engine) insertContinuousFacet(ctx context.Context, facet *ContinuousFacet) error {
	f := sqlfrag.New(
		"INSERT INTO "+matchesTable+" (id, facet, lower, upper)"+
			" SELECT s."+schema.Metadata.ID+", ?, s.lo, e.hi FROM"+
			" (SELECT "+schema.Metadata.ID+", min("+schema.Metadata.ValueN+") AS lo FROM "+schema.Metadata.Table+
			" WHERE "+schema.Metadata.Property+" = ANY(?) GROUP BY "+schema.Metadata.ID+") s"+
			" JOIN (SELECT "+schema.Metadata.ID+", max("+schema.Metadata.ValueN+") AS hi FROM "+schema.Metadata.Table+
			" WHERE "+schema.Metadata.Property+" = ANY(?) GROUP BY "+schema.Metadata.ID+") e ON e."+schema.Metadata.ID+" = s."+schema.Metadata.ID+
			" WHERE s."+schema.Metadata.ID+" IN (SELECT DISTINCT id FROM "+matchesTable+")",
		facet.Name(), facet.Start, facet.End,
	)
	return e.exec(ctx, f)
}

// applyPropertyWeights multiplies every weighted match row by its property's
// configured weight, coalescing to the default.
func (e *Engine) applyPropertyWeights(ctx context.Context) error {
	if len(e.cfg.PropertyWeights) == 0 {
		if e.cfg.DefaultPropertyWeight == NeutralWeight || e.cfg.DefaultPropertyWeight == 0 {
			return nil
		}
		return e.exec(ctx, sqlfrag.New(
			"UPDATE "+matchesTable+" SET weight = weight * ?"+
				" WHERE weight IS NOT NULL AND property IS NOT NULL",
			e.cfg.DefaultPropertyWeight,
		))
	}

	values, args := weightValues(e.cfg.PropertyWeights)
	args = append(args, e.cfg.DefaultPropertyWeight)
	return e.exec(ctx, sqlfrag.New(
		"UPDATE "+matchesTable+" SET weight = weight * COALESCE("+
			"(SELECT v.weight FROM (VALUES "+values+") AS v (property, weight) WHERE v.property = "+matchesTable+".property), ?)"+
			" WHERE weight IS NOT NULL AND property IS NOT NULL",
		args...,
	))
}

// # Ranking and page retrieval

// PageOptions selects one result page and its metadata breadth.
type PageOptions struct {
	Offset int
	Limit  int
	// OrderBy breaks ranking ties by a literal property, ascending unless
	// prefixed with the descending marker. Nulls sort last.
	OrderBy   string
	OrderLang string
	Breadth   metadata.Breadth
	MaxDepth  int
	// Highlight injects full-text highlight rows for the page;
	// HighlightOpts tunes the snippet rendering.
	Highlight     bool
	HighlightOpts metadata.HighlightOptions
}

// rankedMatch is one resource in ranking order.
type rankedMatch struct {
	id     int64
	weight float64
}

// rankedPage retrieves one page of (id, weight) in ranking order: per
// (id, property) maxima combined multiplicatively per resource, descending,
// ties broken by the ordering property.
func (e *Engine) rankedPage(ctx context.Context, opts PageOptions) ([]rankedMatch, error) {
	// exp(sum(ln(w))) is the product of per-property maxima without float
	// overflow on many multiplicands.
	rank := sqlfrag.New(
		"SELECT id, exp(sum(ln(w))) AS weight FROM" +
			" (SELECT id, property, max(weight) AS w FROM " + matchesTable +
			" WHERE weight > 0 GROUP BY id, property) g GROUP BY id",
	)

	f := rank.Wrap("SELECT r.id, r.weight FROM (", ") r")
	order := "ORDER BY r.weight DESC"
	if opts.OrderBy != "" {
		property := opts.OrderBy
		direction := "ASC"
		if strings.HasPrefix(property, DescMark) {
			property = strings.TrimPrefix(property, DescMark)
			direction = "DESC"
		}

		join := sqlfrag.New(
			"(SELECT "+schema.Metadata.ID+", min("+schema.Metadata.Value+") AS v FROM "+schema.Metadata.Table+
				" WHERE "+schema.Metadata.Property+" = ?",
			property,
		)
		if opts.OrderLang != "" {
			join = join.Append(" AND "+schema.Metadata.Lang+" = ?", opts.OrderLang)
		}
		join = join.Append(" GROUP BY " + schema.Metadata.ID + ")")

		f = sqlfrag.Join("", f, join.Wrap(" LEFT JOIN ", " o ON o.id = r.id"))
		order += ", o.v " + direction + " NULLS LAST"
	}
	f = f.Append(" " + order + ", r.id")
	if opts.Limit > 0 {
		f = f.Append(" LIMIT ? OFFSET ?", opts.Limit, opts.Offset)
	}

	sql, args, err := f.Numbered(1)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	rows, err := e.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, e.badQuery(ctx, "rank query failed", err)
	}
	defer rows.Close()

	var page []rankedMatch
	for rows.Next() {
		var m rankedMatch
		if err := rows.Scan(&m.id, &m.weight); err != nil {
			return nil, apperr.BadQuery(err)
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, e.badQuery(ctx, "rank stream failed", err)
	}
	return page, nil
}

/*
Page materializes one ranked result page as a metadata graph.

The page ids are re-expressed as an id fast-path condition and fed through
the metadata reader inside the engine's transaction, then decorated with the
synthetic match, order, weight and count statements the mapper consumes.
*/
func (e *Engine) Page(ctx context.Context, opts PageOptions) (*graph.Graph, error) {
	ranked, err := e.rankedPage(ctx, opts)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	if len(ranked) > 0 {
		values := make([]string, len(ranked))
		for n, m := range ranked {
			values[n] = strconv.FormatInt(m.id, 10)
		}
		idCondition := &Condition{Operator: OpEq, Type: TypeID, Value: values}
		filter, err := idCondition.Compile(e.compileCtx())
		if err != nil {
			return nil, err
		}

		// Authorization was applied in Stage A; the reader must not filter
		// again inside the session.
		reader := metadata.NewReader(e.tx, e.reg, authz.AllowAll{}, e.logger)
		cfg := metadata.ReadConfig{
			Breadth:  opts.Breadth,
			MaxDepth: opts.MaxDepth,
		}
		if opts.Highlight && e.phrase != "" {
			cfg.HighlightPhrase = QuoteURIs(e.phrase)
			cfg.Highlight = opts.HighlightOpts
		}
		g, err = reader.Read(ctx, filter, cfg)
		if err != nil {
			return nil, err
		}
	}

	for n, m := range ranked {
		subject := e.reg.ResourceURI(m.id)
		g.Add(subject, schema.SearchMatch, graph.Literal("true", "", schema.TypeBoolean))
		g.Add(subject, schema.SearchOrder, graph.Literal(strconv.Itoa(opts.Offset+n), "", schema.TypeInteger))
		g.Add(subject, schema.SearchWeight, graph.Literal(
			strconv.FormatFloat(m.weight, 'g', -1, 64), "", schema.TypeDecimal))
	}
	g.Add(e.reg.BaseURL, schema.SearchCount, graph.Literal(
		strconv.FormatInt(e.total, 10), "", schema.TypeInteger))

	return g, nil
}

// # Helpers

// weightLookup renders the weight expression and optional VALUES join for a
// per-value weight table keyed on keyCol, coalescing to the default. The
// expression's parameters and the join's parameters are returned separately
// because they sit on opposite sides of the FROM clause.
func weightLookup(alias, keyCol string, weights map[string]float64, defaultWeight float64) (expr string, exprArgs []any, join string, joinArgs []any) {
	if len(weights) == 0 {
		return "?::double precision", []any{defaultWeight}, "", nil
	}
	values, valueArgs := weightValues(weights)
	expr = "COALESCE(" + alias + ".weight, ?)"
	join = " LEFT JOIN (VALUES " + values + ") AS " + alias + " (value, weight) ON " + alias + ".value = " + keyCol
	return expr, []any{defaultWeight}, join, valueArgs
}

// weightValues renders a deterministic VALUES list for a weight map.
func weightValues(weights map[string]float64) (string, []any) {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sql := ""
	args := make([]any, 0, 2*len(weights))
	for n, k := range keys {
		if n > 0 {
			sql += ","
		}
		sql += "(?, ?::double precision)"
		args = append(args, k, weights[k])
	}
	return sql, args
}

// exec numbers and runs one pipeline statement.
func (e *Engine) exec(ctx context.Context, f sqlfrag.Fragment) error {
	sql, args, err := f.Numbered(1)
	if err != nil {
		return apperr.Internal(err)
	}
	if _, err := e.tx.Exec(ctx, sql, args...); err != nil {
		return e.badQuery(ctx, "pipeline statement failed", err)
	}
	return nil
}

// badQuery logs a driver failure and replaces it with the opaque error.
func (e *Engine) badQuery(ctx context.Context, msg string, err error) error {
	if e.logger != nil {
		e.logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	}
	return apperr.BadQuery(err)
}
