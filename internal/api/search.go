// Copyright (c) 2026 Tessera. All rights reserved.

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/metadata"
	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/platform/authz"
	"github.com/tessera-dev/tessera/internal/platform/respond"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/internal/search"
	"github.com/tessera-dev/tessera/pkg/pagination"
	"github.com/tessera-dev/tessera/pkg/query"
)

// SearchHandler serves the weighted search endpoints.
type SearchHandler struct {
	pool    *pgxpool.Pool
	reg     *schema.Registry
	authz   authz.Provider
	cfg     search.Config
	facets  *search.Facets
	labels  *search.LabelCache
	multi   *search.Multi
	initial *search.InitialFacets
	logger  *slog.Logger
}

// NewSearchHandler wires the search endpoints. initial may be nil when the
// facet cache is disabled.
func NewSearchHandler(
	pool *pgxpool.Pool,
	reg *schema.Registry,
	authzProvider authz.Provider,
	cfg search.Config,
	facets *search.Facets,
	labels *search.LabelCache,
	multi *search.Multi,
	initial *search.InitialFacets,
	logger *slog.Logger,
) *SearchHandler {
	return &SearchHandler{
		pool:    pool,
		reg:     reg,
		authz:   authzProvider,
		cfg:     cfg,
		facets:  facets,
		labels:  labels,
		multi:   multi,
		initial: initial,
		logger:  logger,
	}
}

// Routes returns the search route group.
func (h *SearchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleSearch)
	r.Post("/batch", h.handleBatch)
	return r
}

// searchResponse is the data block of one search response; pagination
// metadata travels in the envelope.
type searchResponse struct {
	Resources []resourcePayload   `json:"resources"`
	Facets    []search.FacetStats `json:"facets,omitempty"`
}

// handleSearch serves POST /api/v1/search.
//
// Conditions arrive form-encoded as property[n]/operator[n]/value[n]/type[n]/
// language[n]; phrase, language, parent, order, breadth, depth, page and
// limit arrive as plain fields.
func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, apperr.MalformedCondition("unparseable request form"))
		return
	}

	req, err := h.buildRequest(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	breadth, err := metadata.ParseBreadth(r.Form.Get("breadth"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	page := pagination.FromRequest(r)
	opts := search.PageOptions{
		Offset:    page.Offset(),
		Limit:     page.Limit,
		OrderBy:   r.Form.Get("order"),
		OrderLang: r.Form.Get("orderLanguage"),
		Breadth:   breadth,
		MaxDepth:  intParam(r.Form.Get("depth"), -1),
		Highlight: req.Phrase != "",
		HighlightOpts: metadata.HighlightOptions{
			StartSel:     r.Form.Get("highlightStart"),
			StopSel:      r.Form.Get("highlightStop"),
			MaxWords:     intParam(r.Form.Get("highlightMaxWords"), 0),
			MinWords:     intParam(r.Form.Get("highlightMinWords"), 0),
			MaxFragments: intParam(r.Form.Get("highlightFragments"), 0),
		},
	}

	engine, err := search.Begin(ctx, h.pool, h.reg, h.authz, h.cfg, h.logger)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	defer engine.Close(ctx)

	if err := engine.Search(ctx, req); err != nil {
		respond.Error(w, r, err)
		return
	}

	g, err := engine.Page(ctx, opts)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	stats, err := engine.Stats(ctx, h.labels)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	result := graph.MapResources(g, h.reg)
	respond.Paginated(w,
		searchResponse{Resources: toResources(result), Facets: stats.Facets},
		pagination.NewMeta(page.Page, page.Limit, int(engine.Total())),
	)
}

// conditionPayload is the JSON shape of one condition in a batch request.
type conditionPayload struct {
	Property []string `json:"property"`
	Operator string   `json:"operator"`
	Value    []string `json:"value"`
	Type     string   `json:"type,omitempty"`
	Language string   `json:"language,omitempty"`
}

// batchSearch is one sub-search of a batch request.
type batchSearch struct {
	Conditions []conditionPayload `json:"conditions"`
	Phrase     string             `json:"phrase,omitempty"`
	Language   string             `json:"language,omitempty"`
	Parents    []int64            `json:"parents,omitempty"`
}

type batchRequest struct {
	Reject   string        `json:"reject,omitempty"`
	Searches []batchSearch `json:"searches"`
}

// batchResult is the outcome of one sub-search, in submission order.
type batchResult struct {
	Index  int                 `json:"index"`
	Total  int64               `json:"total"`
	Facets []search.FacetStats `json:"facets,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// handleBatch serves POST /api/v1/search/batch: independent searches run
// with bounded concurrency, reporting totals and facet statistics each.
func (h *SearchHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, r, apperr.MalformedCondition("unparseable batch request body"))
		return
	}

	mode, err := search.ParseRejectMode(body.Reject)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	searches := make([]search.ManySearch, 0, len(body.Searches))
	for _, s := range body.Searches {
		conditions := make([]*search.Condition, 0, len(s.Conditions))
		for _, c := range s.Conditions {
			operator := c.Operator
			if operator == "" {
				operator = string(search.OpEq)
			}
			cond, err := search.NewCondition(c.Property, operator, c.Value, c.Type, c.Language)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			conditions = append(conditions, cond)
		}

		req := search.Request{
			Phrase:    s.Phrase,
			Language:  s.Language,
			ParentIDs: s.Parents,
			Facets:    h.facets,
		}
		req.Conditions, req.Spatial, err = splitSpatial(conditions)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		searches = append(searches, search.ManySearch{Request: req, Labels: h.labels})
	}

	results, err := h.multi.Run(r.Context(), searches, mode)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]batchResult, 0, len(results))
	for _, res := range results {
		b := batchResult{Index: res.Index, Total: res.Total}
		if res.Stats != nil {
			b.Facets = res.Stats.Facets
		}
		if res.Err != nil {
			b.Error = res.Err.Error()
		}
		out = append(out, b)
	}
	respond.OK(w, out)
}

// handleInitialFacets serves GET /api/v1/facets: the cached store-wide facet
// statistics shown before any search.
func (h *SearchHandler) handleInitialFacets(w http.ResponseWriter, r *http.Request) {
	if h.initial == nil {
		respond.Error(w, r, apperr.NotFound("initial facet statistics"))
		return
	}
	stats, err := h.initial.Stats(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, stats)
}

// buildRequest assembles the engine request from the parsed form.
func (h *SearchHandler) buildRequest(r *http.Request) (search.Request, error) {
	conditions, err := search.ParseConditions(r.Form)
	if err != nil {
		return search.Request{}, err
	}

	req := search.Request{
		Phrase:   r.Form.Get("phrase"),
		Language: r.Form.Get("language"),
		Facets:   h.facets,
	}
	req.Conditions, req.Spatial, err = splitSpatial(conditions)
	if err != nil {
		return search.Request{}, err
	}

	for _, id := range query.IntSlice(r.Form["parent"]) {
		req.ParentIDs = append(req.ParentIDs, int64(id))
	}
	return req, nil
}

// splitSpatial separates the spatial condition from the structural ones. At
// most one spatial predicate is allowed per search.
func splitSpatial(conditions []*search.Condition) ([]*search.Condition, *search.Condition, error) {
	var (
		rest    []*search.Condition
		spatial *search.Condition
	)
	for _, c := range conditions {
		if c.IsSpatial() {
			if spatial != nil {
				return nil, nil, apperr.MalformedCondition("more than one spatial condition")
			}
			spatial = c
			continue
		}
		rest = append(rest, c)
	}
	return rest, spatial, nil
}

// intParam parses a single integer field with a fallback default.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
