// Copyright (c) 2026 Tessera. All rights reserved.

package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-dev/tessera/internal/metadata"
	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/platform/respond"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/query"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

// MetadataHandler serves direct resource retrieval by external identifier.
type MetadataHandler struct {
	reader *metadata.Reader
	reg    *schema.Registry
}

// NewMetadataHandler wires the resource endpoints.
func NewMetadataHandler(reader *metadata.Reader, reg *schema.Registry) *MetadataHandler {
	return &MetadataHandler{reader: reader, reg: reg}
}

// Routes returns the resource route group. Identifiers are URIs and travel
// path-escaped.
func (h *MetadataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{identifier}", h.handleResolve)
	r.Get("/{identifier}/metadata", h.handleMetadata)
	return r
}

// handleResolve serves GET /api/v1/resources/{identifier}: external
// identifier to resource URI, without metadata.
func (h *MetadataHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	identifier, err := pathIdentifier(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	id, err := h.reader.Resolve(r.Context(), identifier)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, map[string]any{
		"id":  id,
		"uri": h.reg.ResourceURI(id),
	})
}

// handleMetadata serves GET /api/v1/resources/{identifier}/metadata with the
// breadth, depth, order, language and total query parameters.
func (h *MetadataHandler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identifier, err := pathIdentifier(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	id, err := h.reader.Resolve(ctx, identifier)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	params := r.URL.Query()
	breadth, err := metadata.ParseBreadth(params.Get("breadth"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	cfg := metadata.ReadConfig{
		Breadth:      breadth,
		MaxDepth:     intParam(params.Get("depth"), -1),
		OrderBy:      query.StringSlice(params.Get("order")),
		OrderLang:    params.Get("language"),
		IncludeTotal: params.Get("total") == "true",
	}

	filter := sqlfrag.New("SELECT id FROM (VALUES (?::bigint)) AS t (id)", id)
	g, err := h.reader.Read(ctx, filter, cfg)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toGraph(g, h.reg))
}

// pathIdentifier extracts and unescapes the identifier path segment.
func pathIdentifier(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "identifier")
	identifier, err := url.PathUnescape(raw)
	if err != nil || identifier == "" {
		return "", apperr.MalformedCondition("invalid identifier %q", raw)
	}
	return identifier, nil
}
