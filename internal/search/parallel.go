// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/panjf2000/ants/v2"

	"github.com/tessera-dev/tessera/internal/graph"
	"github.com/tessera-dev/tessera/internal/platform/apperr"
	"github.com/tessera-dev/tessera/internal/platform/authz"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/slice"
)

// RejectMode controls what a multi-search does with a failing sub-search.
type RejectMode int

const (
	// RejectSkip drops failed sub-searches from the result set.
	RejectSkip RejectMode = iota
	// RejectFail aborts the whole batch on the first failure.
	RejectFail
	// RejectInclude keeps failed sub-searches in the result set with their
	// error attached.
	RejectInclude
)

// ParseRejectMode maps the wire names onto a [RejectMode].
func ParseRejectMode(s string) (RejectMode, error) {
	switch s {
	case "", "skip":
		return RejectSkip, nil
	case "fail":
		return RejectFail, nil
	case "include":
		return RejectInclude, nil
	}
	return 0, apperr.MalformedCondition("unknown reject mode %q", s)
}

// ManySearch is one sub-search of a batch. A nil Page skips page retrieval
// and reports totals and statistics only.
type ManySearch struct {
	Request Request
	Page    *PageOptions
	Labels  *LabelCache
}

// ManyResult is the outcome of one sub-search, in submission order.
type ManyResult struct {
	// Index is the sub-search's position in the submitted batch.
	Index int
	Total int64
	Stats *Statistics
	Graph *graph.Graph
	// Err is only set under [RejectInclude].
	Err error
}

/*
Multi fans independent searches out over a bounded worker pool. Every
sub-search runs on its own connection with its own temporary tables, so the
batch size is capped to keep the pool from being drained by one request.
*/
type Multi struct {
	pool    *pgxpool.Pool
	reg     *schema.Registry
	authz   authz.Provider
	cfg     Config
	logger  *slog.Logger
	workers int
}

// NewMulti builds a multi-search runner with at most workers concurrent
// sub-searches.
func NewMulti(pool *pgxpool.Pool, reg *schema.Registry, authzProvider authz.Provider, cfg Config, logger *slog.Logger, workers int) *Multi {
	if workers < 1 {
		workers = 1
	}
	return &Multi{
		pool:    pool,
		reg:     reg,
		authz:   authzProvider,
		cfg:     cfg,
		logger:  logger,
		workers: workers,
	}
}

// Run executes the batch and returns the per-search results in submission
// order. Under [RejectFail] the first failure cancels the remaining
// sub-searches and is returned as the batch error.
func (m *Multi) Run(ctx context.Context, searches []ManySearch, mode RejectMode) ([]ManyResult, error) {
	if len(searches) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers, err := ants.NewPool(m.workers)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer workers.Release()

	results := make([]ManyResult, len(searches))
	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failErr  error
	)

	for n := range searches {
		n := n
		wg.Add(1)
		err := workers.Submit(func() {
			defer wg.Done()
			results[n] = m.runOne(ctx, n, searches[n])
			if results[n].Err != nil && mode == RejectFail {
				failOnce.Do(func() {
					failErr = results[n].Err
					cancel()
				})
			}
		})
		if err != nil {
			// Submission only fails once the pool is released, which cannot
			// happen while we hold it.
			wg.Done()
			results[n] = ManyResult{Index: n, Err: apperr.Internal(err)}
		}
	}
	wg.Wait()

	if mode == RejectFail && failErr != nil {
		return nil, failErr
	}

	if mode == RejectSkip {
		results = slice.Filter(results, func(r ManyResult) bool { return r.Err == nil })
	}
	return results, nil
}

// runOne executes a single sub-search on its own engine.
func (m *Multi) runOne(ctx context.Context, index int, s ManySearch) ManyResult {
	result := ManyResult{Index: index}

	engine, err := Begin(ctx, m.pool, m.reg, m.authz, m.cfg, m.logger)
	if err != nil {
		result.Err = err
		return result
	}
	defer engine.Close(ctx)

	if err := engine.Search(ctx, s.Request); err != nil {
		result.Err = err
		return result
	}
	result.Total = engine.Total()

	result.Stats, err = engine.Stats(ctx, s.Labels)
	if err != nil {
		result.Err = err
		return result
	}

	if s.Page != nil {
		result.Graph, err = engine.Page(ctx, *s.Page)
		if err != nil {
			result.Err = err
		}
	}
	return result
}
