// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-dev/tessera/internal/platform/authz"
	"github.com/tessera-dev/tessera/internal/schema"
)

// initialTTL bounds how long a cached report may outlive its store version,
// as a safety net when the modification-date property is not maintained.
const initialTTL = 7 * 24 * time.Hour

/*
InitialFacets serves the store-wide facet statistics rendered before any
search is performed.

Computing them means scanning every resource, so the report is cached on
disk keyed by the latest modification timestamp in the store: a new ingest
naturally invalidates the cache by moving the key.
*/
type InitialFacets struct {
	db     *badger.DB
	pool   *pgxpool.Pool
	reg    *schema.Registry
	cfg    Config
	facets *Facets
	logger *slog.Logger
}

// NewInitialFacets opens the disk cache at dir.
func NewInitialFacets(dir string, pool *pgxpool.Pool, reg *schema.Registry, cfg Config, facets *Facets, logger *slog.Logger) (*InitialFacets, error) {
	options := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger}).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("search: failed to open initial-facet cache: %w", err)
	}

	return &InitialFacets{
		db:     db,
		pool:   pool,
		reg:    reg,
		cfg:    cfg,
		facets: facets,
		logger: logger,
	}, nil
}

// Close releases the disk cache.
func (s *InitialFacets) Close() error { return s.db.Close() }

// Ping verifies the disk cache is readable, for readiness probes.
func (s *InitialFacets) Ping() error {
	return s.db.View(func(*badger.Txn) error { return nil })
}

// Stats returns the store-wide statistics, from cache when the store has not
// changed since they were computed.
func (s *InitialFacets) Stats(ctx context.Context) (*Statistics, error) {
	version, err := s.storeVersion(ctx)
	if err != nil {
		return nil, err
	}
	key := []byte("initial\x00" + version)

	if cached, ok := s.lookup(key); ok {
		return cached, nil
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, stats)
	return stats, nil
}

// storeVersion is the latest modification timestamp in the store, or empty
// when the vocabulary declares no modification-date property.
func (s *InitialFacets) storeVersion(ctx context.Context) (string, error) {
	if s.reg.ModificationDate == "" {
		return "", nil
	}

	var version *string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT max(%s)::text FROM %s WHERE %s = $1",
			schema.Metadata.ValueT, schema.Metadata.Table, schema.Metadata.Property),
		s.reg.ModificationDate,
	).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("search: failed to read store version: %w", err)
	}
	if version == nil {
		return "", nil
	}
	return *version, nil
}

func (s *InitialFacets) lookup(key []byte) (*Statistics, bool) {
	var stats Statistics
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &stats)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("initial-facet cache read failed", slog.String("error", err.Error()))
		return nil, false
	}
	return &stats, true
}

func (s *InitialFacets) store(ctx context.Context, key []byte, stats *Statistics) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, raw).WithTTL(initialTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "initial-facet cache write failed", slog.String("error", err.Error()))
	}
}

// compute runs the pipeline over the entire unfiltered resource set.
func (s *InitialFacets) compute(ctx context.Context) (*Statistics, error) {
	engine, err := Begin(ctx, s.pool, s.reg, authz.AllowAll{}, s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	defer engine.Close(ctx)

	if err := engine.Search(ctx, Request{MatchAll: true, Facets: s.facets}); err != nil {
		return nil, err
	}
	return engine.Stats(ctx, nil)
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf("badger: "+format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf("badger: "+format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf("badger: "+format, args...))
}
