// Copyright (c) 2026 Tessera. All rights reserved.

// Command api is the entry point for the Tessera HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Run database migrations (idempotent).
//  5. Load the vocabulary registry and facet descriptors.
//  6. Open the initial-facet disk cache.
//  7. Wire HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tessera-dev/tessera/internal/api"
	"github.com/tessera-dev/tessera/internal/metadata"
	"github.com/tessera-dev/tessera/internal/platform/authz"
	"github.com/tessera-dev/tessera/internal/platform/config"
	"github.com/tessera-dev/tessera/internal/platform/constants"
	"github.com/tessera-dev/tessera/internal/platform/middleware"
	"github.com/tessera-dev/tessera/internal/platform/migration"
	pgstore "github.com/tessera-dev/tessera/internal/platform/postgres"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/internal/search"
)

// labelCacheSize bounds the shared entity-label cache.
const labelCacheSize = 4096

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 5. Vocabulary and facets ──────────────────────────────────────────
	reg, err := schema.Load(cfg.VocabularyPath)
	must(log, err, "load vocabulary registry")

	facets, err := search.LoadFacets(cfg.FacetsPath)
	must(log, err, "load facet descriptors")

	searchCfg := search.Config{
		StringIndexBound:      cfg.StringIndexBound,
		MinTimestampYear:      cfg.MinTimestampYear,
		ExactMatchWeight:      cfg.ExactMatchWeight,
		LangMatchWeight:       cfg.LangMatchWeight,
		DefaultPropertyWeight: search.NeutralWeight,
		MaxFacetBins:          cfg.MaxFacetBins,
	}

	// ── 6. Authorization ──────────────────────────────────────────────────
	// Without a public key every caller is anonymous and sees everything the
	// vocabulary exposes; with one, roles travel in bearer tokens and feed
	// the row-level filter.
	var (
		verifier middleware.RoleVerifier
		provider authz.Provider = authz.AllowAll{}
	)
	if cfg.JWTPubKeyPath != "" {
		tokenVerifier, err := authz.NewTokenVerifier(cfg.JWTPubKeyPath, constants.AuthIssuer)
		must(log, err, "initialize token verifier")
		verifier = tokenVerifier
		provider = authz.NewRoleFilter(reg, "public")
	}

	// ── 7. Caches ─────────────────────────────────────────────────────────
	labels, err := search.NewLabelCache(labelCacheSize)
	must(log, err, "initialize label cache")

	initial, err := search.NewInitialFacets(cfg.CacheDir, pool, reg, searchCfg, facets, log)
	must(log, err, "open initial-facet cache")
	defer func() {
		if cerr := initial.Close(); cerr != nil {
			log.Error("facet cache close error", slog.Any("error", cerr))
		}
	}()

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: initial.Ping,
	}, log)

	// ── 9. Query Wiring ───────────────────────────────────────────────────
	reader := metadata.NewReader(pool, reg, provider, log)
	multi := search.NewMulti(pool, reg, provider, searchCfg, log, cfg.SearchMaxConcurrency)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Search:    api.NewSearchHandler(pool, reg, provider, searchCfg, facets, labels, multi, initial, log),
		Resources: api.NewMetadataHandler(reader, reg),
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	server := api.NewServer(appCtx, cfg, log, verifier, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
