// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (pool, engine, cache) via constructors.
  - Zero Hidden State: No global variables are used to store config.

Vocabulary and facet descriptor files are referenced by path only; parsing
them belongs to the schema and search packages respectively.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Tessera API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// VocabularyPath points at the YAML file binding logical concepts
	// (identifier, parent, label, ...) to concrete RDF property names.
	VocabularyPath string `env:"VOCABULARY_PATH" envDefault:"./data/vocabulary.yaml"`

	// FacetsPath points at the YAML facet descriptor file. Empty disables
	// configured facets.
	FacetsPath string `env:"FACETS_PATH"`

	// CacheDir is where the initial-facet statistics cache lives.
	CacheDir string `env:"CACHE_DIR" envDefault:"./data/cache"`

	// JWTPubKeyPath enables the claims-based authorization provider when set.
	JWTPubKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`

	// # Search tuning

	// StringIndexBound is the substring length of the partial index on
	// metadata values; short equality predicates must stay under it.
	StringIndexBound int `env:"STRING_INDEX_BOUND" envDefault:"1000"`

	// MinTimestampYear is the earliest year representable in the timestamp
	// column; older dates compare by numeric year instead.
	MinTimestampYear int `env:"MIN_TIMESTAMP_YEAR" envDefault:"-4713"`

	// ExactMatchWeight multiplies a full-text match whose raw text equals
	// the phrase verbatim.
	ExactMatchWeight float64 `env:"EXACT_MATCH_WEIGHT" envDefault:"10"`

	// LangMatchWeight multiplies a full-text match whose language equals the
	// requested one.
	LangMatchWeight float64 `env:"LANG_MATCH_WEIGHT" envDefault:"2"`

	// MaxFacetBins caps continuous facet histograms.
	MaxFacetBins int `env:"MAX_FACET_BINS" envDefault:"20"`

	// SearchMaxConcurrency bounds the SearchMany fan-out helper.
	SearchMaxConcurrency int `env:"SEARCH_MAX_CONCURRENCY" envDefault:"4"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
