// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package config defines the service configuration and loads it from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Index     IndexConfig     `koanf:"index"`
	Content   ContentConfig   `koanf:"content"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Recommend RecommendConfig `koanf:"recommend"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// DatabaseConfig configures the Badger key-value store backing the
// preference and content stores.
type DatabaseConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// IndexConfig configures the on-disk vector index.
type IndexConfig struct {
	Dir string `koanf:"dir"`
}

// ContentConfig configures article storage.
type ContentConfig struct {
	// ClickRetention bounds how long the per-user interaction log is
	// kept. Expired clicks age out of the recommendation filter.
	ClickRetention time.Duration `koanf:"click_retention"`
}

// IngestConfig configures headline ingestion and embedding.
type IngestConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Country           string        `koanf:"country"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
	Interval          time.Duration `koanf:"interval"`
	RunOnStartup      bool          `koanf:"run_on_startup"`
	EmbedderURL       string        `koanf:"embedder_url"`
	EmbedderTimeout   time.Duration `koanf:"embedder_timeout"`
}

// RecommendConfig configures the recommendation engine.
type RecommendConfig struct {
	DefaultK      int     `koanf:"default_k"`
	MaxK          int     `koanf:"max_k"`
	FilterClicked bool    `koanf:"filter_clicked"`
	DecayRate     float64 `koanf:"decay_rate"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults. These are applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8478,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:     "/data/newsprism/db",
			InMemory: false,
		},
		Index: IndexConfig{
			Dir: "/data/newsprism/index",
		},
		Content: ContentConfig{
			ClickRetention: 30 * 24 * time.Hour,
		},
		Ingest: IngestConfig{
			Enabled:           false, // Requires an API key; opt-in only
			BaseURL:           "https://newsapi.org/v2",
			APIKey:            "",
			Country:           "us",
			RequestsPerSecond: 1,
			Timeout:           10 * time.Second,
			Interval:          1 * time.Hour,
			RunOnStartup:      false,
			EmbedderURL:       "",
			EmbedderTimeout:   30 * time.Second,
		},
		Recommend: RecommendConfig{
			DefaultK:      5,
			MaxK:          100,
			FilterClicked: true,
			DecayRate:     0.02,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
