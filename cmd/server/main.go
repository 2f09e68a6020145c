// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package main is the entry point for the Newsprism server.
//
// Newsprism serves personalized news recommendations. Each user carries a
// category preference profile that decays toward their click behavior, and
// articles live in an embedding index searched by exact L2 distance. The
// HTTP API accepts clicks, manages preference profiles, and ranks articles.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env)
//  2. Storage: BadgerDB for preference profiles, articles, and click logs
//  3. Vector index: load an existing on-disk index if one is present
//  4. Event bus: Watermill in-process channel carrying click events
//  5. Supervisor tree: click consumer, optional ingest loop, HTTP server
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file, built-in defaults.
//
// Ingestion is opt-in and needs an upstream headline API key plus an
// embedding service:
//
//	export INGEST_ENABLED=true
//	export NEWSAPI_KEY=your-key
//	export EMBEDDER_URL=http://embedder:9000/embed
//	./newsprism
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests, the click consumer finishes its current
// message, and BadgerDB is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/tomtom215/newsprism/internal/api"
	"github.com/tomtom215/newsprism/internal/config"
	"github.com/tomtom215/newsprism/internal/content"
	"github.com/tomtom215/newsprism/internal/events"
	"github.com/tomtom215/newsprism/internal/ingest"
	"github.com/tomtom215/newsprism/internal/logging"
	"github.com/tomtom215/newsprism/internal/preferences"
	"github.com/tomtom215/newsprism/internal/recommend"
	"github.com/tomtom215/newsprism/internal/services"
	"github.com/tomtom215/newsprism/internal/vectorindex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger; config is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logger.Info().
		Str("db_path", cfg.Database.Path).
		Str("index_dir", cfg.Index.Dir).
		Bool("ingest_enabled", cfg.Ingest.Enabled).
		Msg("Configuration loaded")

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Database close failed")
		}
	}()

	prefs := preferences.NewStore(db, logger)
	articles := content.NewStore(db, cfg.Content.ClickRetention, logger)

	index, err := vectorindex.NewStore(cfg.Index.Dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vector index store")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := index.Load(ctx); err != nil {
		// A fresh deployment has no index yet; recommendations return
		// 503 until the first build.
		logger.Warn().Err(err).Msg("No usable index on disk, starting without one")
	} else {
		logger.Info().Int("vectors", index.Count()).Int("dim", index.Dim()).Msg("Vector index loaded")
	}

	engine := recommend.NewEngine(prefs, index, articles, recommend.Config{
		DefaultK:      cfg.Recommend.DefaultK,
		MaxK:          cfg.Recommend.MaxK,
		FilterClicked: cfg.Recommend.FilterClicked,
	}, logger)

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error().Err(err).Msg("Event bus close failed")
		}
	}()
	publisher := events.NewPublisher(bus)
	consumer := events.NewConsumer(bus, prefs, articles, cfg.Recommend.DecayRate, logger)

	tree := services.NewTree(slog.Default(), services.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddPipelineService(services.NewConsumerService(consumer))

	if cfg.Ingest.Enabled {
		client := ingest.NewClient(ingest.ClientConfig{
			BaseURL:           cfg.Ingest.BaseURL,
			APIKey:            cfg.Ingest.APIKey,
			Country:           cfg.Ingest.Country,
			RequestsPerSecond: cfg.Ingest.RequestsPerSecond,
			Timeout:           cfg.Ingest.Timeout,
		}, logger)
		embedder := ingest.NewHTTPEmbedder(cfg.Ingest.EmbedderURL, cfg.Ingest.EmbedderTimeout)
		ingestor := ingest.NewIngestor(client, embedder, articles, index, logger)
		tree.AddPipelineService(services.NewIngestService(ingestor, cfg.Ingest.Interval, cfg.Ingest.RunOnStartup, logger))
	}

	handler := api.NewHandler(prefs, engine, articles, index, publisher, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Timeout:         cfg.Server.Timeout,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		CORSOrigins:     cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logger.Info().Str("addr", addr).Msg("Starting Newsprism")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

// openDatabase opens BadgerDB with its chatty default logger silenced in
// favor of our own startup log line.
func openDatabase(cfg config.DatabaseConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	return badger.Open(opts.WithLogger(nil))
}
