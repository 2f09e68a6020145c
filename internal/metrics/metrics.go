// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package metrics provides Prometheus instrumentation for Newsprism:
// click processing, preference updates, recommendation serving, index
// lifecycle, and headline ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Click pipeline

	ClicksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsprism_clicks_processed_total",
			Help: "Total number of click events processed",
		},
		[]string{"category"},
	)

	ClicksDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsprism_clicks_dropped_total",
			Help: "Total number of click events dropped",
		},
		[]string{"reason"}, // "article_not_found", "decode", "update_failed"
	)

	// Preference model

	PreferenceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsprism_preference_updates_total",
			Help: "Total number of preference vector writes",
		},
		[]string{"kind"}, // "click", "explicit"
	)

	// Recommendation serving

	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsprism_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"outcome"}, // "ok", "no_preferences", "unavailable", "error"
	)

	RecommendLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsprism_recommend_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecommendSkippedArticles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsprism_recommend_skipped_articles_total",
			Help: "Recommended article ids that failed resolution and were skipped",
		},
	)

	// Vector index lifecycle

	IndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsprism_index_build_duration_seconds",
			Help:    "Duration of vector index builds in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	IndexedVectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsprism_indexed_vectors",
			Help: "Number of vectors in the currently published index",
		},
	)

	IndexSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsprism_index_searches_total",
			Help: "Total number of vector index searches",
		},
		[]string{"outcome"}, // "ok", "unavailable", "dimension_mismatch"
	)

	// Ingestion

	IngestFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsprism_ingest_fetches_total",
			Help: "Total number of headline API fetches",
		},
		[]string{"category", "outcome"}, // outcome: "ok", "error", "breaker_open"
	)

	IngestArticlesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsprism_ingest_articles_stored_total",
			Help: "Total number of articles stored by the ingestor",
		},
	)
)

// ObserveRecommendDuration records a recommendation request duration.
func ObserveRecommendDuration(start time.Time) {
	RecommendLatency.Observe(time.Since(start).Seconds())
}
