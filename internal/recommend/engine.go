// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package recommend turns a user's preference vector into a ranked list of
// articles via nearest-neighbor search over the embedding index.
//
// The preference vector has one weight per taxonomy category while article
// embeddings live in the text-embedding model's space, so the query vector
// is zero-padded (or truncated) to the index dimension before the search.
// This alignment is a known simplification inherited from the original
// design: the comparison is dominated by the zero tail. It is kept for
// compatibility; a principled replacement would compare per-category
// centroid embeddings instead.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/content"
	"github.com/tomtom215/newsprism/internal/metrics"
	"github.com/tomtom215/newsprism/internal/preferences"
	"github.com/tomtom215/newsprism/internal/vectorindex"
)

// ErrUnavailable indicates the engine cannot serve recommendations because
// the index is missing or inconsistent with the query. The index needs a
// rebuild; retrying the request will not help.
var ErrUnavailable = errors.New("recommendations unavailable")

// DefaultTopK is the number of recommendations returned when the caller
// does not ask for a specific count.
const DefaultTopK = 5

// PreferenceSource supplies user preference vectors.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (preferences.WeightVector, error)
}

// ArticleResolver resolves content ids to full articles and exposes the
// user's click history for result filtering.
type ArticleResolver interface {
	Get(ctx context.Context, id string) (content.Article, error)
	ClickedArticleIDs(ctx context.Context, userID string) (map[string]bool, error)
}

// Searcher is the embedding index surface the engine needs.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]vectorindex.Result, error)
	Dim() int
}

// Config holds engine tuning knobs.
type Config struct {
	// DefaultK is used when a request passes topK <= 0.
	DefaultK int

	// MaxK caps the per-request result count.
	MaxK int

	// FilterClicked removes articles the user has already clicked from
	// the results.
	FilterClicked bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		DefaultK:      DefaultTopK,
		MaxK:          100,
		FilterClicked: true,
	}
}

// Recommendation is one ranked result. Distance is the squared Euclidean
// distance between the query vector and the article embedding; smaller is
// closer.
type Recommendation struct {
	Article  content.Article `json:"article"`
	Distance float32         `json:"distance"`
}

// Engine produces personalized article rankings. Safe for concurrent use:
// it holds no mutable state of its own.
type Engine struct {
	prefs    PreferenceSource
	index    Searcher
	articles ArticleResolver
	cfg      Config
	logger   zerolog.Logger
}

// NewEngine creates a recommendation engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(prefs PreferenceSource, index Searcher, articles ArticleResolver, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultTopK
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 100
	}
	return &Engine{
		prefs:    prefs,
		index:    index,
		articles: articles,
		cfg:      cfg,
		logger:   logger.With().Str("component", "recommend").Logger(),
	}
}

// Recommend returns up to topK articles for the user, closest first.
//
// A missing preference profile propagates as preferences.ErrNotFound: the
// caller must prompt onboarding, never recommend against an empty profile.
// A missing or inconsistent index surfaces as ErrUnavailable. Individual
// articles that fail resolution are skipped, so the result may be shorter
// than topK; an empty result is a valid success.
func (e *Engine) Recommend(ctx context.Context, userID string, topK int) ([]Recommendation, error) {
	start := time.Now()
	defer metrics.ObserveRecommendDuration(start)

	if topK <= 0 {
		topK = e.cfg.DefaultK
	}
	if topK > e.cfg.MaxK {
		topK = e.cfg.MaxK
	}

	vec, err := e.prefs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, preferences.ErrNotFound) {
			metrics.RecommendRequests.WithLabelValues("no_preferences").Inc()
		} else {
			metrics.RecommendRequests.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	dim := e.index.Dim()
	if dim == 0 {
		metrics.RecommendRequests.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, vectorindex.ErrIndexUnavailable)
	}
	query := QueryVector(vec, dim)

	var clicked map[string]bool
	if e.cfg.FilterClicked {
		clicked, err = e.articles.ClickedArticleIDs(ctx, userID)
		if err != nil {
			// Filtering is best-effort; an unreadable click log must not
			// fail the whole request.
			e.logger.Warn().Err(err).Str("user", userID).Msg("click log unavailable, skipping filter")
			clicked = nil
		}
	}

	// Over-fetch so filtered or unresolvable ids still leave enough
	// candidates to fill topK.
	fetchK := topK + len(clicked)
	results, err := e.index.Search(ctx, query, fetchK)
	if err != nil {
		if errors.Is(err, vectorindex.ErrIndexUnavailable) || errors.Is(err, vectorindex.ErrDimensionMismatch) {
			metrics.RecommendRequests.WithLabelValues("unavailable").Inc()
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
		metrics.RecommendRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("index search: %w", err)
	}

	recs := make([]Recommendation, 0, topK)
	for _, r := range results {
		if len(recs) == topK {
			break
		}
		if clicked[r.ID] {
			continue
		}
		article, err := e.articles.Get(ctx, r.ID)
		if err != nil {
			// Deleted or missing content: skip, partial results beat
			// an all-or-nothing failure.
			metrics.RecommendSkippedArticles.Inc()
			e.logger.Warn().
				Err(err).
				Str("article", r.ID).
				Msg("indexed article failed resolution, skipping")
			continue
		}
		recs = append(recs, Recommendation{Article: article, Distance: r.Distance})
	}

	metrics.RecommendRequests.WithLabelValues("ok").Inc()
	e.logger.Debug().
		Str("user", userID).
		Int("requested", topK).
		Int("returned", len(recs)).
		Dur("took", time.Since(start)).
		Msg("recommendations generated")
	return recs, nil
}

// QueryVector lays the preference weights out in canonical taxonomy order
// and aligns the result to the index dimension: zero-padded when shorter,
// truncated when longer, then L2-normalized for scale-invariant comparison.
func QueryVector(vec preferences.WeightVector, dim int) []float32 {
	weights := vec.Ordered()

	query := make([]float32, dim)
	for i := 0; i < dim && i < len(weights); i++ {
		query[i] = float32(weights[i])
	}
	return vectorindex.NormalizeL2(query)
}
