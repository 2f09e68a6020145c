// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package ingest fetches top headlines from a NewsAPI-compatible service,
// stores them as articles, and rebuilds the embedding index.
//
// The upstream API is paginated per category. Fetches go through a circuit
// breaker and a client-side rate limiter: headline APIs throttle
// aggressively and a tripped key must not be hammered.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/newsprism/internal/metrics"
	"github.com/tomtom215/newsprism/internal/taxonomy"
)

// pageSize is the upstream maximum page size.
const pageSize = 100

// Headline is one article as returned by the upstream API.
type Headline struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"urlToImage"`
	PublishedAt time.Time `json:"publishedAt"`
}

// headlinesResponse is the upstream response envelope.
type headlinesResponse struct {
	Status       string     `json:"status"`
	TotalResults int        `json:"totalResults"`
	Articles     []Headline `json:"articles"`
}

// ClientConfig configures the headline API client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://newsapi.org/v2.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Country filters headlines, e.g. "us".
	Country string

	// RequestsPerSecond is the client-side rate limit.
	RequestsPerSecond float64

	// Timeout bounds one HTTP request.
	Timeout time.Duration
}

// Client fetches headlines with breaker and rate-limit protection.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]Headline]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a headline API client.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}

	settings := gobreaker.Settings{
		Name:    "headlines",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]Headline](settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// TopHeadlines fetches all pages of headlines for one category.
func (c *Client) TopHeadlines(ctx context.Context, category taxonomy.Category) ([]Headline, error) {
	var all []Headline
	for page := 1; ; page++ {
		batch, err := c.fetchPage(ctx, category, page)
		if err != nil {
			metrics.IngestFetches.WithLabelValues(category.String(), fetchOutcome(err)).Inc()
			return nil, fmt.Errorf("fetch %s page %d: %w", category, page, err)
		}
		metrics.IngestFetches.WithLabelValues(category.String(), "ok").Inc()
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
	}
}

// fetchOutcome maps a fetch error to a metric label.
func fetchOutcome(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "error"
}

// fetchPage fetches one page through the limiter and breaker.
func (c *Client) fetchPage(ctx context.Context, category taxonomy.Category, page int) ([]Headline, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.breaker.Execute(func() ([]Headline, error) {
		endpoint, err := url.Parse(c.cfg.BaseURL + "/top-headlines")
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		q := endpoint.Query()
		q.Set("category", category.String())
		q.Set("country", c.cfg.Country)
		q.Set("pageSize", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
		endpoint.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, body)
		}

		var parsed headlinesResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return parsed.Articles, nil
	})
}

// ArticleID derives a stable content id from the headline's identifying
// fields. The same headline always hashes to the same id, which makes
// re-ingestion naturally idempotent.
func ArticleID(h Headline) string {
	unique := fmt.Sprintf("%s %s %s %s", h.Title, h.Description, h.URL, h.PublishedAt.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(unique))
	return hex.EncodeToString(sum[:])
}
