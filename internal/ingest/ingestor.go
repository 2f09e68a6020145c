// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/content"
	"github.com/tomtom215/newsprism/internal/metrics"
	"github.com/tomtom215/newsprism/internal/taxonomy"
	"github.com/tomtom215/newsprism/internal/vectorindex"
)

// Embedder maps text to a fixed-length embedding vector. Embedding
// generation is an external collaborator; this interface is its contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedder calls an external embedding service.
type HTTPEmbedder struct {
	url  string
	http *http.Client
}

// NewHTTPEmbedder creates an embedder client for the given endpoint.
func NewHTTPEmbedder(url string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Embed posts the text and returns the embedding vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder status %d", resp.StatusCode)
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}
	return parsed.Embedding, nil
}

// Ingestor fetches headlines, stores them with embeddings, and rebuilds
// the vector index.
type Ingestor struct {
	client   *Client
	embedder Embedder
	store    *content.Store
	index    *vectorindex.Store
	logger   zerolog.Logger
}

// NewIngestor creates an ingestor.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewIngestor(client *Client, embedder Embedder, store *content.Store, index *vectorindex.Store, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		client:   client,
		embedder: embedder,
		store:    store,
		index:    index,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Run performs one full ingestion cycle: fetch every category, store and
// embed new articles, then rebuild the index from the full article set.
// A failing category is logged and skipped so one throttled category does
// not starve the rest.
func (ing *Ingestor) Run(ctx context.Context) error {
	stored := 0
	for _, category := range taxonomy.All() {
		headlines, err := ing.client.TopHeadlines(ctx, category)
		if err != nil {
			ing.logger.Error().Err(err).Str("category", category.String()).Msg("headline fetch failed")
			continue
		}

		for _, h := range headlines {
			if h.Title == "" || h.URL == "" {
				continue
			}
			article, err := ing.buildArticle(ctx, category, h)
			if err != nil {
				ing.logger.Warn().Err(err).Str("url", h.URL).Msg("article skipped")
				continue
			}
			if err := ing.store.Put(ctx, article); err != nil {
				ing.logger.Error().Err(err).Str("article", article.ID).Msg("article store failed")
				continue
			}
			metrics.IngestArticlesStored.Inc()
			stored++
		}
	}

	ing.logger.Info().Int("stored", stored).Msg("ingestion cycle complete")
	return ing.RebuildIndex(ctx)
}

// buildArticle derives the id, embeds the cleaned text, and assembles the
// article record.
func (ing *Ingestor) buildArticle(ctx context.Context, category taxonomy.Category, h Headline) (content.Article, error) {
	text := CleanText(h.Title) + " " + CleanText(h.Description)
	embedding, err := ing.embedder.Embed(ctx, text)
	if err != nil {
		return content.Article{}, fmt.Errorf("embed: %w", err)
	}

	return content.Article{
		ID:          ArticleID(h),
		Title:       h.Title,
		Category:    category,
		Description: h.Description,
		URL:         h.URL,
		ImageURL:    h.ImageURL,
		PublishedAt: h.PublishedAt,
		Embedding:   embedding,
	}, nil
}

// RebuildIndex rebuilds the vector index from every stored article that
// carries an embedding.
func (ing *Ingestor) RebuildIndex(ctx context.Context) error {
	articles, err := ing.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	entries := make([]vectorindex.Entry, 0, len(articles))
	for _, a := range articles {
		if len(a.Embedding) == 0 {
			continue
		}
		entries = append(entries, vectorindex.Entry{ID: a.ID, Vector: a.Embedding})
	}
	if len(entries) == 0 {
		ing.logger.Warn().Msg("no embedded articles, index left unchanged")
		return nil
	}

	if err := ing.index.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	ing.logger.Info().Int("vectors", len(entries)).Msg("index rebuilt")
	return nil
}

// CleanText lowercases, trims, and strips non-alphanumeric characters,
// matching the preprocessing articles were embedded with.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
