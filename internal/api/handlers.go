// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/content"
	"github.com/tomtom215/newsprism/internal/events"
	"github.com/tomtom215/newsprism/internal/preferences"
	"github.com/tomtom215/newsprism/internal/recommend"
	"github.com/tomtom215/newsprism/internal/taxonomy"
	"github.com/tomtom215/newsprism/internal/vectorindex"
)

// PreferenceStore is the preference surface the handlers need.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (preferences.WeightVector, error)
	SetExplicit(ctx context.Context, userID string, categories []taxonomy.Category) error
}

// Recommender produces personalized article rankings.
type Recommender interface {
	Recommend(ctx context.Context, userID string, topK int) ([]recommend.Recommendation, error)
}

// ClickPublisher emits click events onto the bus.
type ClickPublisher interface {
	Publish(ctx context.Context, click events.Click) error
}

// ArticleStore is the content surface the handlers need.
type ArticleStore interface {
	Get(ctx context.Context, id string) (content.Article, error)
	List(ctx context.Context) ([]content.Article, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Index is the vector index surface the handlers need.
type Index interface {
	Rebuild(ctx context.Context, entries []vectorindex.Entry) error
	Ready() bool
	Count() int
	Dim() int
}

// Handler serves the API endpoints.
type Handler struct {
	prefs    PreferenceStore
	engine   Recommender
	articles ArticleStore
	index    Index
	clicks   ClickPublisher
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler creates the API handler.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(prefs PreferenceStore, engine Recommender, articles ArticleStore, index Index, clicks ClickPublisher, logger zerolog.Logger) *Handler {
	return &Handler{
		prefs:    prefs,
		engine:   engine,
		articles: articles,
		index:    index,
		clicks:   clicks,
		validate: validator.New(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// clickRequest is the POST /clicks body.
type clickRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ArticleID string `json:"article_id" validate:"required"`
}

// preferencesRequest is the PUT /users/{userID}/preferences body.
type preferencesRequest struct {
	Categories []string `json:"categories" validate:"required,min=1"`
}

// preferencesView is the preference response payload.
type preferencesView struct {
	UserID  string             `json:"user_id"`
	Weights map[string]float64 `json:"weights"`
}

// articleView is an article without its embedding, which is an internal
// detail clients have no use for.
type articleView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// recommendationView is one ranked article in a recommendation response.
type recommendationView struct {
	Article  articleView `json:"article"`
	Distance float32     `json:"distance"`
}

func toArticleView(a content.Article) articleView {
	return articleView{
		ID:          a.ID,
		Title:       a.Title,
		Category:    a.Category.String(),
		Description: a.Description,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		PublishedAt: a.PublishedAt,
	}
}

func toPreferencesView(userID string, vec preferences.WeightVector) preferencesView {
	weights := make(map[string]float64, len(vec))
	for category, weight := range vec {
		weights[category.String()] = weight
	}
	return preferencesView{UserID: userID, Weights: weights}
}

// PostClick accepts a click event for asynchronous processing.
func (h *Handler) PostClick(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rw.ValidationError("invalid click", err.Error())
		return
	}

	click := events.Click{
		UserID:    req.UserID,
		ArticleID: req.ArticleID,
		At:        time.Now().UTC(),
	}
	if err := h.clicks.Publish(r.Context(), click); err != nil {
		h.logger.Error().Err(err).Str("user", req.UserID).Msg("click publish failed")
		rw.InternalError("failed to enqueue click")
		return
	}

	rw.Accepted(map[string]string{"status": "accepted"})
}

// GetPreferences returns a user's preference profile.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")

	vec, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, preferences.ErrNotFound) {
			rw.NotFound("no preferences for user")
			return
		}
		h.logger.Error().Err(err).Str("user", userID).Msg("preference read failed")
		rw.InternalError("failed to read preferences")
		return
	}

	rw.Success(toPreferencesView(userID, vec))
}

// PutPreferences replaces a user's preference profile with equal weights
// over the submitted categories.
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rw.ValidationError("invalid preferences", err.Error())
		return
	}

	categories := make([]taxonomy.Category, 0, len(req.Categories))
	for _, raw := range req.Categories {
		category, err := taxonomy.Parse(raw)
		if err != nil {
			continue // unknown categories are filtered, not fatal
		}
		categories = append(categories, category)
	}

	if err := h.prefs.SetExplicit(r.Context(), userID, categories); err != nil {
		if errors.Is(err, preferences.ErrNoValidCategories) {
			rw.BadRequest("no valid categories in request")
			return
		}
		h.logger.Error().Err(err).Str("user", userID).Msg("preference write failed")
		rw.InternalError("failed to store preferences")
		return
	}

	vec, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user", userID).Msg("preference readback failed")
		rw.InternalError("failed to read preferences")
		return
	}
	rw.Success(toPreferencesView(userID, vec))
}

// GetRecommendations returns the top-k articles for a user.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")

	topK := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			rw.BadRequest("k must be a non-negative integer")
			return
		}
		topK = parsed
	}

	recs, err := h.engine.Recommend(r.Context(), userID, topK)
	if err != nil {
		switch {
		case errors.Is(err, preferences.ErrNotFound):
			rw.NotFound("no preferences for user")
		case errors.Is(err, recommend.ErrUnavailable):
			rw.ServiceUnavailable("recommendations temporarily unavailable")
		default:
			h.logger.Error().Err(err).Str("user", userID).Msg("recommendation failed")
			rw.InternalError("recommendation failed")
		}
		return
	}

	views := make([]recommendationView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, recommendationView{
			Article:  toArticleView(rec.Article),
			Distance: rec.Distance,
		})
	}
	rw.Success(views)
}

// ListArticles returns all stored articles.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	articles, err := h.articles.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("article list failed")
		rw.InternalError("failed to list articles")
		return
	}

	views := make([]articleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, toArticleView(a))
	}
	rw.Success(views)
}

// GetArticle returns one article by id.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "articleID")

	article, err := h.articles.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			rw.NotFound("article not found")
			return
		}
		h.logger.Error().Err(err).Str("article", id).Msg("article read failed")
		rw.InternalError("failed to read article")
		return
	}

	rw.Success(toArticleView(article))
}

// DeleteArticle removes an article and its interaction log entries. The
// vector index keeps the stale vector until the next rebuild; the
// recommendation engine skips ids it cannot resolve.
func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "articleID")

	if err := h.articles.Delete(r.Context(), id); err != nil {
		if errors.Is(err, content.ErrNotFound) {
			rw.NotFound("article not found")
			return
		}
		h.logger.Error().Err(err).Str("article", id).Msg("article delete failed")
		rw.InternalError("failed to delete article")
		return
	}

	rw.Success(map[string]string{"deleted": id})
}

// RebuildIndex rebuilds the vector index from the stored articles.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	articles, err := h.articles.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("article list failed")
		rw.InternalError("failed to list articles")
		return
	}

	entries := make([]vectorindex.Entry, 0, len(articles))
	for _, a := range articles {
		if len(a.Embedding) == 0 {
			continue
		}
		entries = append(entries, vectorindex.Entry{ID: a.ID, Vector: a.Embedding})
	}
	if len(entries) == 0 {
		rw.BadRequest("no embedded articles to index")
		return
	}

	if err := h.index.Rebuild(r.Context(), entries); err != nil {
		h.logger.Error().Err(err).Msg("index rebuild failed")
		rw.InternalError("index rebuild failed")
		return
	}

	rw.Success(map[string]int{"vectors": len(entries), "dim": h.index.Dim()})
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// HealthReady reports readiness, including index state. The service is
// considered ready without an index: preference endpoints work from the
// start, and recommendations return 503 until the first build.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	articleCount, err := h.articles.Count(r.Context())
	if err != nil {
		rw.ServiceUnavailable("content store unavailable")
		return
	}

	rw.Success(map[string]interface{}{
		"status":      "ok",
		"articles":    articleCount,
		"index_ready": h.index.Ready(),
		"vectors":     h.index.Count(),
	})
}
