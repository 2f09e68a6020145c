// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/newsprism/internal/logging"
)

// RouterConfig holds the router's middleware configuration.
type RouterConfig struct {
	Timeout         time.Duration
	RateLimitReqs   int
	RateLimitWindow time.Duration
	CORSOrigins     []string
}

// DefaultRouterConfig returns the default middleware configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Timeout:         30 * time.Second,
		RateLimitReqs:   100,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	}
}

// NewRouter builds the chi router with the full middleware stack and all
// API routes.
func NewRouter(handler *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware())
	r.Use(chimiddleware.Timeout(cfg.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Get("/health/live", handler.HealthLive)
	r.Get("/health/ready", handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health probes stay outside the rate limit so an aggressive
		// client cannot starve orchestration checks.
		r.Get("/health/live", handler.HealthLive)
		r.Get("/health/ready", handler.HealthReady)

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(
				cfg.RateLimitReqs,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))

			r.Post("/clicks", handler.PostClick)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/preferences", handler.GetPreferences)
				r.Put("/preferences", handler.PutPreferences)
				r.Get("/recommendations", handler.GetRecommendations)
			})

			r.Route("/articles", func(r chi.Router) {
				r.Get("/", handler.ListArticles)
				r.Get("/{articleID}", handler.GetArticle)
				r.Delete("/{articleID}", handler.DeleteArticle)
			})

			r.Post("/index/rebuild", handler.RebuildIndex)
		})
	})

	return r
}

// requestIDMiddleware attaches a request id to the context so handler
// logs and response envelopes carry it. An incoming X-Request-ID header
// is honored for cross-service tracing.
func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimited writes the envelope-shaped 429 the rest of the API uses.
func rateLimited(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
}
