// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package api HTTP routing built on the Chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/mpellar/vigil/internal/middleware"
)

// Router wires the Handler's endpoints into a Chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil chiMw builds the middleware factory
// from the handler's API config, which is what production startup does;
// tests pass their own to tweak CORS or disable rate limiting.
func NewRouter(handler *Handler, chiMw *ChiMiddleware) *Router {
	if chiMw == nil {
		if handler != nil && handler.config != nil {
			chiMw = NewChiMiddlewareFromAPIConfig(handler.config.API)
		} else {
			chiMw = NewChiMiddleware(nil)
		}
	}

	return &Router{
		handler:       handler,
		chiMiddleware: chiMw,
	}
}

// SetupChi configures all HTTP routes using the Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Applied to ALL routes in order
	r.Use(middleware.RequestID)        // X-Request-ID header plus logging context
	r.Use(chimiddleware.RealIP)        // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)     // Recover from panics
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	apiKey := ""
	if router.handler.config != nil {
		apiKey = router.handler.config.API.Key
	}

	// ========================
	// Health Endpoints
	// ========================
	// Permissive rate limiting so monitoring tools can poll freely.
	// Probes stay unauthenticated: orchestrators cannot present keys.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// ========================
	// Statistics Endpoints
	// ========================
	// Permissive rate limiting for read-heavy cached statistics; a
	// dashboard loads several charts at once.
	r.Route("/api/v1/stats", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitStats())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)
		r.Use(router.handler.perfMon.Middleware)
		r.Use(APIKeyAuth(apiKey))

		r.Get("/home", router.handler.StatsHome)
		r.Get("/plays", router.handler.StatsPlays)
		r.Get("/user/{id}", router.handler.StatsUser)
		r.Get("/library/{id}", router.handler.StatsLibrary)
	})

	// ========================
	// Core API Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)
		r.Use(router.handler.perfMon.Middleware)
		r.Use(APIKeyAuth(apiKey))

		r.Get("/activity", router.handler.Activity)

		r.Get("/history", router.handler.History)
		r.With(router.chiMiddleware.RateLimitWrite()).Delete("/history", router.handler.HistoryDelete)

		r.Get("/users", router.handler.Users)
		r.Get("/users/{id}", router.handler.UserByID)

		r.Get("/libraries", router.handler.Libraries)
		r.Get("/libraries/{id}", router.handler.LibraryByID)
		r.Get("/recently-added", router.handler.RecentlyAdded)

		r.Route("/server", func(r chi.Router) {
			r.Get("/info", router.handler.ServerInfo)
			r.Get("/status", router.handler.ServerStatus)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/terminate", router.handler.ServerTerminate)
		})

		r.Route("/notifiers", func(r chi.Router) {
			r.Get("/", router.handler.Notifiers)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/", router.handler.NotifierCreate)
			r.Get("/{id}", router.handler.NotifierByID)
			r.With(router.chiMiddleware.RateLimitWrite()).Put("/{id}", router.handler.NotifierUpdate)
			r.With(router.chiMiddleware.RateLimitWrite()).Delete("/{id}", router.handler.NotifierDelete)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/{id}/test", router.handler.NotifierTest)
		})
		r.Get("/notifications", router.handler.NotifyLog)

		r.Route("/newsletters", func(r chi.Router) {
			r.Get("/", router.handler.NewsletterSchedules)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/", router.handler.NewsletterCreate)
			r.Get("/log", router.handler.NewsletterLog)
			r.Get("/{id}", router.handler.NewsletterByID)
			r.With(router.chiMiddleware.RateLimitWrite()).Put("/{id}", router.handler.NewsletterUpdate)
			r.With(router.chiMiddleware.RateLimitWrite()).Delete("/{id}", router.handler.NewsletterDelete)
			r.Post("/{id}/preview", router.handler.NewsletterPreview)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/{id}/send", router.handler.NewsletterSend)
		})
	})

	// ========================
	// WebSocket Endpoint
	// ========================
	// Own group without the response-wrapping middleware: the metrics,
	// compression, and performance wrappers do not implement
	// http.Hijacker, which the upgrade needs.
	r.Route("/api/v1/ws", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket))
		r.Use(APISecurityHeaders())
		r.Use(APIKeyAuth(apiKey))
		r.Get("/", router.handler.WebSocket)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	return r
}
