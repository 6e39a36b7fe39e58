// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/middleware"
	"github.com/mpellar/vigil/internal/monitor"
	"github.com/mpellar/vigil/internal/newsletter"
	"github.com/mpellar/vigil/internal/notify"
	"github.com/mpellar/vigil/internal/pms"
	ws "github.com/mpellar/vigil/internal/websocket"
)

// statsCacheTTL is how long aggregated statistics responses stay warm.
// History writes clear the cache early, so this only bounds staleness
// for data changed outside the API (the poller finalizing sessions).
const statsCacheTTL = 5 * time.Minute

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files by concern:
//   - handlers.go: Handler struct, constructor, WebSocket upgrade (this file)
//   - handlers_helpers.go: shared response and parsing helpers
//   - handlers_activity.go: live session snapshot
//   - handlers_history.go: playback history listing and deletion
//   - handlers_stats.go: aggregated watch statistics
//   - handlers_users.go: user listing and detail
//   - handlers_libraries.go: library sections and recently added
//   - handlers_server.go: upstream server info, status, termination
//   - handlers_notifiers.go: notification agent CRUD and test sends
//   - handlers_newsletters.go: newsletter schedule CRUD, preview, send
//   - handlers_health.go: health and readiness probes
type Handler struct {
	db          *database.DB
	monitor     *monitor.Monitor
	client      pms.ClientInterface
	config      *config.Config
	wsHub       *ws.Hub
	dispatcher  *notify.Dispatcher
	newsletters *newsletter.Scheduler
	startTime   time.Time
	cache       *cache.Cache
	perfMon     *middleware.PerformanceMonitor
	templates   *newsletter.TemplateEngine
}

// NewHandler creates a new API handler with the core dependencies.
//
// The notification dispatcher and newsletter scheduler are optional and
// attached later via SetDispatcher and SetNewsletterScheduler; handlers
// that need them respond 503 until they are wired.
//
// The handler initializes with a short-TTL cache for statistics
// endpoints, a performance monitor tracking the last 1000 requests, and
// a start time for uptime reporting.
//
// Example:
//
//	handler := api.NewHandler(db, mon, client, cfg, wsHub)
//	router := api.NewRouter(handler, chiMw)
//	http.ListenAndServe(":8282", router.SetupChi())
func NewHandler(db *database.DB, mon *monitor.Monitor, client pms.ClientInterface, cfg *config.Config, wsHub *ws.Hub) *Handler {
	return &Handler{
		db:        db,
		monitor:   mon,
		client:    client,
		config:    cfg,
		wsHub:     wsHub,
		startTime: time.Now(),
		cache:     cache.New(statsCacheTTL),
		perfMon:   middleware.NewPerformanceMonitor(1000), // Keep last 1000 requests
		templates: newsletter.NewTemplateEngine(),
	}
}

// SetDispatcher attaches the notification dispatcher used by the test
// send endpoint. Called once during startup after the dispatcher is
// built.
func (h *Handler) SetDispatcher(d *notify.Dispatcher) {
	h.dispatcher = d
}

// SetNewsletterScheduler attaches the newsletter scheduler used by the
// preview and send-now endpoints. Called once during startup.
func (h *Handler) SetNewsletterScheduler(s *newsletter.Scheduler) {
	h.newsletters = s
}

// PerformanceMonitor exposes the request performance monitor so the
// router can install its middleware.
func (h *Handler) PerformanceMonitor() *middleware.PerformanceMonitor {
	return h.perfMon
}

// ClearCache invalidates all cached statistics data. Called after
// history deletions so the next request queries the database directly.
//
// Thread Safety: Safe for concurrent access.
func (h *Handler) ClearCache() {
	if h.cache != nil {
		h.cache.Clear()
		logging.Info().Msg("Statistics cache cleared")
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// If no origin header, REJECT - legitimate browser WebSockets ALWAYS
	// include Origin. Only non-browser clients (curl, scripts) omit it,
	// and allowing empty Origin bypasses CORS entirely.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	// If config is nil, allow by default (fail open for tests/development)
	if h.config == nil {
		return true
	}

	// Check against allowed origins from config
	for _, allowedOrigin := range h.config.API.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	// Origin not in allowed list - sanitize origin to prevent log injection
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket handles WebSocket connections
//
// @Summary Establish WebSocket connection
// @Description Establishes a WebSocket connection for real-time activity, transition, and notification broadcasts
// @Tags Realtime
// @Accept json
// @Produce json
// @Success 101 {string} string "Switching Protocols"
// @Failure 400 {string} string "Bad Request"
// @Failure 503 {string} string "WebSocket hub not available"
// @Router /ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}
