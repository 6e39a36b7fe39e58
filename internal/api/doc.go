// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package api provides the HTTP REST API layer for Vigil.

This package implements the JSON endpoints for live session activity, playback
history, statistics, notification management, and newsletter scheduling. It is
the interface between API consumers (dashboards, scripts, mobile clients) and
the backend services.

Key Components:

  - Router: HTTP route configuration and middleware stack integration
  - Handler: Request handlers for all API endpoints
  - Response formatting: Standardized JSON responses with metadata
  - Error handling: Consistent error responses with appropriate HTTP status codes
  - API key authentication: X-Api-Key header or apikey query parameter
  - Rate limiting: Per-IP limits with separate budgets for reads, writes, and stats
  - CORS: Cross-Origin Resource Sharing for browser-based consumers

API Categories:

The API is organized into the following categories:

1. Core Endpoints (/api/v1/):
  - Live session activity (activity)
  - Playback history with filtering and deletion (history)
  - Users and library sections (users, libraries, recently-added)

2. Statistics Endpoints (/api/v1/stats/):
  - Home dashboard statistic cards (stats/home)
  - Play count series by date, day of week, hour, stream type, month (stats/plays)
  - Per-user watch time and player breakdowns (stats/user/{id})
  - Per-library watch time and user breakdowns (stats/library/{id})

3. Server Endpoints (/api/v1/server/):
  - Upstream media server identity (server/info)
  - Poller and circuit breaker state (server/status)
  - Stream termination (server/terminate)

4. Notification Endpoints (/api/v1/notifiers, /api/v1/newsletters):
  - Notifier CRUD with test delivery
  - Newsletter schedule CRUD with preview, immediate send, and delivery logs

5. WebSocket Endpoint (/api/v1/ws):
  - Real-time session start/stop/change broadcasts
  - Notification delivery announcements

Usage Example:

	import (
	    "github.com/mpellar/vigil/internal/api"
	    "github.com/mpellar/vigil/internal/database"
	)

	// Create dependencies
	db, _ := database.New(ctx, cfg.Database)
	handler := api.NewHandler(db, mon, client, cfg, wsHub)

	// Create router and start server
	router := api.NewRouter(handler, nil)
	http.ListenAndServe(":8282", router.SetupChi())

Performance Characteristics:

  - Caching: 5-minute TTL for statistics endpoints
  - Compression: Gzip middleware for responses >1KB
  - Live endpoints (activity, server/status) bypass caching entirely

Thread Safety:

All handlers are thread-safe and designed for concurrent request handling.
Shared resources (database, cache, WebSocket hub) are protected by their
respective synchronization primitives.

Security:

  - API key comparison in constant time
  - Rate limiting (100 req/min per IP by default)
  - Input validation via go-playground/validator request structs
  - SQL injection prevention via parameterized queries

See Also:

  - internal/database: Data access layer
  - internal/models: Request/response data structures
  - internal/middleware: HTTP middleware components
  - internal/monitor: Session polling and event detection
*/
package api
