// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package main provides the Vigil HTTP server
//
// Vigil monitors a Plex Media Server, recording playback activity into
// a local analytics database and raising notifications on stream events.
//
// @title Vigil API
// @version 1.0
// @description Self-hosted monitoring and playback analytics for Plex Media Server
// @description
// @description ## Features
// @description
// @description - **Live Activity**: Currently playing sessions with transcode and bandwidth detail
// @description - **Playback History**: Filterable history with grouped views and watched thresholds
// @description - **Statistics**: Home cards, play count series, per-user and per-library breakdowns
// @description - **Notifications**: Webhook and email notifiers with per-trigger subscriptions
// @description - **Newsletters**: Cron-scheduled recently-added digests
// @description - **Real-time Updates**: WebSocket-based session broadcasts
// @description
// @description ## Authentication
// @description
// @description All endpoints except health probes require the configured API key,
// @description sent as the `X-Api-Key` header or the `apikey` query parameter.
// @description
// @description ## Rate Limiting
// @description
// @description Default rate limit: 100 requests per minute per IP address.
// @description Rate limit headers are included in responses: `X-RateLimit-Limit`, `X-RateLimit-Remaining`, `X-RateLimit-Reset`.
// @description
// @description ## Error Responses
// @description
// @description All error responses follow this format:
// @description ```json
// @description {
// @description   "status": "error",
// @description   "data": null,
// @description   "error": {
// @description     "code": "ERROR_CODE",
// @description     "message": "Human-readable error message",
// @description     "details": {}
// @description   },
// @description   "metadata": {
// @description     "timestamp": "2026-08-23T12:34:56Z"
// @description   }
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/mpellar/vigil/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8282
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-Api-Key
// @description API key configured at startup. Also accepted as the apikey query parameter for WebSocket clients.
//
// @tag.name Core
// @tag.description Health checks and system status
//
// @tag.name Activity
// @tag.description Live playback session monitoring
//
// @tag.name History
// @tag.description Playback history queries and record management
//
// @tag.name Statistics
// @tag.description Aggregated playback statistics for dashboards
//
// @tag.name Users
// @tag.description Media server user accounts observed in playback activity
//
// @tag.name Libraries
// @tag.description Library sections and recently added media
//
// @tag.name Server
// @tag.description Upstream media server information and stream control
//
// @tag.name Notifications
// @tag.description Notifier management, test delivery, and delivery logs
//
// @tag.name Newsletters
// @tag.description Newsletter schedules, previews, and delivery logs
//
// @tag.name Realtime
// @tag.description Real-time WebSocket connections for live session and notification updates
package main
