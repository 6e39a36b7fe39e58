// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package main is the entry point for the Vigil server application.

Vigil is a self-hosted monitoring and analytics companion for a Plex Media
Server. It polls the server's session API to track currently playing
streams, records finished sessions as playback history in DuckDB, serves
history and statistics over a JSON API, and fires notifications and
newsletters on playback events.

# Application Architecture

The server implements a layered architecture with Suture v4 process
supervision:

	RootSupervisor ("vigil")
	├── IngestSupervisor ("ingest-layer")
	│   ├── Session Monitor (poll loop over /status/sessions)
	│   ├── Recently-Added Watcher (library additions)
	│   └── Metadata Refresher (users and library sections)
	├── DeliverySupervisor ("delivery-layer")
	│   ├── WebSocket Hub (real-time activity feed)
	│   ├── Notification Outbox (journaled delivery replay)
	│   ├── Newsletter Scheduler (optional)
	│   └── NATS components (optional, -tags nats)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (JSON API and Swagger docs)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB with schema migrations and history indexes
 4. Plex client: circuit breaker around the PMS REST API
 5. Server identity: machine identifier probe from /identity
 6. Monitor: session tracker with transition detection
 7. Notifications: BadgerDB outbox journal and dispatcher
 8. Event stream (optional): embedded NATS JetStream via Watermill
 9. Supervisor Tree: Suture v4 process supervision
 10. HTTP Server: Chi router with middleware stack

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest
priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	# Plex connection (required)
	PLEX_URL=http://localhost:32400
	PLEX_TOKEN=<x-plex-token>

	# Server
	HTTP_PORT=8282               # HTTP server port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# API access
	API_KEY=<key>                # Required by data endpoints when set

	# Monitor tuning
	MONITOR_POLL_INTERVAL=15s
	MONITOR_RECENTLY_ADDED_INTERVAL=5m

	# Notifications
	NOTIFY_ENABLED=true
	NOTIFY_OUTBOX_PATH=/data/outbox

	# Newsletters
	NEWSLETTER_ENABLED=false

See .env.example for the complete configuration reference.

# Build Tags

Optional build tags enable additional functionality:

	go build ./cmd/server               # Standard build (in-process dispatch)
	go build -tags nats ./cmd/server    # Enable NATS JetStream event stream

The nats tag adds the embedded JetStream server, the Watermill publisher
the monitor writes session events through, and the durable notifier
consumer. Without the tag the monitor hands events straight to the
notification dispatcher, so both builds fire the same notifications.

# Signal Handling

The server handles graceful shutdown on SIGINT and SIGTERM:

 1. Stops accepting new HTTP connections
 2. Broadcasts shutdown to WebSocket clients
 3. Waits for in-flight requests (10s timeout)
 4. Drains the event router and closes the outbox journal
 5. Flushes pending writes and closes the database
 6. Reports any services that failed to stop

# Usage Examples

Development:

	export PLEX_URL=http://localhost:32400
	export PLEX_TOKEN=xxx
	go run ./cmd/server

Production:

	export PLEX_URL=http://plex:32400
	export PLEX_TOKEN=xxx
	export API_KEY=$(openssl rand -hex 24)
	export ENVIRONMENT=production
	./vigil

Docker:

	docker run -d \
	  -e PLEX_URL=http://plex:32400 \
	  -e PLEX_TOKEN=xxx \
	  -e API_KEY=xxx \
	  -v vigil-data:/data \
	  -p 8282:8282 \
	  ghcr.io/mpellar/vigil

# API Documentation

Swagger documentation is available at /swagger/index.html when the server
is running. The API is organized into categories:

  - Core: Health checks, server info, monitor status
  - Activity: Current sessions and stream termination
  - History: Playback history with filtering, grouping and delete
  - Statistics: Home stats, play counts, per-user and per-library rollups
  - Users / Libraries: Watch-time statistics per dimension
  - Notifications: Notifier CRUD, test delivery, notification log
  - Newsletters: Schedule CRUD, preview, send-now, delivery log
  - Realtime: WebSocket activity feed

# See Also

  - internal/config: Configuration management
  - internal/supervisor: Process supervision
  - internal/monitor: Session polling and transition tracking
  - internal/api: HTTP handlers and routing
  - internal/notify: Notification dispatch and outbox replay
*/
package main
