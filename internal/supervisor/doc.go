// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package supervisor provides process supervision for Vigil using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of all long-running services in the application. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation,
and graceful shutdown.

# Overview

The supervisor tree organizes services into three layers for failure
isolation:

	Root ("vigil")
	├── IngestSupervisor ("ingest-layer")
	│   ├── session-monitor
	│   ├── recently-added-watcher
	│   └── metadata-refresher
	├── DeliverySupervisor ("delivery-layer")
	│   ├── websocket-hub
	│   ├── notify-outbox
	│   ├── newsletter-scheduler
	│   └── nats-components (build tag: nats)
	└── APISupervisor ("api-layer")
	    └── http-server

This hierarchy ensures that:
  - A poller crash doesn't affect WebSocket connections
  - A stuck delivery pipeline doesn't impact API availability
  - Each layer can restart independently

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

The monitor, watcher, refresher, outbox, and newsletter scheduler
implement Serve directly. Components with other lifecycles (the HTTP
server's ListenAndServe/Shutdown pair, the WebSocket hub's
RunWithContext) are adapted by the wrappers in the services subpackage.

# Usage Example

Basic setup in main.go:

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    log.Fatal(err)
	}

	tree.AddIngestService(mon)
	tree.AddDeliveryService(services.NewWebSocketHubService(hub))
	tree.AddDeliveryService(outboxSvc)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	// Start the tree (blocks until context canceled)
	if err := tree.Serve(ctx); err != nil {
	    log.Printf("Supervisor stopped: %v", err)
	}

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. Counter decays exponentially over time (FailureDecay seconds)
 3. When counter exceeds FailureThreshold, supervisor enters backoff
 4. During backoff, restarts are delayed by FailureBackoff duration

Default values match suture's production-ready defaults: threshold 5,
decay 30s, backoff 15s, shutdown timeout 10s.

# Structured Logging

Supervisor events (service starts, stops, failures, restarts) are
emitted through sutureslog into an slog.Logger. Production wiring
passes logging.NewSlogLogger(), which bridges into the zerolog
pipeline, so supervision events land in the same stream as everything
else.

# What Is NOT Supervised

DuckDB is intentionally not supervised:
  - It's an embedded library, not a long-running service
  - Connections are managed by the database package
  - Crashes in DuckDB would require process restart anyway

The Plex connection is supervised indirectly via the session monitor:
the circuit-breaker client provides failure isolation for API calls, and
the monitor's poll loop survives upstream outages without crashing.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

Common causes:
  - Goroutines not respecting context cancellation
  - Blocked network I/O without deadlines
  - Mutex deadlocks during shutdown
*/
package supervisor
