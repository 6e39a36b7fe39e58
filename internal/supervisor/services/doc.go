// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package services provides suture.Service wrappers for Vigil components.

This package adapts components whose lifecycle does not already follow
the suture v4 model, translating their patterns (ListenAndServe,
RunWithContext, Start/Shutdown) into suture's context-aware Serve.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation to the Serve pattern
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts the blocking ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

WebSocket Hub (WebSocketHubService):
  - Wraps websocket.Hub's RunWithContext
  - Handles client connection cleanup on shutdown

NATS Components (NATSComponentsService):
  - Wraps the embedded NATS server, JetStream connection, and
    Watermill router from cmd/server
  - Build tag: nats (disabled by default)

Components that implement Serve natively (the session monitor,
recently-added watcher, metadata refresher, notification outbox, and
newsletter scheduler) are added to the tree directly and need no
wrapper here.

# Usage Example

	server := &http.Server{Addr: ":8282", Handler: router.SetupChi()}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddDeliveryService(services.NewWebSocketHubService(hub))

# Error Semantics

A wrapper returning an error tells the supervisor the service crashed
and should be restarted with backoff. Returning ctx.Err() after a
requested shutdown tells suture the stop was orderly.
*/
package services
