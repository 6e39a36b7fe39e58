// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package pms implements the HTTP client for the Plex Media Server REST API.

The client authenticates with an X-Plex-Token header, requests JSON via the
Accept header (PMS defaults to XML without it) and decodes responses with
goccy/go-json. All methods accept a context for cancellation and honor a
configurable client-side rate limiter so aggressive poll intervals cannot
hammer a small server.

Endpoints used:

  - GET /status/sessions              active playback sessions
  - GET /status/sessions/terminate    stop a stream with a message
  - GET /library/recentlyAdded        newest items across all sections
  - GET /library/sections             library sections
  - GET /library/sections/{id}/recentlyAdded
  - GET /library/metadata/{key}       full metadata for one item
  - GET /accounts                     server-local user accounts
  - GET /identity                     machine identifier and version
  - GET /                             server capability summary

Resilience:

  - HTTP 429 responses retry with exponential backoff (1s, 2s, 4s, 8s, 16s),
    honoring Retry-After when the server provides it
  - CircuitBreakerClient wraps every call in a sony/gobreaker circuit so a
    down server fails fast instead of stacking timeouts
  - The poller distinguishes "server unreachable" from other errors through
    the breaker state

Thread safety: all client methods are safe for concurrent use.
*/
package pms
