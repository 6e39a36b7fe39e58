// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package testinfra provides shared infrastructure for integration tests:
// a containerized Plex Media Server and capture sinks for the outbound
// delivery channels.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/...
//
// # Plex Container
//
// PlexContainer runs the official Plex Media Server image via
// testcontainers-go. The server comes up unclaimed, which is enough to
// exercise the unauthenticated identity probe and the 401 paths of the
// token-guarded endpoints against a real server instead of canned JSON:
//
//	func TestClientAgainstServer(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//
//	    ctx := context.Background()
//	    plex, err := testinfra.NewPlexContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer plex.Terminate(ctx)
//
//	    client := pms.New(&config.PlexConfig{URL: plex.URL})
//	    identity, err := client.GetIdentity(ctx)
//	    // ...
//	}
//
// Claimed-server tests need a fresh token from https://plex.tv/claim via
// WithClaimToken; those only make sense when driven locally.
//
// # Delivery Sinks
//
// WebhookSink is an HTTP server that records every request, for asserting
// on webhook payloads, headers, and retry behavior. SMTPSink is a minimal
// SMTP server that records the envelope and message of each delivery, so
// email tests validate the actual protocol session rather than a mock
// transport.
//
// Neither sink needs Docker; they share the integration tag because they
// exist only for integration tests.
//
// # CI Considerations
//
// Container tests require Docker and skip gracefully without it. The
// first run downloads the Plex image (large); later runs use the cache.
package testinfra
