// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package middleware provides the HTTP middleware shared by the API
router: request ID propagation, Prometheus instrumentation, gzip
compression and in-process latency tracking.

All wrappers use the standard func(http.Handler) http.Handler shape so
they compose directly with chi's Use chain.

Key Components:

  - RequestID: X-Request-ID propagation into logs and responses
  - PrometheusMetrics: request counters, latency histograms, in-flight gauge
  - Compression: pooled gzip for clients that accept it
  - PerformanceMonitor: sliding-window latency percentiles per endpoint

Usage Example:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.Compression)

	perfMon := middleware.NewPerformanceMonitor(1000)
	r.Use(perfMon.Middleware)

	stats := perfMon.GetStats()
	fmt.Printf("p95: %dms\n", stats[0].P95Duration)

Thread Safety:

All components are safe for concurrent use. The performance monitor
guards its window with a RWMutex, compression takes gzip writers from a
sync.Pool, and request IDs live in the per-request context.

See Also:

  - internal/api: the router and handlers wrapped by this package
  - internal/metrics: Prometheus collector definitions
  - internal/logging: request ID context helpers
*/
package middleware
