// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package database is Vigil's data layer: an embedded DuckDB store for
// playback history, synced users and libraries, recently-added items,
// notifier configuration and the notification/newsletter logs.
//
// # Architecture
//
// The package is organized into domain-specific files:
//
// Core lifecycle:
//   - database.go: connection, initialization, cleanup
//   - schema.go: table creation and index management
//   - migrations.go: versioned schema migrations
//   - database_connection.go: pool configuration and reconnect with
//     exponential backoff
//   - database_utils.go: context management, checkpointing, record counts
//
// Data access:
//   - crud_history.go: playback history inserts and filtered reads
//   - crud_users.go / crud_libraries.go: synced PMS accounts and sections
//   - crud_recently_added.go: recently-added items for API and newsletters
//   - crud_notifiers.go / crud_notify_log.go: notification agents and log
//   - crud_newsletters.go: newsletter schedules and run log
//   - filter.go: WHERE clause construction for history queries
//
// Statistics:
//   - stats_home.go: dashboard top lists
//   - stats_plays.go: plays-by-date/dayofweek/hourofday/streamtype/month
//   - stats_watch.go: per-user and per-library watch time
//
// # Database Technology
//
// DuckDB via the CGO driver (github.com/duckdb/duckdb-go/v2). OLAP-style
// storage suits the workload: history rows are written once per finished
// session and read back by aggregate-heavy stats queries. DuckDB ships
// window functions and CTEs the stats layer leans on.
//
// # Concurrency
//
// All exported methods are safe for concurrent use. Queries run through
// database/sql's pool; writes against the same table are serialized by
// DuckDB itself. Connection failures trigger automatic reconnection with
// exponential backoff.
//
// # Error Handling
//
// Errors are wrapped with fmt.Errorf %w and carry the failing operation.
// Lookups that find nothing return ErrNotFound so handlers can map it to
// a 404 without string matching. List queries return empty slices, never
// nil, so JSON responses stay stable.
package database
