// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
schema.go - Database Schema Management

This file manages the DuckDB database schema including table creation
and index management for optimal query performance.

Tables:
  - history: one row per finished playback session, written once at stop
  - users: PMS accounts synced from /accounts
  - library_sections: PMS libraries synced from /library/sections
  - recently_added: items detected by the recently-added watcher
  - notifiers: stored notification agent configurations
  - notify_log: one row per notification delivery attempt
  - newsletter_schedules: stored newsletter definitions with cron lines
  - newsletter_log: one row per newsletter run

Schema Strategy (Pre-Release):
All columns are defined in the initial CREATE TABLE statement. This provides:
  - Single source of truth for the complete schema
  - Faster startup (no migrations to run)
  - Cleaner codebase

Post-Release Migration Strategy:
After the first public release with real users, use versioned migrations in
migrations.go to add new columns without losing existing data.

Index Strategy:
Indexes are created for:
  - Frequently filtered columns (user_id, started_at, media_type, etc.)
  - Composite indexes for common query patterns
  - Deduplication (unique on session_key + started_at)
  - The concurrent-streams interval overlap query

Serialized JSON (notifier triggers/conditions/config, schedule section
lists) is stored in TEXT columns so the schema needs no DuckDB extensions;
autoload stays disabled in the connection string.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := db.getTableCreationQueries()

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements
func (db *DB) getTableCreationQueries() []string {
	return []string{
		// History table - one row per finished playback session.
		// DuckDB note: IDENTITY columns cannot be combined with PRIMARY KEY,
		// so UUID primary keys are generated in Go.
		`CREATE TABLE IF NOT EXISTS history (
			-- ============================================
			-- Core identification
			-- ============================================
			id UUID PRIMARY KEY,
			session_key TEXT NOT NULL,
			group_key TEXT NOT NULL,
			server_id TEXT,
			started_at TIMESTAMP NOT NULL,
			stopped_at TIMESTAMP,

			-- ============================================
			-- User
			-- ============================================
			user_id INTEGER NOT NULL,
			username TEXT NOT NULL,
			ip_address TEXT,

			-- ============================================
			-- Media identification
			-- ============================================
			media_type TEXT NOT NULL,
			rating_key TEXT,
			parent_rating_key TEXT,
			grandparent_rating_key TEXT,
			title TEXT NOT NULL,
			parent_title TEXT,
			grandparent_title TEXT,
			full_title TEXT NOT NULL,
			media_index INTEGER,
			parent_media_index INTEGER,
			year INTEGER,
			guid TEXT,
			section_id TEXT,
			library_name TEXT,
			content_rating TEXT,
			thumb TEXT,

			-- ============================================
			-- Player
			-- ============================================
			platform TEXT,
			product TEXT,
			player TEXT,
			device TEXT,
			machine_id TEXT,
			location_type TEXT,
			local BOOLEAN,
			secure BOOLEAN,
			relayed BOOLEAN,

			-- ============================================
			-- Stream detail
			-- ============================================
			transcode_decision TEXT,
			video_decision TEXT,
			audio_decision TEXT,
			container TEXT,
			video_codec TEXT,
			video_resolution TEXT,
			audio_codec TEXT,
			audio_channels INTEGER,
			subtitle_codec TEXT,
			quality_profile TEXT,
			bandwidth_kbps BIGINT,

			-- ============================================
			-- Progress accounting
			-- ============================================
			view_offset_ms BIGINT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			percent_complete DOUBLE NOT NULL DEFAULT 0,
			paused_counter BIGINT NOT NULL DEFAULT 0,
			play_duration BIGINT NOT NULL DEFAULT 0,
			watched_status BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		// Users table - synced from the PMS /accounts endpoint
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			friendly_name TEXT,
			thumb TEXT,
			is_home BOOLEAN NOT NULL DEFAULT FALSE,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		// Library sections table - synced from /library/sections
		`CREATE TABLE IF NOT EXISTS library_sections (
			section_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			section_type TEXT NOT NULL,
			agent TEXT,
			item_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		// Recently added table - rating_key is the natural key; the watcher
		// inserts conflict-ignoring so re-polls are idempotent
		`CREATE TABLE IF NOT EXISTS recently_added (
			rating_key TEXT PRIMARY KEY,
			media_type TEXT NOT NULL,
			title TEXT NOT NULL,
			parent_title TEXT,
			grandparent_title TEXT,
			media_index INTEGER,
			parent_media_index INTEGER,
			year INTEGER,
			section_id TEXT,
			library_name TEXT,
			summary TEXT,
			thumb TEXT,
			added_at TIMESTAMP NOT NULL,
			detected_at TIMESTAMP NOT NULL,
			notified BOOLEAN NOT NULL DEFAULT FALSE
		);`,

		// Notifiers table - stored notification agents. Triggers, conditions,
		// subjects, bodies and channel config are serialized JSON in TEXT.
		`CREATE TABLE IF NOT EXISTS notifiers (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			channel_type TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			triggers TEXT NOT NULL,
			conditions TEXT,
			subjects TEXT,
			bodies TEXT,
			config TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		// Notification log - every dispatch outcome lands here.
		// trigger_kind avoids the TRIGGER keyword.
		`CREATE TABLE IF NOT EXISTS notify_log (
			id UUID PRIMARY KEY,
			notifier_id INTEGER NOT NULL,
			trigger_kind TEXT NOT NULL,
			session_key TEXT,
			rating_key TEXT,
			user_id INTEGER,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			sent_at TIMESTAMP NOT NULL
		);`,

		// Newsletter schedules - cron_expression is a five-field cron line
		`CREATE TABLE IF NOT EXISTS newsletter_schedules (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			cron_expression TEXT NOT NULL,
			template TEXT NOT NULL,
			time_frame INTEGER NOT NULL DEFAULT 7,
			subject TEXT,
			body_html TEXT,
			notifier_id INTEGER NOT NULL,
			section_ids TEXT,
			last_run_at TIMESTAMP,
			next_run_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		// Newsletter run log
		`CREATE TABLE IF NOT EXISTS newsletter_log (
			id UUID PRIMARY KEY,
			schedule_id INTEGER NOT NULL,
			subject TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		);`,
	}
}

// createIndexes creates database indexes for query performance.
// Skips index creation if cfg.SkipIndexes is true (for fast test setup).
func (db *DB) createIndexes() error {
	// Tests that specifically need indexes can call CreateIndexes() explicitly
	if db.cfg != nil && db.cfg.SkipIndexes {
		return nil
	}

	return db.doCreateIndexes()
}

// CreateIndexes creates all database indexes.
// Exposed for tests that specifically need indexes (e.g. the dedupe tests).
// Most tests should use SkipIndexes: true for fast setup.
func (db *DB) CreateIndexes() error {
	return db.doCreateIndexes()
}

// doCreateIndexes is the internal implementation that creates all indexes.
func (db *DB) doCreateIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := db.getIndexQueries()

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}

	return nil
}

// getIndexQueries returns index creation SQL statements
func (db *DB) getIndexQueries() []string {
	return []string{
		// History list and filter indexes
		`CREATE INDEX IF NOT EXISTS idx_history_started ON history(started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_history_user_started ON history(user_id, started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_history_section_started ON history(section_id, started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_history_media_type ON history(media_type);`,
		`CREATE INDEX IF NOT EXISTS idx_history_group_key ON history(group_key);`,

		// Stats rollup indexes
		`CREATE INDEX IF NOT EXISTS idx_history_rating_key ON history(rating_key);`,
		`CREATE INDEX IF NOT EXISTS idx_history_grandparent_rating_key ON history(grandparent_rating_key);`,
		`CREATE INDEX IF NOT EXISTS idx_history_transcode ON history(transcode_decision, started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_history_platform ON history(platform);`,
		`CREATE INDEX IF NOT EXISTS idx_history_machine_id ON history(machine_id);`,

		// Deduplication index: a finished session is recorded exactly once.
		// ON CONFLICT DO NOTHING in InsertHistory relies on this constraint.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_dedup ON history(session_key, started_at);`,

		// Concurrent streams overlap query: started_at <= X AND stopped_at >= Y
		`CREATE INDEX IF NOT EXISTS idx_history_concurrent ON history(stopped_at, started_at, user_id);`,

		// Recently added
		`CREATE INDEX IF NOT EXISTS idx_recently_added_added ON recently_added(added_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_recently_added_section ON recently_added(section_id);`,
		`CREATE INDEX IF NOT EXISTS idx_recently_added_notified ON recently_added(notified);`,

		// Notification log
		`CREATE INDEX IF NOT EXISTS idx_notify_log_sent ON notify_log(sent_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_notify_log_notifier ON notify_log(notifier_id);`,

		// Newsletter scheduling
		`CREATE INDEX IF NOT EXISTS idx_newsletter_schedules_enabled ON newsletter_schedules(enabled);`,
		`CREATE INDEX IF NOT EXISTS idx_newsletter_schedules_next_run ON newsletter_schedules(next_run_at);`,
		`CREATE INDEX IF NOT EXISTS idx_newsletter_log_started ON newsletter_log(started_at DESC);`,
	}
}
