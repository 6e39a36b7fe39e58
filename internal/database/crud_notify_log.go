// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// InsertNotifyLog records a notification delivery attempt, successful or
// not. The dispatcher writes one entry per notifier per event.
func (db *DB) InsertNotifyLog(ctx context.Context, entry *models.NotifyLogEntry) error {
	insertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	query := `INSERT INTO notify_log (id, notifier_id, trigger_kind,
			session_key, rating_key, user_id,
			subject, body, success, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := db.conn.ExecContext(insertCtx, query,
		entry.ID, entry.NotifierID, entry.Trigger,
		entry.SessionKey, entry.RatingKey, entry.UserID,
		entry.Subject, entry.Body, entry.Success, entry.Error, entry.SentAt)
	metrics.RecordDBQuery("insert", "notify_log", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert notify log entry: %w", err)
	}
	return nil
}

// GetNotifyLog returns the most recent notification attempts, newest first.
func (db *DB) GetNotifyLog(ctx context.Context, limit int) ([]models.NotifyLogEntry, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, notifier_id, trigger_kind,
			COALESCE(session_key, '') AS session_key,
			COALESCE(rating_key, '') AS rating_key,
			COALESCE(user_id, 0) AS user_id,
			subject, body, success,
			COALESCE(error_message, '') AS error_message,
			sent_at
		FROM notify_log
		ORDER BY sent_at DESC
		LIMIT ?`

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, limit)
	metrics.RecordDBQuery("select", "notify_log", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query notify log: %w", err)
	}
	defer closeQuietly(rows)

	entries := make([]models.NotifyLogEntry, 0)
	for rows.Next() {
		var entry models.NotifyLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.NotifierID, &entry.Trigger,
			&entry.SessionKey, &entry.RatingKey, &entry.UserID,
			&entry.Subject, &entry.Body, &entry.Success,
			&entry.Error, &entry.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notify log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
