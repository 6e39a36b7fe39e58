// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

const recentlyAddedSelectColumns = `rating_key, media_type, title,
	COALESCE(parent_title, '') AS parent_title,
	COALESCE(grandparent_title, '') AS grandparent_title,
	COALESCE(media_index, 0) AS media_index,
	COALESCE(parent_media_index, 0) AS parent_media_index,
	COALESCE(year, 0) AS year,
	COALESCE(section_id, '') AS section_id,
	COALESCE(library_name, '') AS library_name,
	COALESCE(summary, '') AS summary,
	COALESCE(thumb, '') AS thumb,
	added_at, detected_at, notified`

// InsertRecentlyAdded records a library item seen by the recently-added
// watcher. The rating key is the primary key, so re-observing a known item
// is a silent no-op. Returns true when the item was new.
func (db *DB) InsertRecentlyAdded(ctx context.Context, item *models.RecentlyAddedItem) (bool, error) {
	insertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if item.DetectedAt.IsZero() {
		item.DetectedAt = time.Now().UTC()
	}

	query := `INSERT INTO recently_added (rating_key, media_type, title,
			parent_title, grandparent_title, media_index, parent_media_index, year,
			section_id, library_name, summary, thumb,
			added_at, detected_at, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`

	start := time.Now()
	result, err := db.conn.ExecContext(insertCtx, query,
		item.RatingKey, item.MediaType, item.Title,
		item.ParentTitle, item.GrandparentTitle, item.MediaIndex, item.ParentMediaIndex, item.Year,
		item.SectionID, item.LibraryName, item.Summary, item.Thumb,
		item.AddedAt, item.DetectedAt, item.Notified)
	metrics.RecordDBQuery("insert", "recently_added", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to insert recently added item %s: %w", item.RatingKey, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rowsAffected > 0, nil
}

// GetRecentlyAdded returns recently added items ordered newest first.
// A zero since time disables the date filter and an empty sectionID
// matches all sections.
func (db *DB) GetRecentlyAdded(ctx context.Context, since time.Time, sectionID string, limit int) ([]models.RecentlyAddedItem, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	whereClauses := []string{"1=1"}
	args := []interface{}{}
	if !since.IsZero() {
		whereClauses = append(whereClauses, "added_at >= ?")
		args = append(args, since)
	}
	if sectionID != "" {
		whereClauses = append(whereClauses, "section_id = ?")
		args = append(args, sectionID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM recently_added
		WHERE %s
		ORDER BY added_at DESC
		LIMIT ?`, recentlyAddedSelectColumns, strings.Join(whereClauses, " AND "))

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, args...)
	metrics.RecordDBQuery("select", "recently_added", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query recently added items: %w", err)
	}
	defer closeQuietly(rows)

	items := make([]models.RecentlyAddedItem, 0)
	for rows.Next() {
		var item models.RecentlyAddedItem
		if err := rows.Scan(
			&item.RatingKey, &item.MediaType, &item.Title,
			&item.ParentTitle, &item.GrandparentTitle,
			&item.MediaIndex, &item.ParentMediaIndex, &item.Year,
			&item.SectionID, &item.LibraryName, &item.Summary, &item.Thumb,
			&item.AddedAt, &item.DetectedAt, &item.Notified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recently added item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetUnnotifiedRecentlyAdded returns items that have not been announced yet
// and were detected at or before the given settle cutoff. The watcher uses
// the cutoff to hold announcements until a batch import has finished
// arriving, so one notification can cover a whole season.
func (db *DB) GetUnnotifiedRecentlyAdded(ctx context.Context, settledBefore time.Time) ([]models.RecentlyAddedItem, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM recently_added
		WHERE notified = FALSE AND detected_at <= ?
		ORDER BY added_at`, recentlyAddedSelectColumns)

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, settledBefore)
	metrics.RecordDBQuery("select", "recently_added", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query unnotified recently added items: %w", err)
	}
	defer closeQuietly(rows)

	items := make([]models.RecentlyAddedItem, 0)
	for rows.Next() {
		var item models.RecentlyAddedItem
		if err := rows.Scan(
			&item.RatingKey, &item.MediaType, &item.Title,
			&item.ParentTitle, &item.GrandparentTitle,
			&item.MediaIndex, &item.ParentMediaIndex, &item.Year,
			&item.SectionID, &item.LibraryName, &item.Summary, &item.Thumb,
			&item.AddedAt, &item.DetectedAt, &item.Notified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recently added item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkRecentlyAddedNotified flags items as announced so the watcher does
// not report them again. An empty key list is a no-op.
func (db *DB) MarkRecentlyAddedNotified(ctx context.Context, ratingKeys []string) error {
	if len(ratingKeys) == 0 {
		return nil
	}

	updateCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := make([]string, len(ratingKeys))
	args := make([]interface{}, len(ratingKeys))
	for i, key := range ratingKeys {
		placeholders[i] = "?"
		args[i] = key
	}

	query := fmt.Sprintf("UPDATE recently_added SET notified = TRUE WHERE rating_key IN (%s)",
		strings.Join(placeholders, ", "))

	start := time.Now()
	_, err := db.conn.ExecContext(updateCtx, query, args...)
	metrics.RecordDBQuery("update", "recently_added", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to mark recently added items notified: %w", err)
	}

	logging.Debug().Int("count", len(ratingKeys)).Msg("Marked recently added items as notified")
	return nil
}
