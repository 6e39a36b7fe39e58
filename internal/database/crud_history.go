// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// historyColumns lists every history column in schema order. InsertHistory
// and all history SELECTs share this list so the scan destinations in
// scanHistoryRecord stay aligned with the schema.
const historyColumns = `id, session_key, group_key, server_id, started_at, stopped_at,
	user_id, username, ip_address,
	media_type, rating_key, parent_rating_key, grandparent_rating_key,
	title, parent_title, grandparent_title, full_title,
	media_index, parent_media_index, year, guid,
	section_id, library_name, content_rating, thumb,
	platform, product, player, device, machine_id, location_type, local, secure, relayed,
	transcode_decision, video_decision, audio_decision, container,
	video_codec, video_resolution, audio_codec, audio_channels,
	subtitle_codec, quality_profile, bandwidth_kbps,
	view_offset_ms, duration_ms, percent_complete, paused_counter, play_duration,
	watched_status, created_at`

// historyGroupedColumns is the outer SELECT list for grouped queries. The
// per-row paused_counter and play_duration are replaced by sums over the
// group; aliasing them back to their base names keeps scanHistoryRecord and
// ORDER BY working unchanged, so sorting by duration sorts by the group total.
const historyGroupedColumns = `id, session_key, group_key, server_id, started_at, stopped_at,
	user_id, username, ip_address,
	media_type, rating_key, parent_rating_key, grandparent_rating_key,
	title, parent_title, grandparent_title, full_title,
	media_index, parent_media_index, year, guid,
	section_id, library_name, content_rating, thumb,
	platform, product, player, device, machine_id, location_type, local, secure, relayed,
	transcode_decision, video_decision, audio_decision, container,
	video_codec, video_resolution, audio_codec, audio_channels,
	subtitle_codec, quality_profile, bandwidth_kbps,
	view_offset_ms, duration_ms, percent_complete,
	group_paused_counter AS paused_counter, group_play_duration AS play_duration,
	watched_status, created_at`

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanHistoryRecord scans one history row in historyColumns order. Nullable
// columns scan directly into pointer fields; database/sql leaves them nil for
// NULL. Extra destinations (such as the grouped play count) are appended
// after the standard column set.
func scanHistoryRecord(row rowScanner, extras ...interface{}) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	dest := []interface{}{
		&rec.ID, &rec.SessionKey, &rec.GroupKey, &rec.ServerID, &rec.StartedAt, &rec.StoppedAt,
		&rec.UserID, &rec.Username, &rec.IPAddress,
		&rec.MediaType, &rec.RatingKey, &rec.ParentRatingKey, &rec.GrandparentRatingKey,
		&rec.Title, &rec.ParentTitle, &rec.GrandparentTitle, &rec.FullTitle,
		&rec.MediaIndex, &rec.ParentMediaIndex, &rec.Year, &rec.Guid,
		&rec.SectionID, &rec.LibraryName, &rec.ContentRating, &rec.Thumb,
		&rec.Platform, &rec.Product, &rec.Player, &rec.Device, &rec.MachineID, &rec.LocationType, &rec.Local, &rec.Secure, &rec.Relayed,
		&rec.TranscodeDecision, &rec.VideoDecision, &rec.AudioDecision, &rec.Container,
		&rec.VideoCodec, &rec.VideoResolution, &rec.AudioCodec, &rec.AudioChannels,
		&rec.SubtitleCodec, &rec.QualityProfile, &rec.BandwidthKbps,
		&rec.ViewOffsetMS, &rec.DurationMS, &rec.PercentComplete, &rec.PausedCounter, &rec.PlayDuration,
		&rec.WatchedStatus, &rec.CreatedAt,
	}
	dest = append(dest, extras...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertHistory writes a completed playback record. Duplicate records
// (same session_key and started_at) are silent no-ops: the insert relies on
// the unique index idx_history_dedup and ON CONFLICT DO NOTHING, and a
// zero rows-affected result is treated as success.
func (db *DB) InsertHistory(ctx context.Context, rec *models.HistoryRecord) error {
	insertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`INSERT INTO history (%s)
		VALUES (?, ?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`, historyColumns)

	args := []interface{}{
		rec.ID, rec.SessionKey, rec.GroupKey, rec.ServerID, rec.StartedAt, rec.StoppedAt,
		rec.UserID, rec.Username, rec.IPAddress,
		rec.MediaType, rec.RatingKey, rec.ParentRatingKey, rec.GrandparentRatingKey,
		rec.Title, rec.ParentTitle, rec.GrandparentTitle, rec.FullTitle,
		rec.MediaIndex, rec.ParentMediaIndex, rec.Year, rec.Guid,
		rec.SectionID, rec.LibraryName, rec.ContentRating, rec.Thumb,
		rec.Platform, rec.Product, rec.Player, rec.Device, rec.MachineID, rec.LocationType, rec.Local, rec.Secure, rec.Relayed,
		rec.TranscodeDecision, rec.VideoDecision, rec.AudioDecision, rec.Container,
		rec.VideoCodec, rec.VideoResolution, rec.AudioCodec, rec.AudioChannels,
		rec.SubtitleCodec, rec.QualityProfile, rec.BandwidthKbps,
		rec.ViewOffsetMS, rec.DurationMS, rec.PercentComplete, rec.PausedCounter, rec.PlayDuration,
		rec.WatchedStatus, rec.CreatedAt,
	}

	start := time.Now()
	result, err := db.conn.ExecContext(insertCtx, query, args...)
	if err != nil && isConnectionError(err) {
		logging.Warn().Err(err).Msg("Connection error during history insert, attempting reconnect")
		if reconnErr := db.reconnect(); reconnErr == nil {
			result, err = db.conn.ExecContext(insertCtx, query, args...)
		}
	}
	metrics.RecordDBQuery("insert", "history", time.Since(start), err)
	if err != nil {
		metrics.RecordHistoryWrite("error")
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		logging.Debug().
			Str("session_key", rec.SessionKey).
			Time("started_at", rec.StartedAt).
			Msg("Duplicate history record detected, skipping")
		metrics.RecordHistoryWrite("duplicate")
		return nil
	}

	metrics.RecordHistoryWrite("inserted")
	return nil
}

// GetHistory returns a page of playback history matching the filter.
//
// TotalCount is always the unfiltered row count. When the filter requests
// grouping, consecutive plays sharing a group_key collapse into their most
// recent row with paused_counter and play_duration summed across the group,
// FilteredCount counts distinct groups, and GroupCounts reports how many
// plays each returned row represents.
func (db *DB) GetHistory(ctx context.Context, filter HistoryFilter) (*models.HistoryPage, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if filter.Limit <= 0 {
		filter.Limit = 1000
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	start := time.Now()
	page, err := db.getHistoryPage(queryCtx, filter)
	metrics.RecordDBQuery("select", "history", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (db *DB) getHistoryPage(ctx context.Context, filter HistoryFilter) (*models.HistoryPage, error) {
	var totalCount int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM history").Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count history records: %w", err)
	}

	whereClause, args := buildFilterWhereClause(filter)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM history WHERE %s", whereClause)
	if filter.Grouped {
		countQuery = fmt.Sprintf("SELECT COUNT(DISTINCT group_key) FROM history WHERE %s", whereClause)
	}
	var filteredCount int
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&filteredCount); err != nil {
		return nil, fmt.Errorf("failed to count filtered history records: %w", err)
	}

	page := &models.HistoryPage{
		Records:       make([]models.HistoryRecord, 0, filter.Limit),
		TotalCount:    totalCount,
		FilteredCount: filteredCount,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
		Grouped:       filter.Grouped,
	}

	if filter.Grouped {
		if err := db.queryGroupedHistory(ctx, filter, whereClause, args, page); err != nil {
			return nil, err
		}
		return page, nil
	}
	if err := db.queryHistory(ctx, filter, whereClause, args, page); err != nil {
		return nil, err
	}
	return page, nil
}

func (db *DB) queryHistory(ctx context.Context, filter HistoryFilter, whereClause string, args []interface{}, page *models.HistoryPage) error {
	query := fmt.Sprintf(`SELECT %s FROM history WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		historyColumns, whereClause, filter.orderClause())
	queryArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)

	rows, err := db.conn.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		rec, err := scanHistoryRecord(rows)
		if err != nil {
			return fmt.Errorf("failed to scan history record: %w", err)
		}
		page.Records = append(page.Records, *rec)
	}
	return rows.Err()
}

// queryGroupedHistory collapses each group to its latest row. Window
// functions compute the group sums in one pass over the filtered rows, so
// the filter applies before grouping and the representative row carries the
// combined totals.
func (db *DB) queryGroupedHistory(ctx context.Context, filter HistoryFilter, whereClause string, args []interface{}, page *models.HistoryPage) error {
	query := fmt.Sprintf(`WITH ranked AS (
			SELECT %s,
				ROW_NUMBER() OVER (PARTITION BY group_key ORDER BY started_at DESC, id DESC) AS rn,
				SUM(paused_counter) OVER (PARTITION BY group_key) AS group_paused_counter,
				SUM(play_duration) OVER (PARTITION BY group_key) AS group_play_duration,
				COUNT(*) OVER (PARTITION BY group_key) AS group_count
			FROM history
			WHERE %s
		)
		SELECT %s, group_count
		FROM ranked
		WHERE rn = 1
		ORDER BY %s
		LIMIT ? OFFSET ?`,
		historyColumns, whereClause, historyGroupedColumns, filter.orderClause())
	queryArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)

	rows, err := db.conn.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return fmt.Errorf("failed to query grouped history: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var groupCount int
		rec, err := scanHistoryRecord(rows, &groupCount)
		if err != nil {
			return fmt.Errorf("failed to scan grouped history record: %w", err)
		}
		page.Records = append(page.Records, *rec)
		page.GroupCounts = append(page.GroupCounts, models.GroupedCount{
			GroupKey: rec.GroupKey,
			Count:    groupCount,
		})
	}
	return rows.Err()
}

// GetHistoryRecord returns a single history record by ID.
// Returns ErrNotFound if no record exists.
func (db *DB) GetHistoryRecord(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM history WHERE id = ?", historyColumns)
	rec, err := scanHistoryRecord(db.conn.QueryRowContext(queryCtx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("history record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	return rec, nil
}

// DeleteHistory removes history records by ID and returns the number of
// rows deleted. An empty ID list is a no-op.
func (db *DB) DeleteHistory(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	deleteCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM history WHERE id IN (%s)", strings.Join(placeholders, ", "))

	start := time.Now()
	result, err := db.conn.ExecContext(deleteCtx, query, args...)
	metrics.RecordDBQuery("delete", "history", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	if deleted > 0 {
		logging.Info().Int64("deleted", deleted).Msg("Deleted history records")
	}
	return deleted, nil
}

// GetRecentGroupKey returns the group key of the user's most recent view of
// an item that stopped at or after the given cutoff. The monitor uses it to
// chain resumed views into one history group. Returns ErrNotFound when the
// user has no qualifying view.
func (db *DB) GetRecentGroupKey(ctx context.Context, userID int, ratingKey string, stoppedSince time.Time) (string, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	var groupKey string
	err := db.conn.QueryRowContext(queryCtx,
		`SELECT group_key FROM history
		 WHERE user_id = ? AND rating_key = ? AND stopped_at >= ?
		 ORDER BY stopped_at DESC LIMIT 1`,
		userID, ratingKey, stoppedSince).Scan(&groupKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("group key for user %d item %s: %w", userID, ratingKey, ErrNotFound)
		}
		return "", fmt.Errorf("failed to query group key: %w", err)
	}
	return groupKey, nil
}

// HasSeenDevice reports whether any history record exists for the user on
// the given device. Backs the new-device detection in the monitor.
func (db *DB) HasSeenDevice(ctx context.Context, userID int, machineID string) (bool, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(queryCtx,
		`SELECT COUNT(*) FROM history WHERE user_id = ? AND machine_id = ?`,
		userID, machineID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query device history: %w", err)
	}
	return count > 0, nil
}
