// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// watchTimeWindows are the trailing windows reported by the watch time
// stats, in days. Zero means all time.
var watchTimeWindows = []int{1, 7, 30, 0}

// GetUserWatchTimeStats returns a user's play counts and watch time over
// the standard windows (1, 7, 30 days and all time).
func (db *DB) GetUserWatchTimeStats(ctx context.Context, userID int, grouped bool) ([]models.WatchTimeStat, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.watchTimeStats(queryCtx, "user_id", userID, grouped)
}

// GetLibraryWatchTimeStats returns a library's play counts and watch time
// over the standard windows.
func (db *DB) GetLibraryWatchTimeStats(ctx context.Context, sectionID string, grouped bool) ([]models.WatchTimeStat, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.watchTimeStats(queryCtx, "section_id", sectionID, grouped)
}

// watchTimeStats runs the window queries against one filter column. The
// column name is a compile time constant at every call site, never user
// input.
func (db *DB) watchTimeStats(ctx context.Context, column string, value interface{}, grouped bool) ([]models.WatchTimeStat, error) {
	start := time.Now()
	stats := make([]models.WatchTimeStat, 0, len(watchTimeWindows))
	for _, days := range watchTimeWindows {
		query := fmt.Sprintf(`SELECT %s, COALESCE(SUM(play_duration), 0) FROM history WHERE %s = ?`,
			playCountExpr(grouped), column)
		args := []interface{}{value}
		if days > 0 {
			query += " AND started_at >= ?"
			args = append(args, time.Now().UTC().AddDate(0, 0, -days))
		}

		stat := models.WatchTimeStat{QueryDays: days}
		if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&stat.TotalPlays, &stat.TotalTime); err != nil {
			metrics.RecordDBQuery("select", "history", time.Since(start), err)
			return nil, fmt.Errorf("failed to query watch time stats: %w", err)
		}
		stats = append(stats, stat)
	}
	metrics.RecordDBQuery("select", "history", time.Since(start), nil)
	return stats, nil
}

// GetUserPlayerStats returns a user's play counts per player and
// platform, most used first.
func (db *DB) GetUserPlayerStats(ctx context.Context, userID int, grouped bool) ([]models.PlayerStat, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT COALESCE(player, '') AS player,
			COALESCE(platform, '') AS platform,
			%s AS total_plays,
			COALESCE(SUM(play_duration), 0) AS total_time
		FROM history
		WHERE user_id = ?
		GROUP BY COALESCE(player, ''), COALESCE(platform, '')
		ORDER BY total_plays DESC, total_time DESC`, playCountExpr(grouped))

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, userID)
	metrics.RecordDBQuery("select", "history", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query player stats: %w", err)
	}
	defer closeQuietly(rows)

	stats := make([]models.PlayerStat, 0)
	for rows.Next() {
		var stat models.PlayerStat
		if err := rows.Scan(&stat.Player, &stat.Platform, &stat.TotalPlays, &stat.TotalTime); err != nil {
			return nil, fmt.Errorf("failed to scan player stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// GetLibraryUserStats returns per-user play counts within one library,
// most active first.
func (db *DB) GetLibraryUserStats(ctx context.Context, sectionID string, grouped bool) ([]models.LibraryUserStat, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT user_id,
			arg_max(username, started_at) AS username,
			%s AS total_plays,
			COALESCE(SUM(play_duration), 0) AS total_time
		FROM history
		WHERE section_id = ?
		GROUP BY user_id
		ORDER BY total_plays DESC, total_time DESC`, playCountExpr(grouped))

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, sectionID)
	metrics.RecordDBQuery("select", "history", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query library user stats: %w", err)
	}
	defer closeQuietly(rows)

	stats := make([]models.LibraryUserStat, 0)
	for rows.Next() {
		var stat models.LibraryUserStat
		if err := rows.Scan(&stat.UserID, &stat.Username, &stat.TotalPlays, &stat.TotalTime); err != nil {
			return nil, fmt.Errorf("failed to scan library user stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
