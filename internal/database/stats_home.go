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
	"time"

	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// playCountExpr returns the SQL expression that counts plays. With
// grouping enabled, consecutive plays sharing a group_key count once, so
// the home stats agree with the grouped history view.
func playCountExpr(grouped bool) string {
	if grouped {
		return "COUNT(DISTINCT group_key)"
	}
	return "COUNT(*)"
}

// GetHomeStats computes the dashboard's ranked lists over a trailing
// window of days, count rows per list. Lists always appear in a fixed
// order; a category with no plays yields an empty row set, never a
// missing list.
func (db *DB) GetHomeStats(ctx context.Context, days, count int, grouped bool) (*models.HomeStats, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if days <= 0 {
		days = 30
	}
	if count <= 0 {
		count = 10
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	stats := &models.HomeStats{
		Days:  days,
		Count: count,
		Lists: make([]models.HomeStatList, 0, 9),
	}

	type statBuilder struct {
		statID string
		fn     func(context.Context, time.Time, int, bool) ([]models.HomeStatRow, error)
	}
	builders := []statBuilder{
		{models.StatTopMovies, db.topMovies},
		{models.StatTopTV, db.topTV},
		{models.StatTopMusic, db.topMusic},
		{models.StatTopUsers, db.topUsers},
		{models.StatTopPlatforms, db.topPlatforms},
		{models.StatTopLibraries, db.topLibraries},
		{models.StatPopularMovies, db.popularMovies},
		{models.StatPopularTV, db.popularTV},
		{models.StatMostConcurrent, db.mostConcurrent},
	}

	start := time.Now()
	for _, b := range builders {
		rows, err := b.fn(queryCtx, cutoff, count, grouped)
		if err != nil {
			metrics.RecordDBQuery("select", "history", time.Since(start), err)
			return nil, fmt.Errorf("failed to compute %s: %w", b.statID, err)
		}
		stats.Lists = append(stats.Lists, models.HomeStatList{StatID: b.statID, Rows: rows})
	}
	metrics.RecordDBQuery("select", "history", time.Since(start), nil)

	return stats, nil
}

func (db *DB) topMovies(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	return db.topMediaRows(ctx, cutoff, count, grouped, models.MediaTypeMovie, false, false)
}

func (db *DB) topTV(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	return db.topMediaRows(ctx, cutoff, count, grouped, models.MediaTypeEpisode, true, false)
}

func (db *DB) topMusic(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	return db.topMediaRows(ctx, cutoff, count, grouped, models.MediaTypeTrack, true, false)
}

func (db *DB) popularMovies(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	return db.topMediaRows(ctx, cutoff, count, grouped, models.MediaTypeMovie, false, true)
}

func (db *DB) popularTV(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	return db.topMediaRows(ctx, cutoff, count, grouped, models.MediaTypeEpisode, true, true)
}

// topMediaRows ranks media items within one media type. Episodes and
// tracks roll up to their show or artist (the grandparent); movies rank
// individually. Popular lists order by distinct viewers instead of plays.
func (db *DB) topMediaRows(ctx context.Context, cutoff time.Time, count int, grouped bool, mediaType string, byGrandparent, orderByUsers bool) ([]models.HomeStatRow, error) {
	titleExpr := "title"
	keyExpr := "COALESCE(rating_key, '')"
	if byGrandparent {
		titleExpr = "COALESCE(grandparent_title, title)"
		keyExpr = "COALESCE(grandparent_rating_key, '')"
	}
	orderExpr := "total_plays"
	if orderByUsers {
		orderExpr = "unique_users"
	}

	query := fmt.Sprintf(`SELECT %s AS title, %s AS rating_key,
			%s AS total_plays,
			COALESCE(SUM(play_duration), 0) AS total_duration,
			COUNT(DISTINCT user_id) AS unique_users,
			MAX(started_at) AS last_played
		FROM history
		WHERE media_type = ? AND started_at >= ?
		GROUP BY %s, %s
		ORDER BY %s DESC, total_duration DESC
		LIMIT ?`,
		titleExpr, keyExpr, playCountExpr(grouped), titleExpr, keyExpr, orderExpr)

	rows, err := db.conn.QueryContext(ctx, query, mediaType, cutoff, count)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	result := make([]models.HomeStatRow, 0, count)
	for rows.Next() {
		row := models.HomeStatRow{MediaType: mediaType}
		if err := rows.Scan(&row.Title, &row.RatingKey, &row.TotalPlays, &row.TotalDuration,
			&row.UniqueUsers, &row.LastPlayed); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (db *DB) topUsers(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	query := fmt.Sprintf(`SELECT user_id,
			arg_max(username, started_at) AS username,
			%s AS total_plays,
			COALESCE(SUM(play_duration), 0) AS total_duration,
			MAX(started_at) AS last_played
		FROM history
		WHERE started_at >= ?
		GROUP BY user_id
		ORDER BY total_plays DESC, total_duration DESC
		LIMIT ?`, playCountExpr(grouped))

	rows, err := db.conn.QueryContext(ctx, query, cutoff, count)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	result := make([]models.HomeStatRow, 0, count)
	for rows.Next() {
		var row models.HomeStatRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.TotalPlays, &row.TotalDuration,
			&row.LastPlayed); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (db *DB) topPlatforms(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	query := fmt.Sprintf(`SELECT COALESCE(platform, '') AS platform,
			%s AS total_plays,
			COALESCE(SUM(play_duration), 0) AS total_duration,
			COUNT(DISTINCT user_id) AS unique_users
		FROM history
		WHERE started_at >= ?
		GROUP BY COALESCE(platform, '')
		ORDER BY total_plays DESC, total_duration DESC
		LIMIT ?`, playCountExpr(grouped))

	rows, err := db.conn.QueryContext(ctx, query, cutoff, count)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	result := make([]models.HomeStatRow, 0, count)
	for rows.Next() {
		var row models.HomeStatRow
		if err := rows.Scan(&row.Platform, &row.TotalPlays, &row.TotalDuration,
			&row.UniqueUsers); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (db *DB) topLibraries(ctx context.Context, cutoff time.Time, count int, grouped bool) ([]models.HomeStatRow, error) {
	query := fmt.Sprintf(`SELECT library_name,
			%s AS total_plays,
			COALESCE(SUM(play_duration), 0) AS total_duration,
			COUNT(DISTINCT user_id) AS unique_users
		FROM history
		WHERE started_at >= ? AND library_name IS NOT NULL
		GROUP BY library_name
		ORDER BY total_plays DESC, total_duration DESC
		LIMIT ?`, playCountExpr(grouped))

	rows, err := db.conn.QueryContext(ctx, query, cutoff, count)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	result := make([]models.HomeStatRow, 0, count)
	for rows.Next() {
		var row models.HomeStatRow
		if err := rows.Scan(&row.LibraryName, &row.TotalPlays, &row.TotalDuration,
			&row.UniqueUsers); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// mostConcurrent finds the peak number of simultaneous streams in the
// window using a sweep over session start and stop events. At equal
// timestamps, starts sort before stops so touching sessions count as
// overlapping. Sessions still open count up to the present.
func (db *DB) mostConcurrent(ctx context.Context, cutoff time.Time, _ int, _ bool) ([]models.HomeStatRow, error) {
	query := `WITH events AS (
			SELECT started_at AS ts, 1 AS delta FROM history WHERE started_at >= ?
			UNION ALL
			SELECT COALESCE(stopped_at, CURRENT_TIMESTAMP) AS ts, -1 AS delta
			FROM history WHERE started_at >= ?
		),
		running AS (
			SELECT ts, SUM(delta) OVER (ORDER BY ts, delta DESC ROWS UNBOUNDED PRECEDING) AS concurrent
			FROM events
		)
		SELECT concurrent, ts FROM running ORDER BY concurrent DESC, ts LIMIT 1`

	var peak int
	var peakAt time.Time
	err := db.conn.QueryRowContext(ctx, query, cutoff, cutoff).Scan(&peak, &peakAt)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.HomeStatRow{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []models.HomeStatRow{{TotalPlays: peak, PeakAt: &peakAt}}, nil
}
