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

// seriesDef maps a stored key (media type or transcode decision) to the
// display name of its chart line.
type seriesDef struct {
	name string
	key  string
}

var mediaTypeSeries = []seriesDef{
	{"Movies", models.MediaTypeMovie},
	{"TV", models.MediaTypeEpisode},
	{"Music", models.MediaTypeTrack},
}

var streamTypeSeries = []seriesDef{
	{"Direct Play", models.DecisionDirectPlay},
	{"Direct Stream", models.DecisionCopy},
	{"Transcode", models.DecisionTranscode},
}

// seriesPoint is one (category, series key) bucket from a chart query.
type seriesPoint struct {
	category string
	key      string
	count    int64
}

// fillSeries distributes query buckets over the category axis, zero
// filling categories with no plays. Points outside the known categories
// or series are dropped.
func fillSeries(categories []string, defs []seriesDef, points []seriesPoint) []models.SeriesEntry {
	categoryIndex := make(map[string]int, len(categories))
	for i, c := range categories {
		categoryIndex[c] = i
	}
	seriesIndex := make(map[string]int, len(defs))
	entries := make([]models.SeriesEntry, len(defs))
	for i, def := range defs {
		seriesIndex[def.key] = i
		entries[i] = models.SeriesEntry{Name: def.name, Values: make([]int64, len(categories))}
	}
	for _, p := range points {
		ci, ok := categoryIndex[p.category]
		if !ok {
			continue
		}
		si, ok := seriesIndex[p.key]
		if !ok {
			continue
		}
		entries[si].Values[ci] += p.count
	}
	return entries
}

// dateCategories returns the last days calendar dates in UTC, oldest
// first, formatted as YYYY-MM-DD.
func dateCategories(days int) []string {
	categories := make([]string, 0, days)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i := days - 1; i >= 0; i-- {
		categories = append(categories, today.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return categories
}

// GetPlaysByDate returns play counts per calendar date split by media
// type, covering the last days days including today.
func (db *DB) GetPlaysByDate(ctx context.Context, days int, grouped bool) (*models.PlaysSeries, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if days <= 0 {
		days = 30
	}
	categories := dateCategories(days)
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	query := fmt.Sprintf(`SELECT strftime(started_at, '%%Y-%%m-%%d') AS day, media_type, %s
		FROM history
		WHERE started_at >= ?
		GROUP BY day, media_type`, playCountExpr(grouped))

	points, err := db.queryStringKeyedPoints(queryCtx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays by date: %w", err)
	}

	return &models.PlaysSeries{
		GroupedBy:  "date",
		Categories: categories,
		Series:     fillSeries(categories, mediaTypeSeries, points),
	}, nil
}

var dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// GetPlaysByDayOfWeek returns play counts per weekday split by media
// type over the last days days. DuckDB numbers weekdays with Sunday as 0,
// matching the category order.
func (db *DB) GetPlaysByDayOfWeek(ctx context.Context, days int, grouped bool) (*models.PlaysSeries, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	query := fmt.Sprintf(`SELECT CAST(EXTRACT(dow FROM started_at) AS INTEGER) AS dow, media_type, %s
		FROM history
		WHERE started_at >= ?
		GROUP BY dow, media_type`, playCountExpr(grouped))

	rows, err := db.conn.QueryContext(queryCtx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays by day of week: %w", err)
	}
	defer closeQuietly(rows)

	points := make([]seriesPoint, 0)
	for rows.Next() {
		var dow int
		var p seriesPoint
		if err := rows.Scan(&dow, &p.key, &p.count); err != nil {
			return nil, fmt.Errorf("failed to scan day of week bucket: %w", err)
		}
		if dow >= 0 && dow < len(dayNames) {
			p.category = dayNames[dow]
			points = append(points, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.PlaysSeries{
		GroupedBy:  "day_of_week",
		Categories: dayNames,
		Series:     fillSeries(dayNames, mediaTypeSeries, points),
	}, nil
}

// GetPlaysByHourOfDay returns play counts per hour of day split by media
// type over the last days days.
func (db *DB) GetPlaysByHourOfDay(ctx context.Context, days int, grouped bool) (*models.PlaysSeries, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	categories := make([]string, 24)
	for h := range categories {
		categories[h] = fmt.Sprintf("%02d", h)
	}

	query := fmt.Sprintf(`SELECT CAST(EXTRACT(hour FROM started_at) AS INTEGER) AS hour, media_type, %s
		FROM history
		WHERE started_at >= ?
		GROUP BY hour, media_type`, playCountExpr(grouped))

	rows, err := db.conn.QueryContext(queryCtx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays by hour: %w", err)
	}
	defer closeQuietly(rows)

	points := make([]seriesPoint, 0)
	for rows.Next() {
		var hour int
		var p seriesPoint
		if err := rows.Scan(&hour, &p.key, &p.count); err != nil {
			return nil, fmt.Errorf("failed to scan hour bucket: %w", err)
		}
		p.category = fmt.Sprintf("%02d", hour)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.PlaysSeries{
		GroupedBy:  "hour_of_day",
		Categories: categories,
		Series:     fillSeries(categories, mediaTypeSeries, points),
	}, nil
}

// GetPlaysByStreamType returns play counts per calendar date split by
// transcode decision over the last days days.
func (db *DB) GetPlaysByStreamType(ctx context.Context, days int, grouped bool) (*models.PlaysSeries, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if days <= 0 {
		days = 30
	}
	categories := dateCategories(days)
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	query := fmt.Sprintf(`SELECT strftime(started_at, '%%Y-%%m-%%d') AS day, transcode_decision, %s
		FROM history
		WHERE started_at >= ? AND transcode_decision IS NOT NULL
		GROUP BY day, transcode_decision`, playCountExpr(grouped))

	points, err := db.queryStringKeyedPoints(queryCtx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays by stream type: %w", err)
	}

	return &models.PlaysSeries{
		GroupedBy:  "stream_type",
		Categories: categories,
		Series:     fillSeries(categories, streamTypeSeries, points),
	}, nil
}

// GetPlaysPerMonth returns play counts per calendar month split by media
// type, covering the last months months including the current one.
func (db *DB) GetPlaysPerMonth(ctx context.Context, months int, grouped bool) (*models.PlaysSeries, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if months <= 0 {
		months = 12
	}
	now := time.Now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	categories := make([]string, 0, months)
	for i := months - 1; i >= 0; i-- {
		categories = append(categories, firstOfMonth.AddDate(0, -i, 0).Format("2006-01"))
	}
	cutoff := firstOfMonth.AddDate(0, -(months - 1), 0)

	query := fmt.Sprintf(`SELECT strftime(started_at, '%%Y-%%m') AS month, media_type, %s
		FROM history
		WHERE started_at >= ?
		GROUP BY month, media_type`, playCountExpr(grouped))

	points, err := db.queryStringKeyedPoints(queryCtx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays per month: %w", err)
	}

	return &models.PlaysSeries{
		GroupedBy:  "month",
		Categories: categories,
		Series:     fillSeries(categories, mediaTypeSeries, points),
	}, nil
}

// queryStringKeyedPoints runs a chart query whose first two columns are
// string category and series key, with the play count third.
func (db *DB) queryStringKeyedPoints(ctx context.Context, query string, args ...interface{}) ([]seriesPoint, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "history", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(rows)

	points := make([]seriesPoint, 0)
	for rows.Next() {
		var p seriesPoint
		if err := rows.Scan(&p.category, &p.key, &p.count); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
