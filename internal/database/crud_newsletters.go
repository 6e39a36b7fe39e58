// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

const newsletterScheduleColumns = `id, name, enabled, cron_expression, template, time_frame,
	COALESCE(subject, '') AS subject,
	COALESCE(body_html, '') AS body_html,
	notifier_id, section_ids, last_run_at, next_run_at,
	created_at, updated_at`

// nullableString converts an empty string into NULL for insert arguments.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanNewsletterSchedule(row rowScanner) (*models.NewsletterSchedule, error) {
	var s models.NewsletterSchedule
	var sectionIDsJSON sql.NullString
	if err := row.Scan(
		&s.ID, &s.Name, &s.Enabled, &s.CronExpr, &s.Template, &s.TimeFrame,
		&s.Subject, &s.BodyHTML,
		&s.NotifierID, &sectionIDsJSON, &s.LastRunAt, &s.NextRunAt,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if sectionIDsJSON.Valid {
		if err := json.Unmarshal([]byte(sectionIDsJSON.String), &s.SectionIDs); err != nil {
			return nil, fmt.Errorf("failed to decode schedule section IDs: %w", err)
		}
	}
	return &s, nil
}

// CreateNewsletterSchedule stores a new schedule and assigns its ID using
// the same MAX(id)+1 allocation as notifiers.
func (db *DB) CreateNewsletterSchedule(ctx context.Context, s *models.NewsletterSchedule) error {
	insertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	sectionIDsJSON, err := json.Marshal(s.SectionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule section IDs: %w", err)
	}

	if s.ID == 0 {
		if err := db.conn.QueryRowContext(insertCtx,
			"SELECT COALESCE(MAX(id), 0) + 1 FROM newsletter_schedules").Scan(&s.ID); err != nil {
			return fmt.Errorf("failed to allocate schedule ID: %w", err)
		}
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `INSERT INTO newsletter_schedules (id, name, enabled, cron_expression, template, time_frame,
			subject, body_html, notifier_id, section_ids, last_run_at, next_run_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err = db.conn.ExecContext(insertCtx, query,
		s.ID, s.Name, s.Enabled, s.CronExpr, s.Template, s.TimeFrame,
		nullableString(s.Subject), nullableString(s.BodyHTML),
		s.NotifierID, nullableJSON(sectionIDsJSON), s.LastRunAt, s.NextRunAt,
		s.CreatedAt, s.UpdatedAt)
	metrics.RecordDBQuery("insert", "newsletter_schedules", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create newsletter schedule: %w", err)
	}
	return nil
}

// GetNewsletterSchedules returns all schedules ordered by ID.
func (db *DB) GetNewsletterSchedules(ctx context.Context) ([]models.NewsletterSchedule, error) {
	return db.queryNewsletterSchedules(ctx, fmt.Sprintf(
		"SELECT %s FROM newsletter_schedules ORDER BY id", newsletterScheduleColumns))
}

// GetSchedulesDue returns enabled schedules whose next run time has
// arrived. Schedules without a computed next run are skipped; the engine
// seeds those on startup.
func (db *DB) GetSchedulesDue(ctx context.Context, now time.Time) ([]models.NewsletterSchedule, error) {
	return db.queryNewsletterSchedules(ctx, fmt.Sprintf(
		`SELECT %s FROM newsletter_schedules
		WHERE enabled = TRUE AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, newsletterScheduleColumns), now)
}

func (db *DB) queryNewsletterSchedules(ctx context.Context, query string, args ...interface{}) ([]models.NewsletterSchedule, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, args...)
	metrics.RecordDBQuery("select", "newsletter_schedules", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query newsletter schedules: %w", err)
	}
	defer closeQuietly(rows)

	schedules := make([]models.NewsletterSchedule, 0)
	for rows.Next() {
		s, err := scanNewsletterSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan newsletter schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// GetNewsletterSchedule returns a single schedule by ID.
// Returns ErrNotFound if no schedule exists.
func (db *DB) GetNewsletterSchedule(ctx context.Context, id int64) (*models.NewsletterSchedule, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM newsletter_schedules WHERE id = ?", newsletterScheduleColumns)
	s, err := scanNewsletterSchedule(db.conn.QueryRowContext(queryCtx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("newsletter schedule %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get newsletter schedule %d: %w", id, err)
	}
	return s, nil
}

// UpdateNewsletterSchedule replaces the stored schedule with the given one.
// Returns ErrNotFound if the ID does not exist.
func (db *DB) UpdateNewsletterSchedule(ctx context.Context, s *models.NewsletterSchedule) error {
	updateCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	sectionIDsJSON, err := json.Marshal(s.SectionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule section IDs: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()

	query := `UPDATE newsletter_schedules SET
			name = ?, enabled = ?, cron_expression = ?, template = ?, time_frame = ?,
			subject = ?, body_html = ?, notifier_id = ?, section_ids = ?, next_run_at = ?,
			updated_at = ?
		WHERE id = ?`

	start := time.Now()
	result, err := db.conn.ExecContext(updateCtx, query,
		s.Name, s.Enabled, s.CronExpr, s.Template, s.TimeFrame,
		nullableString(s.Subject), nullableString(s.BodyHTML),
		s.NotifierID, nullableJSON(sectionIDsJSON), s.NextRunAt,
		s.UpdatedAt, s.ID)
	metrics.RecordDBQuery("update", "newsletter_schedules", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update newsletter schedule %d: %w", s.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("newsletter schedule %d: %w", s.ID, ErrNotFound)
	}
	return nil
}

// UpdateScheduleNextRun sets only the next run time. Used to seed
// schedules that have never run.
func (db *DB) UpdateScheduleNextRun(ctx context.Context, id int64, nextRun time.Time) error {
	updateCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err := db.conn.ExecContext(updateCtx,
		"UPDATE newsletter_schedules SET next_run_at = ?, updated_at = ? WHERE id = ?",
		nextRun, time.Now().UTC(), id)
	metrics.RecordDBQuery("update", "newsletter_schedules", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update schedule %d next run: %w", id, err)
	}
	return nil
}

// UpdateScheduleAfterRun records a completed run and the next occurrence.
func (db *DB) UpdateScheduleAfterRun(ctx context.Context, id int64, lastRun, nextRun time.Time) error {
	updateCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err := db.conn.ExecContext(updateCtx,
		"UPDATE newsletter_schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?",
		lastRun, nextRun, time.Now().UTC(), id)
	metrics.RecordDBQuery("update", "newsletter_schedules", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update schedule %d after run: %w", id, err)
	}
	return nil
}

// DeleteNewsletterSchedule removes a schedule.
// Returns ErrNotFound if the ID does not exist.
func (db *DB) DeleteNewsletterSchedule(ctx context.Context, id int64) error {
	deleteCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := db.conn.ExecContext(deleteCtx, "DELETE FROM newsletter_schedules WHERE id = ?", id)
	metrics.RecordDBQuery("delete", "newsletter_schedules", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete newsletter schedule %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("newsletter schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// InsertNewsletterLog records one newsletter execution.
func (db *DB) InsertNewsletterLog(ctx context.Context, entry *models.NewsletterLogEntry) error {
	insertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `INSERT INTO newsletter_log (id, schedule_id, subject, item_count,
			success, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := db.conn.ExecContext(insertCtx, query,
		entry.ID, entry.ScheduleID, entry.Subject, entry.ItemCount,
		entry.Success, nullableString(entry.Error), entry.StartedAt, entry.FinishedAt)
	metrics.RecordDBQuery("insert", "newsletter_log", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert newsletter log entry: %w", err)
	}
	return nil
}

// GetNewsletterLog returns the most recent newsletter runs, newest first.
func (db *DB) GetNewsletterLog(ctx context.Context, limit int) ([]models.NewsletterLogEntry, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, schedule_id, subject, item_count, success,
			COALESCE(error_message, '') AS error_message,
			started_at,
			COALESCE(finished_at, started_at) AS finished_at
		FROM newsletter_log
		ORDER BY started_at DESC
		LIMIT ?`

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query, limit)
	metrics.RecordDBQuery("select", "newsletter_log", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query newsletter log: %w", err)
	}
	defer closeQuietly(rows)

	entries := make([]models.NewsletterLogEntry, 0)
	for rows.Next() {
		var entry models.NewsletterLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.ScheduleID, &entry.Subject, &entry.ItemCount,
			&entry.Success, &entry.Error, &entry.StartedAt, &entry.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan newsletter log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
