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

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// userSelectColumns joins each user row with its playback aggregates.
// arg_max picks the title of the most recent play without a correlated
// subquery; LEFT JOIN keeps users that have never played anything.
const userSelectColumns = `u.user_id, u.username,
	COALESCE(u.friendly_name, '') AS friendly_name,
	COALESCE(u.thumb, '') AS thumb,
	u.is_home, u.is_admin,
	COUNT(h.id) AS total_plays,
	COALESCE(SUM(h.play_duration), 0) AS total_time,
	MAX(h.started_at) AS last_seen,
	COALESCE(arg_max(h.full_title, h.started_at), '') AS last_played,
	u.created_at, u.updated_at`

const userGroupByColumns = `u.user_id, u.username, u.friendly_name, u.thumb,
	u.is_home, u.is_admin, u.created_at, u.updated_at`

// UpsertUser inserts a user or refreshes its profile fields. DuckDB uses
// optimistic concurrency, so concurrent upserts against the same table can
// fail with a transaction conflict; those are retried with a short backoff.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	upsertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	query := `INSERT INTO users (user_id, username, friendly_name, thumb, is_home, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			friendly_name = excluded.friendly_name,
			thumb = excluded.thumb,
			is_home = excluded.is_home,
			is_admin = excluded.is_admin,
			updated_at = excluded.updated_at`

	start := time.Now()
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, err = db.conn.ExecContext(upsertCtx, query,
			user.UserID, user.Username, user.FriendlyName, user.Thumb,
			user.IsHome, user.IsAdmin, now, now)
		if err == nil || !isTransactionConflict(err) {
			break
		}
		logging.Debug().
			Err(err).
			Int("user_id", user.UserID).
			Int("attempt", attempt+1).
			Msg("Transaction conflict during user upsert, retrying")
		select {
		case <-upsertCtx.Done():
			return upsertCtx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	metrics.RecordDBQuery("upsert", "users", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", user.UserID, err)
	}
	return nil
}

// GetUsers returns all known users with their playback aggregates, ordered
// by username.
func (db *DB) GetUsers(ctx context.Context) ([]models.User, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s
		FROM users u
		LEFT JOIN history h ON h.user_id = u.user_id
		GROUP BY %s
		ORDER BY u.username`, userSelectColumns, userGroupByColumns)

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query)
	metrics.RecordDBQuery("select", "users", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer closeQuietly(rows)

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// GetUser returns a single user by ID with playback aggregates.
// Returns ErrNotFound if no user exists.
func (db *DB) GetUser(ctx context.Context, userID int) (*models.User, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s
		FROM users u
		LEFT JOIN history h ON h.user_id = u.user_id
		WHERE u.user_id = ?
		GROUP BY %s`, userSelectColumns, userGroupByColumns)

	user, err := scanUser(db.conn.QueryRowContext(queryCtx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.UserID, &user.Username, &user.FriendlyName, &user.Thumb,
		&user.IsHome, &user.IsAdmin,
		&user.TotalPlays, &user.TotalTime, &user.LastSeen, &user.LastPlayed,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
