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

	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

const notifierSelectColumns = `id, name, channel_type, enabled,
	triggers, conditions, subjects, bodies, config,
	created_at, updated_at`

// nullableJSON converts a marshaled JSON payload into an insert argument,
// storing NULL instead of the literal string "null" for absent values.
func nullableJSON(data []byte) interface{} {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return string(data)
}

// encodedNotifier holds the serialized notifier fields. Trigger flags,
// conditions, per-trigger text overrides and channel config are stored as
// JSON in TEXT columns; triggers and config are NOT NULL so they always
// serialize to an object.
type encodedNotifier struct {
	triggers   string
	conditions interface{}
	subjects   interface{}
	bodies     interface{}
	config     string
}

func encodeNotifier(n *models.Notifier) (*encodedNotifier, error) {
	triggers := n.Triggers
	if triggers == nil {
		triggers = map[string]bool{}
	}
	triggersJSON, err := json.Marshal(triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifier triggers: %w", err)
	}
	conditionsJSON, err := json.Marshal(n.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifier conditions: %w", err)
	}
	subjectsJSON, err := json.Marshal(n.Subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifier subjects: %w", err)
	}
	bodiesJSON, err := json.Marshal(n.Bodies)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifier bodies: %w", err)
	}
	configJSON, err := json.Marshal(n.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifier config: %w", err)
	}
	return &encodedNotifier{
		triggers:   string(triggersJSON),
		conditions: nullableJSON(conditionsJSON),
		subjects:   nullableJSON(subjectsJSON),
		bodies:     nullableJSON(bodiesJSON),
		config:     string(configJSON),
	}, nil
}

func scanNotifier(row rowScanner) (*models.Notifier, error) {
	var n models.Notifier
	var triggersJSON, configJSON string
	var conditionsJSON, subjectsJSON, bodiesJSON sql.NullString
	if err := row.Scan(
		&n.ID, &n.Name, &n.ChannelType, &n.Enabled,
		&triggersJSON, &conditionsJSON, &subjectsJSON, &bodiesJSON, &configJSON,
		&n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(triggersJSON), &n.Triggers); err != nil {
		return nil, fmt.Errorf("failed to decode notifier triggers: %w", err)
	}
	if conditionsJSON.Valid {
		if err := json.Unmarshal([]byte(conditionsJSON.String), &n.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode notifier conditions: %w", err)
		}
	}
	if subjectsJSON.Valid {
		if err := json.Unmarshal([]byte(subjectsJSON.String), &n.Subjects); err != nil {
			return nil, fmt.Errorf("failed to decode notifier subjects: %w", err)
		}
	}
	if bodiesJSON.Valid {
		if err := json.Unmarshal([]byte(bodiesJSON.String), &n.Bodies); err != nil {
			return nil, fmt.Errorf("failed to decode notifier bodies: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(configJSON), &n.Config); err != nil {
		return nil, fmt.Errorf("failed to decode notifier config: %w", err)
	}
	return &n, nil
}

// CreateNotifier stores a new notification rule and assigns its ID.
// DuckDB cannot combine IDENTITY with PRIMARY KEY, so integer IDs are
// allocated with MAX(id)+1. Notifier writes come through the API one at a
// time, so the allocation does not race.
func (db *DB) CreateNotifier(ctx context.Context, n *models.Notifier) error {
	insertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	encoded, err := encodeNotifier(n)
	if err != nil {
		return err
	}

	if n.ID == 0 {
		if err := db.conn.QueryRowContext(insertCtx,
			"SELECT COALESCE(MAX(id), 0) + 1 FROM notifiers").Scan(&n.ID); err != nil {
			return fmt.Errorf("failed to allocate notifier ID: %w", err)
		}
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	query := `INSERT INTO notifiers (id, name, channel_type, enabled,
			triggers, conditions, subjects, bodies, config,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err = db.conn.ExecContext(insertCtx, query,
		n.ID, n.Name, n.ChannelType, n.Enabled,
		encoded.triggers, encoded.conditions, encoded.subjects, encoded.bodies, encoded.config,
		n.CreatedAt, n.UpdatedAt)
	metrics.RecordDBQuery("insert", "notifiers", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	return nil
}

// GetNotifiers returns all notification rules ordered by ID.
func (db *DB) GetNotifiers(ctx context.Context) ([]models.Notifier, error) {
	return db.queryNotifiers(ctx, fmt.Sprintf(
		"SELECT %s FROM notifiers ORDER BY id", notifierSelectColumns))
}

// GetEnabledNotifiers returns only enabled rules. The dispatcher calls
// this on every event, so disabled rules never reach condition evaluation.
func (db *DB) GetEnabledNotifiers(ctx context.Context) ([]models.Notifier, error) {
	return db.queryNotifiers(ctx, fmt.Sprintf(
		"SELECT %s FROM notifiers WHERE enabled = TRUE ORDER BY id", notifierSelectColumns))
}

func (db *DB) queryNotifiers(ctx context.Context, query string) ([]models.Notifier, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query)
	metrics.RecordDBQuery("select", "notifiers", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifiers: %w", err)
	}
	defer closeQuietly(rows)

	notifiers := make([]models.Notifier, 0)
	for rows.Next() {
		n, err := scanNotifier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notifier: %w", err)
		}
		notifiers = append(notifiers, *n)
	}
	return notifiers, rows.Err()
}

// GetNotifier returns a single notification rule by ID.
// Returns ErrNotFound if no rule exists.
func (db *DB) GetNotifier(ctx context.Context, id int64) (*models.Notifier, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM notifiers WHERE id = ?", notifierSelectColumns)
	n, err := scanNotifier(db.conn.QueryRowContext(queryCtx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notifier %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notifier %d: %w", id, err)
	}
	return n, nil
}

// UpdateNotifier replaces the stored rule with the given one.
// Returns ErrNotFound if the ID does not exist.
func (db *DB) UpdateNotifier(ctx context.Context, n *models.Notifier) error {
	updateCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	encoded, err := encodeNotifier(n)
	if err != nil {
		return err
	}
	n.UpdatedAt = time.Now().UTC()

	query := `UPDATE notifiers SET
			name = ?, channel_type = ?, enabled = ?,
			triggers = ?, conditions = ?, subjects = ?, bodies = ?, config = ?,
			updated_at = ?
		WHERE id = ?`

	start := time.Now()
	result, err := db.conn.ExecContext(updateCtx, query,
		n.Name, n.ChannelType, n.Enabled,
		encoded.triggers, encoded.conditions, encoded.subjects, encoded.bodies, encoded.config,
		n.UpdatedAt, n.ID)
	metrics.RecordDBQuery("update", "notifiers", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update notifier %d: %w", n.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notifier %d: %w", n.ID, ErrNotFound)
	}
	return nil
}

// DeleteNotifier removes a notification rule.
// Returns ErrNotFound if the ID does not exist.
func (db *DB) DeleteNotifier(ctx context.Context, id int64) error {
	deleteCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := db.conn.ExecContext(deleteCtx, "DELETE FROM notifiers WHERE id = ?", id)
	metrics.RecordDBQuery("delete", "notifiers", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete notifier %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notifier %d: %w", id, ErrNotFound)
	}
	return nil
}
