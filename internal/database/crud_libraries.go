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

const librarySelectColumns = `s.section_id, s.name, s.section_type,
	COALESCE(s.agent, '') AS agent, s.item_count,
	COUNT(h.id) AS total_plays,
	COALESCE(SUM(h.play_duration), 0) AS total_time,
	MAX(h.started_at) AS last_played,
	s.created_at, s.updated_at`

const libraryGroupByColumns = `s.section_id, s.name, s.section_type, s.agent,
	s.item_count, s.created_at, s.updated_at`

// UpsertLibrarySection inserts a library section or refreshes its metadata.
func (db *DB) UpsertLibrarySection(ctx context.Context, section *models.LibrarySection) error {
	upsertCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	query := `INSERT INTO library_sections (section_id, name, section_type, agent, item_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (section_id) DO UPDATE SET
			name = excluded.name,
			section_type = excluded.section_type,
			agent = excluded.agent,
			item_count = excluded.item_count,
			updated_at = excluded.updated_at`

	start := time.Now()
	_, err := db.conn.ExecContext(upsertCtx, query,
		section.SectionID, section.Name, section.SectionType, section.Agent,
		section.ItemCount, now, now)
	metrics.RecordDBQuery("upsert", "library_sections", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert library section %s: %w", section.SectionID, err)
	}
	return nil
}

// GetLibrarySections returns all known library sections with their playback
// aggregates, ordered by name.
func (db *DB) GetLibrarySections(ctx context.Context) ([]models.LibrarySection, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s
		FROM library_sections s
		LEFT JOIN history h ON h.section_id = s.section_id
		GROUP BY %s
		ORDER BY s.name`, librarySelectColumns, libraryGroupByColumns)

	start := time.Now()
	rows, err := db.conn.QueryContext(queryCtx, query)
	metrics.RecordDBQuery("select", "library_sections", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query library sections: %w", err)
	}
	defer closeQuietly(rows)

	sections := make([]models.LibrarySection, 0)
	for rows.Next() {
		section, err := scanLibrarySection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan library section: %w", err)
		}
		sections = append(sections, *section)
	}
	return sections, rows.Err()
}

// GetLibrarySection returns a single library section by ID with playback
// aggregates. Returns ErrNotFound if no section exists.
func (db *DB) GetLibrarySection(ctx context.Context, sectionID string) (*models.LibrarySection, error) {
	queryCtx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s
		FROM library_sections s
		LEFT JOIN history h ON h.section_id = s.section_id
		WHERE s.section_id = ?
		GROUP BY %s`, librarySelectColumns, libraryGroupByColumns)

	section, err := scanLibrarySection(db.conn.QueryRowContext(queryCtx, query, sectionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("library section %s: %w", sectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get library section %s: %w", sectionID, err)
	}
	return section, nil
}

func scanLibrarySection(row rowScanner) (*models.LibrarySection, error) {
	var section models.LibrarySection
	err := row.Scan(
		&section.SectionID, &section.Name, &section.SectionType,
		&section.Agent, &section.ItemCount,
		&section.TotalPlays, &section.TotalTime, &section.LastPlayed,
		&section.CreatedAt, &section.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &section, nil
}
