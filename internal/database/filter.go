// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"fmt"
	"strings"
	"time"
)

// HistoryFilter contains filter parameters for history queries.
//
// All filter fields are optional and combine using AND logic. Multi-select
// fields (slices) use OR logic within the field (e.g. Users: ["alice",
// "bob"] matches alice OR bob).
//
// Filter dimensions:
//   - StartDate/EndDate: events with started_at inside the range
//   - UserID: single account id (API ?user_id=)
//   - Users: usernames, multi-select
//   - SectionID: library section
//   - MediaTypes: movie, episode, track, clip
//   - TranscodeDecisions: direct play, copy, transcode
//   - Platforms: player platform
//   - Search: case-insensitive substring over title, full_title and
//     grandparent_title
//   - WatchedOnly: only rows that crossed the watched threshold
//
// Ordering and paging:
//   - OrderColumn: one of the allowlisted sort keys (see orderColumn);
//     unknown values fall back to started_at
//   - OrderDesc: descending when true
//   - Limit/Offset: page bounds; Limit 0 means the caller's default
//
// Grouping:
//   - Grouped: collapse rows sharing a group_key to the latest row,
//     with play counts and durations summed over the group
//
// Thread safety: HistoryFilter is immutable after creation and safe to
// share across goroutines.
type HistoryFilter struct {
	StartDate          *time.Time
	EndDate            *time.Time
	UserID             *int
	Users              []string
	SectionID          *string
	MediaTypes         []string
	TranscodeDecisions []string
	Platforms          []string
	Search             string
	WatchedOnly        bool

	OrderColumn string
	OrderDesc   bool
	Limit       int
	Offset      int

	Grouped bool
}

// historySortColumns is the allowlist mapping public sort keys to SQL
// columns. Keeping this in one place means user input never reaches the
// ORDER BY clause directly.
var historySortColumns = map[string]string{
	"started_at":       "started_at",
	"stopped_at":       "stopped_at",
	"user":             "username",
	"full_title":       "full_title",
	"play_duration":    "play_duration",
	"paused_counter":   "paused_counter",
	"percent_complete": "percent_complete",
	"platform":         "platform",
	"player":           "player",
}

// orderColumn resolves the filter's sort key against the allowlist,
// defaulting to started_at.
func (f HistoryFilter) orderColumn() string {
	if col, ok := historySortColumns[f.OrderColumn]; ok {
		return col
	}
	return "started_at"
}

// orderClause renders the full ORDER BY expression.
func (f HistoryFilter) orderClause() string {
	dir := "ASC"
	if f.OrderDesc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s", f.orderColumn(), dir)
}

// appendInClause is a generic helper for building SQL IN clauses across
// the multi-select filter dimensions.
func appendInClause(columnName string, values []string, whereClauses *[]string, args *[]interface{}) {
	if len(values) == 0 {
		return
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, v)
	}

	*whereClauses = append(*whereClauses, fmt.Sprintf("%s IN (%s)", columnName, strings.Join(placeholders, ", ")))
}

// buildFilterConditions builds WHERE clause conditions and args from a
// HistoryFilter. Returns (whereClauses, args) for parameterized queries.
func buildFilterConditions(filter HistoryFilter) ([]string, []interface{}) {
	whereClauses := []string{}
	args := []interface{}{}

	if filter.StartDate != nil {
		whereClauses = append(whereClauses, "started_at >= ?")
		args = append(args, *filter.StartDate)
	}

	if filter.EndDate != nil {
		whereClauses = append(whereClauses, "started_at <= ?")
		args = append(args, *filter.EndDate)
	}

	if filter.UserID != nil {
		whereClauses = append(whereClauses, "user_id = ?")
		args = append(args, *filter.UserID)
	}

	if filter.SectionID != nil {
		whereClauses = append(whereClauses, "section_id = ?")
		args = append(args, *filter.SectionID)
	}

	appendInClause("username", filter.Users, &whereClauses, &args)
	appendInClause("media_type", filter.MediaTypes, &whereClauses, &args)
	appendInClause("transcode_decision", filter.TranscodeDecisions, &whereClauses, &args)
	appendInClause("platform", filter.Platforms, &whereClauses, &args)

	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		whereClauses = append(whereClauses,
			"(title ILIKE ? OR full_title ILIKE ? OR grandparent_title ILIKE ?)")
		args = append(args, term, term, term)
	}

	if filter.WatchedOnly {
		whereClauses = append(whereClauses, "watched_status = TRUE")
	}

	return whereClauses, args
}

// buildFilterWhereClause builds a WHERE clause string with "1=1" base for
// safe concatenation.
//
// Returns the clause (e.g. "1=1 AND started_at >= ? AND username IN (?, ?)")
// and the query arguments.
func buildFilterWhereClause(filter HistoryFilter) (string, []interface{}) {
	clauses, args := buildFilterConditions(filter)

	if len(clauses) == 0 {
		return "1=1", args
	}

	return "1=1 AND " + strings.Join(clauses, " AND "), args
}
