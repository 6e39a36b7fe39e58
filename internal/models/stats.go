// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import "time"

// HomeStats is the dashboard's headline block: the top-N lists computed
// over a trailing window, one HomeStatList per category.
type HomeStats struct {
	Days  int            `json:"days"`
	Count int            `json:"count"`
	Lists []HomeStatList `json:"lists"`
}

// Home stat categories.
const (
	StatTopMovies      = "top_movies"
	StatTopTV          = "top_tv"
	StatTopMusic       = "top_music"
	StatTopUsers       = "top_users"
	StatTopPlatforms   = "top_platforms"
	StatTopLibraries   = "top_libraries"
	StatPopularMovies  = "popular_movies"
	StatPopularTV      = "popular_tv"
	StatMostConcurrent = "most_concurrent"
)

// HomeStatList is one ranked category.
type HomeStatList struct {
	StatID string        `json:"stat_id"`
	Rows   []HomeStatRow `json:"rows"`
}

// HomeStatRow is one entry in a ranked list. Fields are populated per
// category: media rows carry titles and rating keys, user rows carry user
// fields, the concurrent row carries Count and the timestamp it peaked.
type HomeStatRow struct {
	Title            string     `json:"title,omitempty"`
	RatingKey        string     `json:"rating_key,omitempty"`
	GrandparentTitle string     `json:"grandparent_title,omitempty"`
	MediaType        string     `json:"media_type,omitempty"`
	UserID           int        `json:"user_id,omitempty"`
	Username         string     `json:"username,omitempty"`
	Platform         string     `json:"platform,omitempty"`
	LibraryName      string     `json:"library_name,omitempty"`
	TotalPlays       int        `json:"total_plays"`
	TotalDuration    int64      `json:"total_duration"` // Seconds
	UniqueUsers      int        `json:"unique_users,omitempty"`
	LastPlayed       *time.Time `json:"last_played,omitempty"`
	PeakAt           *time.Time `json:"peak_at,omitempty"`
}

// PlaysSeries is a labeled time/category series for the plays charts
// (plays by date, day of week, hour of day, stream type, month).
type PlaysSeries struct {
	GroupedBy  string        `json:"grouped_by"`
	Categories []string      `json:"categories"`
	Series     []SeriesEntry `json:"series"`
}

// SeriesEntry is one line in a PlaysSeries, one value per category.
type SeriesEntry struct {
	Name   string  `json:"name"`
	Values []int64 `json:"values"`
}

// WatchTimeStat is total plays/time over one query window. QueryDays 0
// means all time.
type WatchTimeStat struct {
	QueryDays  int   `json:"query_days"`
	TotalPlays int   `json:"total_plays"`
	TotalTime  int64 `json:"total_time"` // Seconds
}

// PlayerStat is per-player usage for a user.
type PlayerStat struct {
	Player     string `json:"player"`
	Platform   string `json:"platform"`
	TotalPlays int    `json:"total_plays"`
	TotalTime  int64  `json:"total_time"`
}

// LibraryUserStat is per-user usage within a library.
type LibraryUserStat struct {
	UserID     int    `json:"user_id"`
	Username   string `json:"username"`
	TotalPlays int    `json:"total_plays"`
	TotalTime  int64  `json:"total_time"`
}

// UserStats bundles a user's stat block for GET /stats/user/{id}.
type UserStats struct {
	UserID    int             `json:"user_id"`
	Username  string          `json:"username"`
	WatchTime []WatchTimeStat `json:"watch_time"`
	Players   []PlayerStat    `json:"players"`
}

// LibraryStats bundles a library's stat block for GET /stats/library/{id}.
type LibraryStats struct {
	SectionID string            `json:"section_id"`
	Name      string            `json:"name"`
	WatchTime []WatchTimeStat   `json:"watch_time"`
	Users     []LibraryUserStat `json:"users"`
}

// ServerStatus reports upstream reachability for GET /server/status.
type ServerStatus struct {
	Reachable    bool       `json:"reachable"`
	BreakerState string     `json:"breaker_state"`
	LastPollAt   *time.Time `json:"last_poll_at,omitempty"`
	LastErrorAt  *time.Time `json:"last_error_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}
