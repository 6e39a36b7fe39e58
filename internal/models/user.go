// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import "time"

// User is a media-server account as synced from /accounts, enriched with
// aggregates from the history table when listed through the API.
type User struct {
	UserID       int    `json:"user_id"`
	Username     string `json:"username"`
	FriendlyName string `json:"friendly_name,omitempty"`
	Thumb        string `json:"thumb,omitempty"`
	IsHome       bool   `json:"is_home"`
	IsAdmin      bool   `json:"is_admin"`

	TotalPlays int        `json:"total_plays"`
	TotalTime  int64      `json:"total_time"` // Seconds
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	LastPlayed string     `json:"last_played,omitempty"` // Full title of the most recent watch

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
