// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import "time"

// LibrarySection is a media-server library as synced from
// /library/sections, enriched with aggregates when listed.
type LibrarySection struct {
	SectionID   string `json:"section_id"`
	Name        string `json:"name"`
	SectionType string `json:"section_type"` // movie | show | artist | photo
	Agent       string `json:"agent,omitempty"`
	ItemCount   int    `json:"item_count"`

	TotalPlays int        `json:"total_plays"`
	TotalTime  int64      `json:"total_time"` // Seconds
	LastPlayed *time.Time `json:"last_played,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecentlyAddedItem is one item detected by the recently-added watcher and
// offered to the API and the newsletter digest.
type RecentlyAddedItem struct {
	RatingKey        string    `json:"rating_key"`
	MediaType        string    `json:"media_type"`
	Title            string    `json:"title"`
	ParentTitle      string    `json:"parent_title,omitempty"`
	GrandparentTitle string    `json:"grandparent_title,omitempty"`
	MediaIndex       int       `json:"media_index,omitempty"`
	ParentMediaIndex int       `json:"parent_media_index,omitempty"`
	Year             int       `json:"year,omitempty"`
	SectionID        string    `json:"section_id"`
	LibraryName      string    `json:"library_name,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	Thumb            string    `json:"thumb,omitempty"`
	AddedAt          time.Time `json:"added_at"`
	DetectedAt       time.Time `json:"detected_at"`
	Notified         bool      `json:"notified"`
}

// FullTitle renders the item the way history rows do, so newsletter and
// notification text stays consistent with the rest of the system.
func (r *RecentlyAddedItem) FullTitle() string {
	switch r.MediaType {
	case MediaTypeEpisode:
		if r.GrandparentTitle != "" {
			return r.GrandparentTitle + " - " + r.Title
		}
	case MediaTypeTrack:
		if r.GrandparentTitle != "" {
			return r.GrandparentTitle + " - " + r.Title
		}
	}
	return r.Title
}
