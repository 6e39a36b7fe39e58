// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is one finished playback session as persisted to the
// history table. Records are written exactly once, when the monitor sees a
// session stop; nullable columns use pointers so absent upstream fields
// round-trip as SQL NULL rather than zero values.
type HistoryRecord struct {
	ID         uuid.UUID  `json:"id"`
	SessionKey string     `json:"session_key"`
	GroupKey   string     `json:"group_key"` // Shared by consecutive views of the same item (resume within the grouping window)
	ServerID   string     `json:"server_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`

	// User
	UserID    int     `json:"user_id"`
	Username  string  `json:"username"`
	IPAddress *string `json:"ip_address,omitempty"`

	// Media identification
	MediaType            string  `json:"media_type"`
	RatingKey            *string `json:"rating_key,omitempty"`
	ParentRatingKey      *string `json:"parent_rating_key,omitempty"`
	GrandparentRatingKey *string `json:"grandparent_rating_key,omitempty"`
	Title                string  `json:"title"`
	ParentTitle          *string `json:"parent_title,omitempty"`
	GrandparentTitle     *string `json:"grandparent_title,omitempty"`
	FullTitle            string  `json:"full_title"`
	MediaIndex           *int    `json:"media_index,omitempty"`
	ParentMediaIndex     *int    `json:"parent_media_index,omitempty"`
	Year                 *int    `json:"year,omitempty"`
	Guid                 *string `json:"guid,omitempty"`
	SectionID            *string `json:"section_id,omitempty"`
	LibraryName          *string `json:"library_name,omitempty"`
	ContentRating        *string `json:"content_rating,omitempty"`
	Thumb                *string `json:"thumb,omitempty"`

	// Player
	Platform     *string `json:"platform,omitempty"`
	Product      *string `json:"product,omitempty"`
	Player       *string `json:"player,omitempty"`
	Device       *string `json:"device,omitempty"`
	MachineID    *string `json:"machine_id,omitempty"`
	LocationType *string `json:"location_type,omitempty"`
	Local        *bool   `json:"local,omitempty"`
	Secure       *bool   `json:"secure,omitempty"`
	Relayed      *bool   `json:"relayed,omitempty"`

	// Stream detail
	TranscodeDecision *string `json:"transcode_decision,omitempty"`
	VideoDecision     *string `json:"video_decision,omitempty"`
	AudioDecision     *string `json:"audio_decision,omitempty"`
	Container         *string `json:"container,omitempty"`
	VideoCodec        *string `json:"video_codec,omitempty"`
	VideoResolution   *string `json:"video_resolution,omitempty"`
	AudioCodec        *string `json:"audio_codec,omitempty"`
	AudioChannels     *int    `json:"audio_channels,omitempty"`
	SubtitleCodec     *string `json:"subtitle_codec,omitempty"`
	QualityProfile    *string `json:"quality_profile,omitempty"`
	BandwidthKbps     *int64  `json:"bandwidth_kbps,omitempty"`

	// Progress accounting
	ViewOffsetMS    int64   `json:"view_offset_ms"`
	DurationMS      int64   `json:"duration_ms"`
	PercentComplete float64 `json:"percent_complete"`
	PausedCounter   int64   `json:"paused_counter"` // Seconds spent paused
	PlayDuration    int64   `json:"play_duration"`  // Wall seconds minus paused seconds
	WatchedStatus   bool    `json:"watched_status"`

	CreatedAt time.Time `json:"created_at"`
}

// GroupedCount carries the grouped-play count attached to history rows
// when grouping is requested.
type GroupedCount struct {
	GroupKey string `json:"group_key"`
	Count    int    `json:"count"`
}

// HistoryPage is the paginated history response payload. When Grouped,
// Records holds the latest row of each group with durations summed over
// the group, and GroupCounts carries the per-group play counts.
type HistoryPage struct {
	Records       []HistoryRecord `json:"records"`
	GroupCounts   []GroupedCount  `json:"group_counts,omitempty"`
	TotalCount    int             `json:"total_count"`
	FilteredCount int             `json:"filtered_count"`
	Limit         int             `json:"limit"`
	Offset        int             `json:"offset"`
	Grouped       bool            `json:"grouped"`
}
