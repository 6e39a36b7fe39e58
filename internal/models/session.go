// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import "time"

// Playback state reported for an active session.
const (
	StatePlaying   = "playing"
	StatePaused    = "paused"
	StateBuffering = "buffering"
	StateStopped   = "stopped"
)

// Stream decision values.
const (
	DecisionDirectPlay = "direct play"
	DecisionCopy       = "copy" // direct stream: container remux, codec untouched
	DecisionTranscode  = "transcode"
)

// Media types seen in sessions and history.
const (
	MediaTypeMovie   = "movie"
	MediaTypeEpisode = "episode"
	MediaTypeTrack   = "track"
	MediaTypeClip    = "clip"
)

// Location types for the connection between player and server.
const (
	LocationLAN = "lan"
	LocationWAN = "wan"
)

// ActiveSession is one currently-playing stream as assembled from the
// server's /status/sessions response plus monitor-side accounting.
//
// The monitor owns the mutable fields (State, ViewOffsetMS, paused
// accounting); everything else is a snapshot of what the server reported.
type ActiveSession struct {
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id,omitempty"` // Player-reported session identifier, used for terminate

	// User
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	UserThumb string `json:"user_thumb,omitempty"`

	// Media identification
	MediaType            string `json:"media_type"`
	RatingKey            string `json:"rating_key"`
	ParentRatingKey      string `json:"parent_rating_key,omitempty"`
	GrandparentRatingKey string `json:"grandparent_rating_key,omitempty"`
	Title                string `json:"title"`
	ParentTitle          string `json:"parent_title,omitempty"`      // Season / album
	GrandparentTitle     string `json:"grandparent_title,omitempty"` // Show / artist
	MediaIndex           int    `json:"media_index,omitempty"`       // Episode / track number
	ParentMediaIndex     int    `json:"parent_media_index,omitempty"`
	Year                 int    `json:"year,omitempty"`
	LibrarySectionID     string `json:"section_id,omitempty"`
	LibraryName          string `json:"library_name,omitempty"`
	ContentRating        string `json:"content_rating,omitempty"`
	Guid                 string `json:"guid,omitempty"`
	Thumb                string `json:"thumb,omitempty"`

	// Player
	Platform     string `json:"platform,omitempty"`
	Product      string `json:"product,omitempty"`
	Player       string `json:"player,omitempty"`
	Device       string `json:"device,omitempty"`
	MachineID    string `json:"machine_id,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	Local        bool   `json:"local"`
	Secure       bool   `json:"secure"`
	Relayed      bool   `json:"relayed"`
	LocationType string `json:"location_type,omitempty"` // lan | wan

	// Stream detail
	TranscodeDecision string  `json:"transcode_decision,omitempty"`
	VideoDecision     string  `json:"video_decision,omitempty"`
	AudioDecision     string  `json:"audio_decision,omitempty"`
	Container         string  `json:"container,omitempty"`
	VideoCodec        string  `json:"video_codec,omitempty"`
	VideoResolution   string  `json:"video_resolution,omitempty"`
	AudioCodec        string  `json:"audio_codec,omitempty"`
	AudioChannels     int     `json:"audio_channels,omitempty"`
	SubtitleCodec     string  `json:"subtitle_codec,omitempty"`
	SubtitleLanguage  string  `json:"subtitle_language,omitempty"`
	QualityProfile    string  `json:"quality_profile,omitempty"`
	BandwidthKbps     int64   `json:"bandwidth_kbps,omitempty"`
	TranscodeProgress float64 `json:"transcode_progress,omitempty"`
	TranscodeSpeed    float64 `json:"transcode_speed,omitempty"`
	TranscodeHWDecode bool    `json:"transcode_hw_decode,omitempty"`
	TranscodeHWEncode bool    `json:"transcode_hw_encode,omitempty"`

	// Progress
	State           string        `json:"state"` // playing | paused | buffering
	ViewOffsetMS    int64         `json:"view_offset_ms"`
	DurationMS      int64         `json:"duration_ms"`
	PercentComplete float64       `json:"percent_complete"`
	StartedAt       time.Time     `json:"started_at"`
	PausedDuration  time.Duration `json:"paused_duration,omitempty"`
	Watched         bool          `json:"watched"`
}

// Activity is the live snapshot served by GET /api/v1/activity and pushed
// over the WebSocket hub on every poll. Counts mirror the session list so
// clients can render summary chips without re-deriving them.
type Activity struct {
	Sessions []ActiveSession `json:"sessions"`

	StreamCount             int `json:"stream_count"`
	StreamCountDirectPlay   int `json:"stream_count_direct_play"`
	StreamCountDirectStream int `json:"stream_count_direct_stream"`
	StreamCountTranscode    int `json:"stream_count_transcode"`

	TotalBandwidthKbps int64 `json:"total_bandwidth_kbps"`
	LANBandwidthKbps   int64 `json:"lan_bandwidth_kbps"`
	WANBandwidthKbps   int64 `json:"wan_bandwidth_kbps"`

	ServerReachable bool      `json:"server_reachable"`
	PolledAt        time.Time `json:"polled_at"`
}
