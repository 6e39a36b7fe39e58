// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package eventstream

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/models"
)

// SchemaVersion is the current event schema version. Increment on breaking
// changes to SessionEvent; consumers must keep handling older versions.
const SchemaVersion = 1

// Event types. The notifier maps each to its trigger kind by prefixing
// "on_"; the NATS subject is "playback." + type.
const (
	EventPlay       = "play"
	EventStop       = "stop"
	EventPause      = "pause"
	EventResume     = "resume"
	EventBuffer     = "buffer"
	EventWatched    = "watched"
	EventConcurrent = "concurrent"
	EventNewDevice  = "newdevice"
	EventCreated    = "created"
	EventServerDown = "server_down"
	EventServerUp   = "server_up"
)

// SessionEvent is the canonical lifecycle event emitted by the monitor and
// consumed by the notifier, either through NATS or by direct dispatch.
//
// Session-scoped types (play through newdevice) carry the full session
// snapshot flattened into top-level fields so notifier conditions and
// templates never need to re-fetch anything. "created" events carry the
// settled recently-added batch in Items; server_down/server_up carry only
// the server fields and Error.
type SessionEvent struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	// Identification
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	DedupeKey  string    `json:"dedupe_key,omitempty"`
	ServerID   string    `json:"server_id,omitempty"`
	ServerName string    `json:"server_name,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	// Session and user
	SessionKey string `json:"session_key,omitempty"`
	UserID     int    `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`

	// Media
	MediaType            string `json:"media_type,omitempty"`
	RatingKey            string `json:"rating_key,omitempty"`
	ParentRatingKey      string `json:"parent_rating_key,omitempty"`
	GrandparentRatingKey string `json:"grandparent_rating_key,omitempty"`
	Title                string `json:"title,omitempty"`
	ParentTitle          string `json:"parent_title,omitempty"`
	GrandparentTitle     string `json:"grandparent_title,omitempty"`
	FullTitle            string `json:"full_title,omitempty"`
	MediaIndex           int    `json:"media_index,omitempty"`
	ParentMediaIndex     int    `json:"parent_media_index,omitempty"`
	Year                 int    `json:"year,omitempty"`
	SectionID            string `json:"section_id,omitempty"`
	LibraryName          string `json:"library_name,omitempty"`
	ContentRating        string `json:"content_rating,omitempty"`
	Thumb                string `json:"thumb,omitempty"`

	// Player
	Platform     string `json:"platform,omitempty"`
	Product      string `json:"product,omitempty"`
	Player       string `json:"player,omitempty"`
	Device       string `json:"device,omitempty"`
	MachineID    string `json:"machine_id,omitempty"`
	Local        bool   `json:"local,omitempty"`
	Secure       bool   `json:"secure,omitempty"`
	Relayed      bool   `json:"relayed,omitempty"`
	LocationType string `json:"location_type,omitempty"`

	// Stream quality
	TranscodeDecision string `json:"transcode_decision,omitempty"`
	VideoDecision     string `json:"video_decision,omitempty"`
	AudioDecision     string `json:"audio_decision,omitempty"`
	Container         string `json:"container,omitempty"`
	VideoCodec        string `json:"video_codec,omitempty"`
	VideoResolution   string `json:"video_resolution,omitempty"`
	AudioCodec        string `json:"audio_codec,omitempty"`
	AudioChannels     int    `json:"audio_channels,omitempty"`
	QualityProfile    string `json:"quality_profile,omitempty"`
	BandwidthKbps     int64  `json:"bandwidth_kbps,omitempty"`

	// Progress
	StartedAt       time.Time `json:"started_at,omitempty"`
	ViewOffsetMS    int64     `json:"view_offset_ms,omitempty"`
	DurationMS      int64     `json:"duration_ms,omitempty"`
	PercentComplete float64   `json:"percent_complete,omitempty"`
	PlayDuration    int64     `json:"play_duration,omitempty"`  // Seconds, stop events
	PausedCounter   int64     `json:"paused_counter,omitempty"` // Seconds, stop events

	// Type-specific payloads
	Streams int                        `json:"streams,omitempty"` // concurrent: the user's stream count
	Error   string                     `json:"error,omitempty"`   // server_down: last poll error
	Items   []models.RecentlyAddedItem `json:"items,omitempty"`   // created: the settled batch

	// Raw session snapshot for debugging and future fields.
	RawSnapshot json.RawMessage `json:"raw_snapshot,omitempty"`
}

// NewSessionEvent creates an event with a fresh ID, UTC timestamp, and the
// current schema version.
func NewSessionEvent(eventType, serverID string) *SessionEvent {
	return &SessionEvent{
		SchemaVersion: SchemaVersion,
		ID:            uuid.New(),
		Type:          eventType,
		ServerID:      serverID,
		OccurredAt:    time.Now().UTC(),
	}
}

// Topic returns the NATS subject for this event.
// Format: playback.<type>, e.g. playback.play.
func (e *SessionEvent) Topic() string {
	return "playback." + e.Type
}

// TriggerKind returns the notifier trigger this event maps to, e.g.
// "on_play" for a play event.
func (e *SessionEvent) TriggerKind() string {
	return "on_" + e.Type
}

// IsSessionScoped reports whether the event describes a single playback
// session, as opposed to a library batch or server availability change.
func (e *SessionEvent) IsSessionScoped() bool {
	switch e.Type {
	case EventCreated, EventServerDown, EventServerUp:
		return false
	}
	return true
}

// Validate checks the fields required for the event's type.
func (e *SessionEvent) Validate() error {
	if e.ID == uuid.Nil {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if e.Type == "" {
		return &ValidationError{Field: "type", Message: "required"}
	}
	switch e.Type {
	case EventCreated:
		if len(e.Items) == 0 {
			return &ValidationError{Field: "items", Message: "required for created events"}
		}
	case EventServerDown, EventServerUp:
		// Server availability events carry no session payload.
	default:
		if e.SessionKey == "" {
			return &ValidationError{Field: "session_key", Message: "required"}
		}
		if e.MediaType == "" {
			return &ValidationError{Field: "media_type", Message: "required"}
		}
		if e.Title == "" {
			return &ValidationError{Field: "title", Message: "required"}
		}
	}
	return nil
}

// GenerateDedupeKey builds a deterministic key identifying the logical
// event, used as the NATS message ID for the server-side duplicates window
// and by the notifier's once-per-trigger cache.
//
// Session events key on (type, server, session, rating key, session start)
// so a re-published event for the same transition collapses, while the same
// trigger for a different session or a later view does not.
func (e *SessionEvent) GenerateDedupeKey() string {
	switch e.Type {
	case EventCreated:
		first := ""
		if len(e.Items) > 0 {
			first = e.Items[0].RatingKey
		}
		return e.Type + ":" + e.ServerID + ":" + first + ":" + strconv.Itoa(len(e.Items))
	case EventServerDown, EventServerUp:
		return e.Type + ":" + e.ServerID + ":" + e.OccurredAt.UTC().Format("2006-01-02T15:04:05")
	default:
		return e.Type + ":" + e.ServerID + ":" + e.SessionKey + ":" + e.RatingKey + ":" +
			e.StartedAt.UTC().Format("2006-01-02T15:04:05")
	}
}

// SetDedupeKey generates and stores the dedupe key. Call before publishing.
func (e *SessionEvent) SetDedupeKey() {
	if e.DedupeKey == "" {
		e.DedupeKey = e.GenerateDedupeKey()
	}
}

// ValidationError reports a missing or malformed event field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
