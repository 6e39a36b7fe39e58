// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package pms

import "strconv"

// Wire types for the Plex Media Server REST API. Field sets follow the
// JSON the server actually emits; optional fields are tagged omitempty
// so round-trips in tests stay faithful.

// SessionsResponse is the top-level response from /status/sessions.
type SessionsResponse struct {
	MediaContainer SessionsContainer `json:"MediaContainer"`
}

// SessionsContainer wraps the active sessions array.
type SessionsContainer struct {
	Size     int       `json:"size"`
	Metadata []Session `json:"Metadata,omitempty"`
}

// Session is a single active playback session.
type Session struct {
	// Session identification
	SessionKey string `json:"sessionKey"`
	Key        string `json:"key"`

	// Content identification
	RatingKey            string `json:"ratingKey"`
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	GUID                 string `json:"guid,omitempty"`
	Type                 string `json:"type"` // "movie", "episode", "track", "clip"
	Title                string `json:"title"`
	GrandparentTitle     string `json:"grandparentTitle,omitempty"` // Show or artist name
	ParentTitle          string `json:"parentTitle,omitempty"`      // Season or album name
	Index                int    `json:"index,omitempty"`            // Episode or track number
	ParentIndex          int    `json:"parentIndex,omitempty"`      // Season or disc number
	Year                 int    `json:"year,omitempty"`
	ContentRating        string `json:"contentRating,omitempty"`
	Thumb                string `json:"thumb,omitempty"`
	Art                  string `json:"art,omitempty"`

	// Library placement
	LibrarySectionID    string `json:"librarySectionID,omitempty"`
	LibrarySectionTitle string `json:"librarySectionTitle,omitempty"`

	// Playback progress
	ViewOffset int64 `json:"viewOffset"` // Milliseconds
	Duration   int64 `json:"duration"`   // Milliseconds
	AddedAt    int64 `json:"addedAt,omitempty"`

	User             *SessionUser      `json:"User,omitempty"`
	Player           *Player           `json:"Player,omitempty"`
	Session          *SessionBandwidth `json:"Session,omitempty"`
	TranscodeSession *TranscodeSession `json:"TranscodeSession,omitempty"`
	Media            []Media           `json:"Media,omitempty"`
}

// SessionUser is the account watching a session.
type SessionUser struct {
	ID    string `json:"id"` // PMS emits the id as a string here
	Title string `json:"title"`
	Thumb string `json:"thumb,omitempty"`
}

// Player is the device playing a session.
type Player struct {
	Address         string `json:"address"`
	Device          string `json:"device,omitempty"`
	MachineID       string `json:"machineIdentifier"`
	Model           string `json:"model,omitempty"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	Product         string `json:"product,omitempty"`
	Profile         string `json:"profile,omitempty"`
	State           string `json:"state"` // "playing", "paused", "buffering"
	Title           string `json:"title"`
	Version         string `json:"version,omitempty"`
	Local           bool   `json:"local"`
	Relayed         bool   `json:"relayed"`
	Secure          bool   `json:"secure"`
}

// SessionBandwidth is the per-session bandwidth block.
type SessionBandwidth struct {
	ID        string `json:"id"`
	Bandwidth int64  `json:"bandwidth"` // Kbps
	Location  string `json:"location"`  // "lan" or "wan"
}

// TranscodeSession holds active transcode details. Absent on direct play.
type TranscodeSession struct {
	Key                  string  `json:"key"`
	Throttled            bool    `json:"throttled"`
	Complete             bool    `json:"complete"`
	Progress             float64 `json:"progress"`
	Speed                float64 `json:"speed"`
	Size                 int64   `json:"size,omitempty"`
	Duration             int64   `json:"duration,omitempty"`
	Context              string  `json:"context,omitempty"`
	SourceVideoCodec     string  `json:"sourceVideoCodec,omitempty"`
	SourceAudioCodec     string  `json:"sourceAudioCodec,omitempty"`
	VideoDecision        string  `json:"videoDecision,omitempty"` // "transcode", "copy", "direct play"
	AudioDecision        string  `json:"audioDecision,omitempty"`
	SubtitleDecision     string  `json:"subtitleDecision,omitempty"`
	Protocol             string  `json:"protocol,omitempty"`
	Container            string  `json:"container,omitempty"`
	VideoCodec           string  `json:"videoCodec,omitempty"`
	AudioCodec           string  `json:"audioCodec,omitempty"`
	AudioChannels        int     `json:"audioChannels,omitempty"`
	Width                int     `json:"width,omitempty"`
	Height               int     `json:"height,omitempty"`
	TranscodeHwRequested bool    `json:"transcodeHwRequested,omitempty"`
	TranscodeHwDecoding  string  `json:"transcodeHwDecoding,omitempty"`
	TranscodeHwEncoding  string  `json:"transcodeHwEncoding,omitempty"`
}

// Media is a media version with its quality info.
type Media struct {
	ID              int     `json:"id"`
	Duration        int64   `json:"duration,omitempty"`
	Bitrate         int     `json:"bitrate,omitempty"` // Kbps
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	AspectRatio     float64 `json:"aspectRatio,omitempty"`
	AudioChannels   int     `json:"audioChannels,omitempty"`
	AudioCodec      string  `json:"audioCodec,omitempty"`
	VideoCodec      string  `json:"videoCodec,omitempty"`
	VideoResolution string  `json:"videoResolution,omitempty"` // "4k", "1080", "720", "sd"
	Container       string  `json:"container,omitempty"`
	VideoFrameRate  string  `json:"videoFrameRate,omitempty"`
	VideoProfile    string  `json:"videoProfile,omitempty"`

	Part []MediaPart `json:"Part,omitempty"`
}

// MediaPart is one file part of a media version.
type MediaPart struct {
	ID        int    `json:"id"`
	Key       string `json:"key,omitempty"`
	Duration  int64  `json:"duration,omitempty"`
	File      string `json:"file,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Container string `json:"container,omitempty"`
	Decision  string `json:"decision,omitempty"` // "directplay", "transcode"
}

// State returns the player state for a session, defaulting to "playing"
// when the server omits the Player block.
func (s *Session) State() string {
	if s.Player == nil || s.Player.State == "" {
		return "playing"
	}
	return s.Player.State
}

// UserID parses the session user's ID. The server emits it as a string
// in session payloads; a missing or malformed ID returns 0.
func (s *Session) UserID() int {
	if s.User == nil {
		return 0
	}
	id, err := strconv.Atoi(s.User.ID)
	if err != nil {
		return 0
	}
	return id
}

// Username returns the session user's display name, or empty.
func (s *Session) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Title
}

// IsTranscoding reports whether the video stream is being transcoded.
func (s *Session) IsTranscoding() bool {
	return s.TranscodeSession != nil && s.TranscodeSession.VideoDecision == "transcode"
}

// Decision classifies the session's overall stream decision.
func (s *Session) Decision() string {
	if s.TranscodeSession == nil {
		return "direct play"
	}
	switch {
	case s.TranscodeSession.VideoDecision == "transcode" || s.TranscodeSession.AudioDecision == "transcode":
		return "transcode"
	case s.TranscodeSession.VideoDecision == "copy" || s.TranscodeSession.AudioDecision == "copy":
		return "copy"
	default:
		return "direct play"
	}
}

// Location returns "lan" or "wan" for the session, preferring the
// bandwidth block and falling back to the player's local flag.
func (s *Session) Location() string {
	if s.Session != nil && s.Session.Location != "" {
		return s.Session.Location
	}
	if s.Player != nil && s.Player.Local {
		return "lan"
	}
	return "wan"
}

// BandwidthKbps returns the session's reported bandwidth, or the first
// media bitrate when the bandwidth block is absent.
func (s *Session) BandwidthKbps() int64 {
	if s.Session != nil && s.Session.Bandwidth > 0 {
		return s.Session.Bandwidth
	}
	if len(s.Media) > 0 {
		return int64(s.Media[0].Bitrate)
	}
	return 0
}

// IdentityResponse is the response from /identity.
type IdentityResponse struct {
	MediaContainer IdentityContainer `json:"MediaContainer"`
}

// IdentityContainer wraps server identity information.
type IdentityContainer struct {
	MachineIdentifier string `json:"machineIdentifier"`
	Version           string `json:"version"`
	Claimed           bool   `json:"claimed,omitempty"`
}

// ServerInfoResponse is the response from the server root endpoint.
type ServerInfoResponse struct {
	MediaContainer ServerInfoContainer `json:"MediaContainer"`
}

// ServerInfoContainer carries the capability summary from /.
type ServerInfoContainer struct {
	FriendlyName      string `json:"friendlyName"`
	MachineIdentifier string `json:"machineIdentifier"`
	Version           string `json:"version"`
	Platform          string `json:"platform,omitempty"`
	PlatformVersion   string `json:"platformVersion,omitempty"`
	MyPlexUsername    string `json:"myPlexUsername,omitempty"`
	UpdatedAt         int64  `json:"updatedAt,omitempty"`
}

// LibrarySectionsResponse is the response from /library/sections.
type LibrarySectionsResponse struct {
	MediaContainer LibrarySectionsContainer `json:"MediaContainer"`
}

// LibrarySectionsContainer wraps the list of library sections.
type LibrarySectionsContainer struct {
	Size      int              `json:"size"`
	Directory []LibrarySection `json:"Directory,omitempty"`
}

// LibrarySection is one library (Movies, TV Shows, Music, ...).
type LibrarySection struct {
	Key        string `json:"key"` // Section ID as used in URLs
	UUID       string `json:"uuid,omitempty"`
	Title      string `json:"title"`
	Type       string `json:"type"` // "movie", "show", "artist", "photo"
	Agent      string `json:"agent,omitempty"`
	Scanner    string `json:"scanner,omitempty"`
	Language   string `json:"language,omitempty"`
	Refreshing bool   `json:"refreshing,omitempty"`
	Hidden     int    `json:"hidden,omitempty"`
	CreatedAt  int64  `json:"createdAt,omitempty"`
	UpdatedAt  int64  `json:"updatedAt,omitempty"`
	ScannedAt  int64  `json:"scannedAt,omitempty"`
}

// AccountsResponse is the response from /accounts.
type AccountsResponse struct {
	MediaContainer AccountsContainer `json:"MediaContainer"`
}

// AccountsContainer wraps the server-local account list.
type AccountsContainer struct {
	Size    int       `json:"size"`
	Account []Account `json:"Account,omitempty"`
}

// Account is a server-local user account.
type Account struct {
	ID    int    `json:"id"`
	Key   string `json:"key,omitempty"`
	Name  string `json:"name"`
	Thumb string `json:"thumb,omitempty"`
}

// LibraryResponse is the response shape shared by /library/recentlyAdded,
// /library/sections/{id}/recentlyAdded and /library/metadata/{key}.
type LibraryResponse struct {
	MediaContainer LibraryContainer `json:"MediaContainer"`
}

// LibraryContainer wraps library content items.
type LibraryContainer struct {
	Size                int               `json:"size"`
	TotalSize           int               `json:"totalSize,omitempty"`
	Offset              int               `json:"offset,omitempty"`
	LibrarySectionID    int               `json:"librarySectionID,omitempty"`
	LibrarySectionTitle string            `json:"librarySectionTitle,omitempty"`
	Metadata            []LibraryMetadata `json:"Metadata,omitempty"`
}

// LibraryMetadata is a media item in a library listing.
type LibraryMetadata struct {
	RatingKey            string `json:"ratingKey"`
	Key                  string `json:"key"`
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	GUID                 string `json:"guid,omitempty"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	ParentTitle          string `json:"parentTitle,omitempty"`
	GrandparentTitle     string `json:"grandparentTitle,omitempty"`
	Summary              string `json:"summary,omitempty"`
	Index                int    `json:"index,omitempty"`
	ParentIndex          int    `json:"parentIndex,omitempty"`
	Year                 int    `json:"year,omitempty"`
	Thumb                string `json:"thumb,omitempty"`
	Art                  string `json:"art,omitempty"`
	Duration             int64  `json:"duration,omitempty"`
	AddedAt              int64  `json:"addedAt,omitempty"`
	UpdatedAt            int64  `json:"updatedAt,omitempty"`
	LibrarySectionID     int    `json:"librarySectionID,omitempty"`
	LibrarySectionTitle  string `json:"librarySectionTitle,omitempty"`

	Media []Media `json:"Media,omitempty"`
}
