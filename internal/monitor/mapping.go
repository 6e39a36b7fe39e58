// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package monitor

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/pms"
)

// sessionFromWire flattens one /status/sessions entry into the model the
// tracker works with. Derived fields (state, decision, location,
// bandwidth) go through the wire type's helpers so their defaults live
// in one place.
func sessionFromWire(s *pms.Session) models.ActiveSession {
	as := models.ActiveSession{
		SessionKey: s.SessionKey,

		UserID:   s.UserID(),
		Username: s.Username(),

		MediaType:            s.Type,
		RatingKey:            s.RatingKey,
		ParentRatingKey:      s.ParentRatingKey,
		GrandparentRatingKey: s.GrandparentRatingKey,
		Title:                s.Title,
		ParentTitle:          s.ParentTitle,
		GrandparentTitle:     s.GrandparentTitle,
		MediaIndex:           s.Index,
		ParentMediaIndex:     s.ParentIndex,
		Year:                 s.Year,
		LibrarySectionID:     s.LibrarySectionID,
		LibraryName:          s.LibrarySectionTitle,
		ContentRating:        s.ContentRating,
		Guid:                 s.GUID,
		Thumb:                s.Thumb,

		TranscodeDecision: s.Decision(),
		LocationType:      s.Location(),
		BandwidthKbps:     s.BandwidthKbps(),

		State:        s.State(),
		ViewOffsetMS: s.ViewOffset,
		DurationMS:   s.Duration,
	}

	if s.User != nil {
		as.UserThumb = s.User.Thumb
	}
	if p := s.Player; p != nil {
		as.Platform = p.Platform
		as.Product = p.Product
		as.Player = p.Title
		as.Device = p.Device
		as.MachineID = p.MachineID
		as.IPAddress = p.Address
		as.Local = p.Local
		as.Secure = p.Secure
		as.Relayed = p.Relayed
	}
	if s.Session != nil {
		as.SessionID = s.Session.ID
	}

	if tc := s.TranscodeSession; tc != nil {
		as.VideoDecision = decisionOrDirect(tc.VideoDecision)
		as.AudioDecision = decisionOrDirect(tc.AudioDecision)
		as.Container = tc.Container
		as.VideoCodec = tc.VideoCodec
		as.AudioCodec = tc.AudioCodec
		as.AudioChannels = tc.AudioChannels
		as.TranscodeProgress = tc.Progress
		as.TranscodeSpeed = tc.Speed
		as.TranscodeHWDecode = tc.TranscodeHwDecoding != ""
		as.TranscodeHWEncode = tc.TranscodeHwEncoding != ""
	} else {
		as.VideoDecision = models.DecisionDirectPlay
		as.AudioDecision = models.DecisionDirectPlay
	}

	// The source media fills whatever the transcode block left open.
	if len(s.Media) > 0 {
		m := &s.Media[0]
		if as.Container == "" {
			as.Container = m.Container
		}
		if as.VideoCodec == "" {
			as.VideoCodec = m.VideoCodec
		}
		if as.AudioCodec == "" {
			as.AudioCodec = m.AudioCodec
		}
		if as.AudioChannels == 0 {
			as.AudioChannels = m.AudioChannels
		}
		as.VideoResolution = m.VideoResolution
	}

	return as
}

func decisionOrDirect(decision string) string {
	if decision == "" {
		return models.DecisionDirectPlay
	}
	return decision
}

// historyFromTracked builds the history record for a session closing at
// stoppedAt. The caller must have closed any open pause span first; the
// monitor fills ServerID and GroupKey before the insert.
func historyFromTracked(ts *trackedSession, stoppedAt time.Time) *models.HistoryRecord {
	s := &ts.session
	stopped := stoppedAt

	play := stoppedAt.Sub(s.StartedAt) - ts.pausedTotal
	if play < 0 {
		play = 0
	}

	return &models.HistoryRecord{
		ID:         uuid.New(),
		SessionKey: s.SessionKey,
		StartedAt:  s.StartedAt,
		StoppedAt:  &stopped,

		UserID:    s.UserID,
		Username:  s.Username,
		IPAddress: strPtr(s.IPAddress),

		MediaType:            s.MediaType,
		RatingKey:            strPtr(s.RatingKey),
		ParentRatingKey:      strPtr(s.ParentRatingKey),
		GrandparentRatingKey: strPtr(s.GrandparentRatingKey),
		Title:                s.Title,
		ParentTitle:          strPtr(s.ParentTitle),
		GrandparentTitle:     strPtr(s.GrandparentTitle),
		FullTitle:            fullTitleFor(s.MediaType, s.Title, s.GrandparentTitle),
		MediaIndex:           intPtr(s.MediaIndex),
		ParentMediaIndex:     intPtr(s.ParentMediaIndex),
		Year:                 intPtr(s.Year),
		Guid:                 strPtr(s.Guid),
		SectionID:            strPtr(s.LibrarySectionID),
		LibraryName:          strPtr(s.LibraryName),
		ContentRating:        strPtr(s.ContentRating),
		Thumb:                strPtr(s.Thumb),

		Platform:     strPtr(s.Platform),
		Product:      strPtr(s.Product),
		Player:       strPtr(s.Player),
		Device:       strPtr(s.Device),
		MachineID:    strPtr(s.MachineID),
		LocationType: strPtr(s.LocationType),
		Local:        boolPtr(s.Local),
		Secure:       boolPtr(s.Secure),
		Relayed:      boolPtr(s.Relayed),

		TranscodeDecision: strPtr(s.TranscodeDecision),
		VideoDecision:     strPtr(s.VideoDecision),
		AudioDecision:     strPtr(s.AudioDecision),
		Container:         strPtr(s.Container),
		VideoCodec:        strPtr(s.VideoCodec),
		VideoResolution:   strPtr(s.VideoResolution),
		AudioCodec:        strPtr(s.AudioCodec),
		AudioChannels:     intPtr(s.AudioChannels),
		SubtitleCodec:     strPtr(s.SubtitleCodec),
		QualityProfile:    strPtr(s.QualityProfile),
		BandwidthKbps:     int64Ptr(s.BandwidthKbps),

		ViewOffsetMS:    ts.maxViewOffset,
		DurationMS:      s.DurationMS,
		PercentComplete: percentComplete(ts.maxViewOffset, s.DurationMS),
		PausedCounter:   int64(ts.pausedTotal.Seconds()),
		PlayDuration:    int64(play.Seconds()),
		WatchedStatus:   ts.watchedFired,
	}
}

// eventFromTransition flattens a transition into a stream event of the
// given kind. Kind is usually tr.Kind, but new-device events reuse the
// play transition's session context under their own type. Stop
// transitions take their final accounting from the attached record;
// everything else derives play time from the snapshot.
func eventFromTransition(kind string, tr *Transition, serverID, serverName string) *eventstream.SessionEvent {
	s := &tr.Session

	ev := eventstream.NewSessionEvent(kind, serverID)
	ev.ServerName = serverName

	ev.SessionKey = s.SessionKey
	ev.UserID = s.UserID
	ev.Username = s.Username
	ev.IPAddress = s.IPAddress

	ev.MediaType = s.MediaType
	ev.RatingKey = s.RatingKey
	ev.ParentRatingKey = s.ParentRatingKey
	ev.GrandparentRatingKey = s.GrandparentRatingKey
	ev.Title = s.Title
	ev.ParentTitle = s.ParentTitle
	ev.GrandparentTitle = s.GrandparentTitle
	ev.FullTitle = fullTitleFor(s.MediaType, s.Title, s.GrandparentTitle)
	ev.MediaIndex = s.MediaIndex
	ev.ParentMediaIndex = s.ParentMediaIndex
	ev.Year = s.Year
	ev.SectionID = s.LibrarySectionID
	ev.LibraryName = s.LibraryName
	ev.ContentRating = s.ContentRating
	ev.Thumb = s.Thumb

	ev.Platform = s.Platform
	ev.Product = s.Product
	ev.Player = s.Player
	ev.Device = s.Device
	ev.MachineID = s.MachineID
	ev.Local = s.Local
	ev.Secure = s.Secure
	ev.Relayed = s.Relayed
	ev.LocationType = s.LocationType

	ev.TranscodeDecision = s.TranscodeDecision
	ev.VideoDecision = s.VideoDecision
	ev.AudioDecision = s.AudioDecision
	ev.Container = s.Container
	ev.VideoCodec = s.VideoCodec
	ev.VideoResolution = s.VideoResolution
	ev.AudioCodec = s.AudioCodec
	ev.AudioChannels = s.AudioChannels
	ev.QualityProfile = s.QualityProfile
	ev.BandwidthKbps = s.BandwidthKbps

	ev.StartedAt = s.StartedAt
	ev.ViewOffsetMS = s.ViewOffsetMS
	ev.DurationMS = s.DurationMS
	ev.PercentComplete = s.PercentComplete

	if tr.Record != nil {
		ev.PlayDuration = tr.Record.PlayDuration
		ev.PausedCounter = tr.Record.PausedCounter
	} else {
		ev.PausedCounter = int64(s.PausedDuration.Seconds())
		if !s.StartedAt.IsZero() {
			if d := ev.OccurredAt.Sub(s.StartedAt) - s.PausedDuration; d > 0 {
				ev.PlayDuration = int64(d.Seconds())
			}
		}
	}
	ev.Streams = tr.Streams

	if raw, err := json.Marshal(s); err == nil {
		ev.RawSnapshot = raw
	}
	ev.SetDedupeKey()
	return ev
}

// createdEvent batches settled recently-added items into one event. The
// first item provides the media context the notifier formats from.
func createdEvent(serverID, serverName string, items []models.RecentlyAddedItem) *eventstream.SessionEvent {
	ev := eventstream.NewSessionEvent(eventstream.EventCreated, serverID)
	ev.ServerName = serverName
	ev.Items = items

	if len(items) > 0 {
		first := &items[0]
		ev.MediaType = first.MediaType
		ev.RatingKey = first.RatingKey
		ev.Title = first.Title
		ev.ParentTitle = first.ParentTitle
		ev.GrandparentTitle = first.GrandparentTitle
		ev.FullTitle = first.FullTitle()
		ev.MediaIndex = first.MediaIndex
		ev.ParentMediaIndex = first.ParentMediaIndex
		ev.Year = first.Year
		ev.SectionID = first.SectionID
		ev.LibraryName = first.LibraryName
		ev.Thumb = first.Thumb
	}
	ev.SetDedupeKey()
	return ev
}

// recentlyAddedFromWire converts a library listing entry into a
// recently-added row. DetectedAt is when the watcher first saw the item,
// not when the server imported it.
func recentlyAddedFromWire(m *pms.LibraryMetadata, detectedAt time.Time) models.RecentlyAddedItem {
	item := models.RecentlyAddedItem{
		RatingKey:        m.RatingKey,
		MediaType:        m.Type,
		Title:            m.Title,
		ParentTitle:      m.ParentTitle,
		GrandparentTitle: m.GrandparentTitle,
		MediaIndex:       m.Index,
		ParentMediaIndex: m.ParentIndex,
		Year:             m.Year,
		LibraryName:      m.LibrarySectionTitle,
		Summary:          m.Summary,
		Thumb:            m.Thumb,
		DetectedAt:       detectedAt,
	}
	if m.LibrarySectionID != 0 {
		item.SectionID = strconv.Itoa(m.LibrarySectionID)
	}
	if m.AddedAt > 0 {
		item.AddedAt = time.Unix(m.AddedAt, 0).UTC()
	}
	return item
}

// fullTitleFor renders the display title the way history rows and
// notifications show it: "Show - Episode" and "Artist - Track" for
// children, the bare title otherwise.
func fullTitleFor(mediaType, title, grandparentTitle string) string {
	switch mediaType {
	case models.MediaTypeEpisode, models.MediaTypeTrack:
		if grandparentTitle != "" {
			return grandparentTitle + " - " + title
		}
	}
	return title
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func int64Ptr(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func boolPtr(b bool) *bool {
	return &b
}
