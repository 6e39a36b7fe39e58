// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"testing"
	"time"

	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/models"
)

func TestBuildParams(t *testing.T) {
	ev := eventstream.NewSessionEvent(eventstream.EventPlay, "srv-1")
	ev.ServerName = "Test Server"
	ev.OccurredAt = time.Date(2026, 8, 20, 19, 30, 45, 0, time.UTC)
	ev.SessionKey = "42"
	ev.UserID = 10
	ev.Username = "alice"
	ev.IPAddress = "203.0.113.7"
	ev.MediaType = models.MediaTypeEpisode
	ev.RatingKey = "101"
	ev.Title = "Chapter One"
	ev.GrandparentTitle = "Severance"
	ev.FullTitle = "Severance - Chapter One"
	ev.MediaIndex = 1
	ev.ParentMediaIndex = 2
	ev.Year = 2026
	ev.LibraryName = "TV Shows"
	ev.Player = "Plex Web"
	ev.Secure = true
	ev.TranscodeDecision = "transcode"
	ev.ViewOffsetMS = 300000
	ev.DurationMS = 3600000
	ev.PercentComplete = 8.3
	ev.BandwidthKbps = 4000

	p := BuildParams(ev)

	checks := map[string]string{
		"action":             "play",
		"trigger":            "on_play",
		"server_name":        "Test Server",
		"datestamp":          "2026-08-20",
		"timestamp":          "19:30:45",
		"user":               "alice",
		"user_id":            "10",
		"ip_address":         "203.0.113.7",
		"media_type":         "episode",
		"title":              "Chapter One",
		"show_name":          "Severance",
		"season_num":         "2",
		"episode_num":        "1",
		"year":               "2026",
		"library_name":       "TV Shows",
		"player":             "Plex Web",
		"secure":             "true",
		"local":              "false",
		"transcode_decision": "transcode",
		"view_offset":        "5",
		"duration":           "60",
		"progress_percent":   "8",
		"bandwidth":          "4000",
	}
	for key, want := range checks {
		if got := p[key]; got != want {
			t.Errorf("param %q = %q, want %q", key, got, want)
		}
	}

	// Zero-valued numerics render empty rather than "0" so templates
	// using them read cleanly for media without the field.
	if p["play_duration"] != "" {
		t.Errorf("play_duration = %q, want empty for an unfinished session", p["play_duration"])
	}
	if p["audio_channels"] != "" {
		t.Errorf("audio_channels = %q, want empty when unset", p["audio_channels"])
	}
}

func TestBuildParamsRecentlyAdded(t *testing.T) {
	ev := eventstream.NewSessionEvent(eventstream.EventCreated, "srv-1")
	ev.ServerName = "Test Server"
	ev.LibraryName = "Movies"
	ev.Items = []models.RecentlyAddedItem{
		{RatingKey: "501", MediaType: models.MediaTypeMovie, Title: "Dune"},
		{RatingKey: "502", MediaType: models.MediaTypeMovie, Title: "Arrival"},
	}

	p := BuildParams(ev)
	if p["items_count"] != "2" {
		t.Errorf("items_count = %q, want 2", p["items_count"])
	}
	if p["trigger"] != "on_created" {
		t.Errorf("trigger = %q", p["trigger"])
	}
}

func TestBuildParamsServerDown(t *testing.T) {
	ev := eventstream.NewSessionEvent(eventstream.EventServerDown, "srv-1")
	ev.ServerName = "Test Server"
	ev.Error = "connection refused"

	p := BuildParams(ev)
	if p["error"] != "connection refused" {
		t.Errorf("error = %q", p["error"])
	}
	if p["items_count"] != "" {
		t.Errorf("items_count = %q, want empty", p["items_count"])
	}
}
