// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package eventstream

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/models"
)

func sessionEvent(eventType string) *SessionEvent {
	ev := NewSessionEvent(eventType, "srv-1")
	ev.ServerName = "Test Server"
	ev.SessionKey = "42"
	ev.UserID = 10
	ev.Username = "alice"
	ev.MediaType = models.MediaTypeMovie
	ev.RatingKey = "101"
	ev.Title = "Inception"
	ev.FullTitle = "Inception"
	ev.StartedAt = time.Date(2026, 8, 20, 19, 30, 0, 0, time.UTC)
	return ev
}

func TestSessionEventTopicAndTrigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType   string
		wantTopic   string
		wantTrigger string
	}{
		{EventPlay, "playback.play", "on_play"},
		{EventStop, "playback.stop", "on_stop"},
		{EventPause, "playback.pause", "on_pause"},
		{EventResume, "playback.resume", "on_resume"},
		{EventBuffer, "playback.buffer", "on_buffer"},
		{EventWatched, "playback.watched", "on_watched"},
		{EventConcurrent, "playback.concurrent", "on_concurrent"},
		{EventNewDevice, "playback.newdevice", "on_newdevice"},
		{EventCreated, "playback.created", "on_created"},
		{EventServerDown, "playback.server_down", "on_server_down"},
		{EventServerUp, "playback.server_up", "on_server_up"},
	}

	for _, tt := range tests {
		ev := &SessionEvent{Type: tt.eventType}
		if got := ev.Topic(); got != tt.wantTopic {
			t.Errorf("Topic() for %s = %q, want %q", tt.eventType, got, tt.wantTopic)
		}
		if got := ev.TriggerKind(); got != tt.wantTrigger {
			t.Errorf("TriggerKind() for %s = %q, want %q", tt.eventType, got, tt.wantTrigger)
		}
	}
}

func TestSessionEventIsSessionScoped(t *testing.T) {
	t.Parallel()

	scoped := []string{
		EventPlay, EventStop, EventPause, EventResume,
		EventBuffer, EventWatched, EventConcurrent, EventNewDevice,
	}
	for _, eventType := range scoped {
		ev := &SessionEvent{Type: eventType}
		if !ev.IsSessionScoped() {
			t.Errorf("IsSessionScoped() for %s = false, want true", eventType)
		}
	}

	unscoped := []string{EventCreated, EventServerDown, EventServerUp}
	for _, eventType := range unscoped {
		ev := &SessionEvent{Type: eventType}
		if ev.IsSessionScoped() {
			t.Errorf("IsSessionScoped() for %s = true, want false", eventType)
		}
	}
}

func TestSessionEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*SessionEvent)
		wantField string
	}{
		{
			name:   "valid session event",
			mutate: func(ev *SessionEvent) {},
		},
		{
			name:      "missing id",
			mutate:    func(ev *SessionEvent) { ev.ID = uuid.Nil },
			wantField: "id",
		},
		{
			name:      "missing type",
			mutate:    func(ev *SessionEvent) { ev.Type = "" },
			wantField: "type",
		},
		{
			name:      "missing session key",
			mutate:    func(ev *SessionEvent) { ev.SessionKey = "" },
			wantField: "session_key",
		},
		{
			name:      "missing media type",
			mutate:    func(ev *SessionEvent) { ev.MediaType = "" },
			wantField: "media_type",
		},
		{
			name:      "missing title",
			mutate:    func(ev *SessionEvent) { ev.Title = "" },
			wantField: "title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev := sessionEvent(EventPlay)
			tt.mutate(ev)

			err := ev.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Validate() failed on field %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestSessionEventValidateCreated(t *testing.T) {
	t.Parallel()

	ev := NewSessionEvent(EventCreated, "srv-1")
	if err := ev.Validate(); err == nil {
		t.Error("Validate() accepted a created event without items")
	}

	ev.Items = []models.RecentlyAddedItem{
		{RatingKey: "501", MediaType: models.MediaTypeMovie, Title: "Dune"},
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("Validate() = %v for created event with items", err)
	}
}

func TestSessionEventValidateServerEvents(t *testing.T) {
	t.Parallel()

	// Availability events carry no session payload and validate without it.
	for _, eventType := range []string{EventServerDown, EventServerUp} {
		ev := NewSessionEvent(eventType, "srv-1")
		if err := ev.Validate(); err != nil {
			t.Errorf("Validate() = %v for bare %s event", err, eventType)
		}
	}
}

func TestGenerateDedupeKeyIgnoresEventID(t *testing.T) {
	t.Parallel()

	// A republished copy of the same logical event gets a fresh UUID but
	// must collapse to the same dedupe key.
	first := sessionEvent(EventPlay)
	second := sessionEvent(EventPlay)
	if first.ID == second.ID {
		t.Fatal("expected distinct event IDs")
	}
	if first.GenerateDedupeKey() != second.GenerateDedupeKey() {
		t.Errorf("dedupe keys differ for the same logical event: %q vs %q",
			first.GenerateDedupeKey(), second.GenerateDedupeKey())
	}

	// A later view of the same item starts at a different time.
	later := sessionEvent(EventPlay)
	later.StartedAt = later.StartedAt.Add(2 * time.Hour)
	if first.GenerateDedupeKey() == later.GenerateDedupeKey() {
		t.Error("dedupe key did not distinguish a later view of the same item")
	}

	// Different transitions of one session stay distinct.
	stopped := sessionEvent(EventStop)
	if first.GenerateDedupeKey() == stopped.GenerateDedupeKey() {
		t.Error("dedupe key did not distinguish play from stop")
	}
}

func TestGenerateDedupeKeyByType(t *testing.T) {
	t.Parallel()

	play := sessionEvent(EventPlay)
	if got, want := play.GenerateDedupeKey(), "play:srv-1:42:101:2026-08-20T19:30:00"; got != want {
		t.Errorf("session dedupe key = %q, want %q", got, want)
	}

	created := NewSessionEvent(EventCreated, "srv-1")
	created.Items = []models.RecentlyAddedItem{
		{RatingKey: "501"},
		{RatingKey: "502"},
	}
	if got, want := created.GenerateDedupeKey(), "created:srv-1:501:2"; got != want {
		t.Errorf("created dedupe key = %q, want %q", got, want)
	}

	down := NewSessionEvent(EventServerDown, "srv-1")
	down.OccurredAt = time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	if got, want := down.GenerateDedupeKey(), "server_down:srv-1:2026-08-20T06:00:00"; got != want {
		t.Errorf("server_down dedupe key = %q, want %q", got, want)
	}
}

func TestSetDedupeKeyIdempotent(t *testing.T) {
	t.Parallel()

	ev := sessionEvent(EventPlay)
	ev.SetDedupeKey()
	key := ev.DedupeKey
	if key == "" {
		t.Fatal("SetDedupeKey() left the key empty")
	}

	// Mutating fields after the fact must not change an already-set key.
	ev.RatingKey = "999"
	ev.SetDedupeKey()
	if ev.DedupeKey != key {
		t.Errorf("SetDedupeKey() regenerated an existing key: %q -> %q", key, ev.DedupeKey)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	ev := sessionEvent(EventWatched)
	ev.PercentComplete = 91.5
	ev.ViewOffsetMS = 6588000
	ev.DurationMS = 7200000
	ev.Platform = "Chrome"
	ev.MachineID = "m1"
	ev.SetDedupeKey()

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent() failed: %v", err)
	}

	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() failed: %v", err)
	}

	if got.ID != ev.ID {
		t.Errorf("ID = %s, want %s", got.ID, ev.ID)
	}
	if got.Type != EventWatched {
		t.Errorf("Type = %q, want %q", got.Type, EventWatched)
	}
	if got.DedupeKey != ev.DedupeKey {
		t.Errorf("DedupeKey = %q, want %q", got.DedupeKey, ev.DedupeKey)
	}
	if got.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", got.SchemaVersion, SchemaVersion)
	}
	if got.PercentComplete != 91.5 {
		t.Errorf("PercentComplete = %v, want 91.5", got.PercentComplete)
	}
	if !got.OccurredAt.Equal(ev.OccurredAt) {
		t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, ev.OccurredAt)
	}
	if !got.StartedAt.Equal(ev.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, ev.StartedAt)
	}
}

func TestEncodeEventRejectsInvalid(t *testing.T) {
	t.Parallel()

	ev := sessionEvent(EventPlay)
	ev.Title = ""

	if _, err := EncodeEvent(ev); err == nil {
		t.Error("EncodeEvent() accepted an event without a title")
	} else {
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("EncodeEvent() error = %v, want wrapped *ValidationError", err)
		}
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEvent([]byte("{not json")); err == nil {
		t.Error("DecodeEvent() accepted malformed input")
	}
}

func TestDefaultStreamConfigCoversPoisonQueue(t *testing.T) {
	t.Parallel()

	// JetStream rejects publishes to subjects no stream claims, so the
	// poison queue topic must fall under one of the stream's subjects.
	cfg := DefaultStreamConfig()
	routerCfg := DefaultRouterConfig()

	covered := false
	for _, subject := range cfg.Subjects {
		if subject == "dlq.>" {
			covered = true
		}
	}
	if !covered {
		t.Fatalf("stream subjects %v do not cover the poison queue", cfg.Subjects)
	}
	if routerCfg.PoisonQueueTopic != "dlq.playback" {
		t.Errorf("PoisonQueueTopic = %q, want dlq.playback", routerCfg.PoisonQueueTopic)
	}
}
