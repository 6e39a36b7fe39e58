// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

func testWebhookNotifier(name string) *models.Notifier {
	return &models.Notifier{
		Name:        name,
		ChannelType: models.ChannelWebhook,
		Enabled:     true,
		Triggers: map[string]bool{
			models.TriggerPlay: true,
			models.TriggerStop: true,
		},
		Conditions: []models.NotifierCondition{
			{Field: "media_type", Operator: models.OperatorIs, Values: []string{"movie", "episode"}},
		},
		Subjects: map[string]string{
			models.TriggerPlay: "Playback started on {server_name}",
		},
		Config: models.NotifierConfig{
			URL:     "https://hooks.example.com/vigil",
			Method:  "POST",
			Headers: map[string]string{"X-Token": "abc"},
		},
	}
}

func TestCreateNotifierAssignsSequentialIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := testWebhookNotifier("first")
	checkNoError(t, db.CreateNotifier(ctx, first), "create first")
	checkInt64Equal(t, first.ID, 1, "first ID")

	second := testWebhookNotifier("second")
	checkNoError(t, db.CreateNotifier(ctx, second), "create second")
	checkInt64Equal(t, second.ID, 2, "second ID")
}

func TestNotifierRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	n := testWebhookNotifier("roundtrip")
	checkNoError(t, db.CreateNotifier(ctx, n), "create")

	got, err := db.GetNotifier(ctx, n.ID)
	checkNoError(t, err, "get")
	checkStringEqual(t, got.Name, "roundtrip", "name")
	checkStringEqual(t, got.ChannelType, models.ChannelWebhook, "channel type")
	if !reflect.DeepEqual(got.Triggers, n.Triggers) {
		t.Errorf("triggers: got %v, want %v", got.Triggers, n.Triggers)
	}
	if !reflect.DeepEqual(got.Conditions, n.Conditions) {
		t.Errorf("conditions: got %v, want %v", got.Conditions, n.Conditions)
	}
	if !reflect.DeepEqual(got.Subjects, n.Subjects) {
		t.Errorf("subjects: got %v, want %v", got.Subjects, n.Subjects)
	}
	checkStringEqual(t, got.Config.URL, "https://hooks.example.com/vigil", "config url")
	checkStringEqual(t, got.Config.Headers["X-Token"], "abc", "config header")

	// Bodies were never set; they come back nil so BodyFor falls through
	// to the defaults.
	if got.Bodies != nil {
		t.Errorf("bodies: expected nil, got %v", got.Bodies)
	}
	checkStringNotEmpty(t, got.BodyFor(models.TriggerPlay), "default body")
}

func TestGetEnabledNotifiers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enabled := testWebhookNotifier("enabled")
	checkNoError(t, db.CreateNotifier(ctx, enabled), "create enabled")

	disabled := testWebhookNotifier("disabled")
	disabled.Enabled = false
	checkNoError(t, db.CreateNotifier(ctx, disabled), "create disabled")

	all, err := db.GetNotifiers(ctx)
	checkNoError(t, err, "GetNotifiers")
	checkSliceLen(t, all, 2, "all notifiers")

	active, err := db.GetEnabledNotifiers(ctx)
	checkNoError(t, err, "GetEnabledNotifiers")
	checkSliceLen(t, active, 1, "enabled notifiers")
	checkStringEqual(t, active[0].Name, "enabled", "enabled notifier name")
}

func TestUpdateNotifier(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	n := testWebhookNotifier("before")
	checkNoError(t, db.CreateNotifier(ctx, n), "create")

	n.Name = "after"
	n.Enabled = false
	n.Triggers[models.TriggerWatched] = true
	checkNoError(t, db.UpdateNotifier(ctx, n), "update")

	got, err := db.GetNotifier(ctx, n.ID)
	checkNoError(t, err, "get after update")
	checkStringEqual(t, got.Name, "after", "updated name")
	if got.Enabled {
		t.Error("enabled: expected false after update")
	}
	if !got.Triggers[models.TriggerWatched] {
		t.Error("triggers: expected on_watched enabled after update")
	}

	missing := testWebhookNotifier("missing")
	missing.ID = 9999
	checkErrorIs(t, db.UpdateNotifier(ctx, missing), ErrNotFound, "update missing notifier")
}

func TestDeleteNotifier(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	n := testWebhookNotifier("doomed")
	checkNoError(t, db.CreateNotifier(ctx, n), "create")
	checkNoError(t, db.DeleteNotifier(ctx, n.ID), "delete")

	_, err := db.GetNotifier(ctx, n.ID)
	checkErrorIs(t, err, ErrNotFound, "get after delete")

	checkErrorIs(t, db.DeleteNotifier(ctx, n.ID), ErrNotFound, "double delete")
}

func TestNotifyLogInsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	n := testWebhookNotifier("logger")
	checkNoError(t, db.CreateNotifier(ctx, n), "create notifier")

	older := &models.NotifyLogEntry{
		NotifierID: n.ID,
		Trigger:    models.TriggerPlay,
		SessionKey: "sess-1",
		UserID:     1,
		Subject:    "Playback started",
		Body:       "alice started playing Alpha.",
		Success:    true,
		SentAt:     now.Add(-time.Hour),
	}
	failed := &models.NotifyLogEntry{
		NotifierID: n.ID,
		Trigger:    models.TriggerStop,
		SessionKey: "sess-1",
		UserID:     1,
		Subject:    "Playback stopped",
		Body:       "alice stopped Alpha.",
		Success:    false,
		Error:      "connection refused",
		SentAt:     now,
	}
	checkNoError(t, db.InsertNotifyLog(ctx, older), "insert older entry")
	checkNoError(t, db.InsertNotifyLog(ctx, failed), "insert failed entry")

	entries, err := db.GetNotifyLog(ctx, 10)
	checkNoError(t, err, "GetNotifyLog")
	checkSliceLen(t, entries, 2, "log entries")
	checkStringEqual(t, entries[0].Trigger, models.TriggerStop, "newest entry first")
	checkStringEqual(t, entries[0].Error, "connection refused", "error message")
	if entries[0].Success {
		t.Error("success: expected false for failed entry")
	}

	limited, err := db.GetNotifyLog(ctx, 1)
	checkNoError(t, err, "limited GetNotifyLog")
	checkSliceLen(t, limited, 1, "limited entries")
}
