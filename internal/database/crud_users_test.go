// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"testing"

	"github.com/mpellar/vigil/internal/models"
)

func TestUpsertUserInsertAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	checkNoError(t, db.UpsertUser(ctx, &models.User{
		UserID: 42, Username: "dana", FriendlyName: "Dana", IsHome: true,
	}), "initial upsert")

	got, err := db.GetUser(ctx, 42)
	checkNoError(t, err, "GetUser after insert")
	checkStringEqual(t, got.Username, "dana", "username")
	checkStringEqual(t, got.FriendlyName, "Dana", "friendly name")
	if !got.IsHome {
		t.Error("is_home: expected true")
	}

	checkNoError(t, db.UpsertUser(ctx, &models.User{
		UserID: 42, Username: "dana", FriendlyName: "Dana R.", IsAdmin: true,
	}), "second upsert")

	updated, err := db.GetUser(ctx, 42)
	checkNoError(t, err, "GetUser after update")
	checkStringEqual(t, updated.FriendlyName, "Dana R.", "updated friendly name")
	if !updated.IsAdmin {
		t.Error("is_admin: expected true after update")
	}
	if !updated.CreatedAt.Equal(got.CreatedAt) {
		t.Errorf("created_at changed on update: %v -> %v", got.CreatedAt, updated.CreatedAt)
	}
}

func TestGetUserNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetUser(context.Background(), 9999)
	checkErrorIs(t, err, ErrNotFound, "GetUser on missing ID")
}

func TestGetUsersAggregates(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	users, err := db.GetUsers(context.Background())
	checkNoError(t, err, "GetUsers")
	checkSliceLen(t, users, 2, "users")

	// Ordered by username: alice then bob.
	alice, bob := users[0], users[1]
	checkStringEqual(t, alice.Username, "alice", "first user")
	checkStringEqual(t, bob.Username, "bob", "second user")

	checkIntEqual(t, alice.TotalPlays, 4, "alice total plays")
	checkInt64Equal(t, alice.TotalTime, 4*1800, "alice total time")
	checkStringEqual(t, alice.LastPlayed, "Alpha", "alice last played")
	if alice.LastSeen == nil {
		t.Error("alice last_seen: expected non-nil")
	}

	checkIntEqual(t, bob.TotalPlays, 2, "bob total plays")
	checkStringEqual(t, bob.LastPlayed, "The Show - Episode 1", "bob last played")
}

func TestGetUsersWithoutHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	checkNoError(t, db.UpsertUser(ctx, &models.User{UserID: 5, Username: "idle"}), "upsert")

	users, err := db.GetUsers(ctx)
	checkNoError(t, err, "GetUsers")
	checkSliceLen(t, users, 1, "users")
	checkIntEqual(t, users[0].TotalPlays, 0, "idle total plays")
	checkInt64Equal(t, users[0].TotalTime, 0, "idle total time")
	checkStringEqual(t, users[0].LastPlayed, "", "idle last played")
	if users[0].LastSeen != nil {
		t.Errorf("idle last_seen: expected nil, got %v", users[0].LastSeen)
	}
}

func TestGetUsersEmpty(t *testing.T) {
	db := setupTestDB(t)

	users, err := db.GetUsers(context.Background())
	checkNoError(t, err, "GetUsers on empty database")
	checkSliceEmpty(t, users, "users")
}
