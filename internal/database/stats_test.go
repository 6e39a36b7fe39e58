// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"context"
	"testing"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

func findStatList(t *testing.T, stats *models.HomeStats, statID string) models.HomeStatList {
	t.Helper()
	for _, list := range stats.Lists {
		if list.StatID == statID {
			return list
		}
	}
	t.Fatalf("stat list %q not found", statID)
	return models.HomeStatList{}
}

func sumSeries(t *testing.T, series *models.PlaysSeries, name string) int64 {
	t.Helper()
	for _, entry := range series.Series {
		if entry.Name != name {
			continue
		}
		var total int64
		for _, v := range entry.Values {
			total += v
		}
		return total
	}
	t.Fatalf("series %q not found", name)
	return 0
}

func TestGetHomeStats(t *testing.T) {
	db, _ := setupTestDBWithData(t)
	ctx := context.Background()

	stats, err := db.GetHomeStats(ctx, 30, 10, false)
	checkNoError(t, err, "GetHomeStats")

	checkIntEqual(t, stats.Days, 30, "days")
	checkSliceLen(t, stats.Lists, 9, "stat lists")

	wantOrder := []string{
		models.StatTopMovies, models.StatTopTV, models.StatTopMusic,
		models.StatTopUsers, models.StatTopPlatforms, models.StatTopLibraries,
		models.StatPopularMovies, models.StatPopularTV, models.StatMostConcurrent,
	}
	for i, want := range wantOrder {
		checkStringEqual(t, stats.Lists[i].StatID, want, "stat order")
	}

	movies := findStatList(t, stats, models.StatTopMovies)
	checkSliceLen(t, movies.Rows, 3, "top movies")
	for _, row := range movies.Rows {
		checkIntEqual(t, row.TotalPlays, 1, "movie plays")
		checkStringEqual(t, row.MediaType, models.MediaTypeMovie, "movie media type")
	}

	tv := findStatList(t, stats, models.StatTopTV)
	checkSliceLen(t, tv.Rows, 1, "top tv")
	checkStringEqual(t, tv.Rows[0].Title, "The Show", "tv title")
	checkIntEqual(t, tv.Rows[0].TotalPlays, 2, "tv plays")

	music := findStatList(t, stats, models.StatTopMusic)
	checkSliceLen(t, music.Rows, 1, "top music")
	checkStringEqual(t, music.Rows[0].Title, "The Band", "music title")

	users := findStatList(t, stats, models.StatTopUsers)
	checkSliceLen(t, users.Rows, 2, "top users")
	checkStringEqual(t, users.Rows[0].Username, "alice", "busiest user")
	checkIntEqual(t, users.Rows[0].TotalPlays, 4, "alice plays")
	checkInt64Equal(t, users.Rows[0].TotalDuration, 7200, "alice duration")

	platforms := findStatList(t, stats, models.StatTopPlatforms)
	checkSliceLen(t, platforms.Rows, 1, "top platforms")
	checkStringEqual(t, platforms.Rows[0].Platform, "Chrome", "platform")
	checkIntEqual(t, platforms.Rows[0].TotalPlays, 6, "platform plays")

	libraries := findStatList(t, stats, models.StatTopLibraries)
	checkSliceLen(t, libraries.Rows, 3, "top libraries")
	checkStringEqual(t, libraries.Rows[0].LibraryName, "Movies", "busiest library")
	checkIntEqual(t, libraries.Rows[0].TotalPlays, 3, "library plays")

	popular := findStatList(t, stats, models.StatPopularMovies)
	checkSliceLen(t, popular.Rows, 3, "popular movies")
	checkIntEqual(t, popular.Rows[0].UniqueUsers, 1, "unique users")

	concurrent := findStatList(t, stats, models.StatMostConcurrent)
	checkSliceLen(t, concurrent.Rows, 1, "most concurrent")
	checkIntPositive(t, concurrent.Rows[0].TotalPlays, "peak streams")
	if concurrent.Rows[0].PeakAt == nil {
		t.Error("expected peak timestamp")
	}
}

func TestGetHomeStatsGrouping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-2 * time.Hour)
	first := testHistoryRecord(1, "alice", models.MediaTypeMovie, "Dune", base)
	resumed := testHistoryRecord(1, "alice", models.MediaTypeMovie, "Dune", base.Add(40*time.Minute))
	resumed.GroupKey = first.GroupKey
	mustInsertHistory(t, db, first)
	mustInsertHistory(t, db, resumed)

	ungrouped, err := db.GetHomeStats(ctx, 30, 10, false)
	checkNoError(t, err, "ungrouped home stats")
	checkIntEqual(t, findStatList(t, ungrouped, models.StatTopMovies).Rows[0].TotalPlays, 2, "ungrouped plays")

	grouped, err := db.GetHomeStats(ctx, 30, 10, true)
	checkNoError(t, err, "grouped home stats")
	checkIntEqual(t, findStatList(t, grouped, models.StatTopMovies).Rows[0].TotalPlays, 1, "grouped plays")
}

func TestGetHomeStatsEmpty(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.GetHomeStats(context.Background(), 30, 10, false)
	checkNoError(t, err, "GetHomeStats")
	checkSliceLen(t, stats.Lists, 9, "stat lists")
	for _, list := range stats.Lists {
		checkSliceEmpty(t, list.Rows, list.StatID)
	}
}

func TestGetPlaysByDate(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	series, err := db.GetPlaysByDate(context.Background(), 30, false)
	checkNoError(t, err, "GetPlaysByDate")

	checkStringEqual(t, series.GroupedBy, "date", "grouping")
	checkSliceLen(t, series.Categories, 30, "categories")
	checkSliceLen(t, series.Series, 3, "series")
	checkInt64Equal(t, sumSeries(t, series, "Movies"), 3, "movie plays")
	checkInt64Equal(t, sumSeries(t, series, "TV"), 2, "tv plays")
	checkInt64Equal(t, sumSeries(t, series, "Music"), 1, "music plays")

	for _, entry := range series.Series {
		checkSliceLen(t, entry.Values, 30, "series values")
	}
}

func TestGetPlaysByDayOfWeek(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	series, err := db.GetPlaysByDayOfWeek(context.Background(), 30, false)
	checkNoError(t, err, "GetPlaysByDayOfWeek")

	checkStringEqual(t, series.GroupedBy, "day_of_week", "grouping")
	checkSliceLen(t, series.Categories, 7, "categories")
	checkStringEqual(t, series.Categories[0], "Sunday", "first day")

	var total int64
	for _, name := range []string{"Movies", "TV", "Music"} {
		total += sumSeries(t, series, name)
	}
	checkInt64Equal(t, total, 6, "total plays")
}

func TestGetPlaysByHourOfDay(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	series, err := db.GetPlaysByHourOfDay(context.Background(), 30, false)
	checkNoError(t, err, "GetPlaysByHourOfDay")

	checkStringEqual(t, series.GroupedBy, "hour_of_day", "grouping")
	checkSliceLen(t, series.Categories, 24, "categories")
	checkStringEqual(t, series.Categories[0], "00", "first hour")
	checkStringEqual(t, series.Categories[23], "23", "last hour")

	var total int64
	for _, name := range []string{"Movies", "TV", "Music"} {
		total += sumSeries(t, series, name)
	}
	checkInt64Equal(t, total, 6, "total plays")
}

func TestGetPlaysByStreamType(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	series, err := db.GetPlaysByStreamType(context.Background(), 30, false)
	checkNoError(t, err, "GetPlaysByStreamType")

	checkStringEqual(t, series.GroupedBy, "stream_type", "grouping")
	checkSliceLen(t, series.Series, 3, "series")
	checkInt64Equal(t, sumSeries(t, series, "Direct Play"), 6, "direct play")
	checkInt64Equal(t, sumSeries(t, series, "Transcode"), 0, "transcode")
}

func TestGetPlaysPerMonth(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	series, err := db.GetPlaysPerMonth(context.Background(), 12, false)
	checkNoError(t, err, "GetPlaysPerMonth")

	checkStringEqual(t, series.GroupedBy, "month", "grouping")
	checkSliceLen(t, series.Categories, 12, "categories")

	var total int64
	for _, name := range []string{"Movies", "TV", "Music"} {
		total += sumSeries(t, series, name)
	}
	checkInt64Equal(t, total, 6, "total plays")
}

func TestGetUserWatchTimeStats(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	stats, err := db.GetUserWatchTimeStats(context.Background(), 1, false)
	checkNoError(t, err, "GetUserWatchTimeStats")
	checkSliceLen(t, stats, 4, "windows")

	// Within the last day: the movie at base and the track 30 minutes
	// before it. The older movies fall outside.
	checkIntEqual(t, stats[0].QueryDays, 1, "first window")
	checkIntEqual(t, stats[0].TotalPlays, 2, "1-day plays")
	checkInt64Equal(t, stats[0].TotalTime, 3600, "1-day time")

	checkIntEqual(t, stats[1].QueryDays, 7, "second window")
	checkIntEqual(t, stats[1].TotalPlays, 4, "7-day plays")
	checkInt64Equal(t, stats[1].TotalTime, 7200, "7-day time")

	checkIntEqual(t, stats[3].QueryDays, 0, "all-time window")
	checkIntEqual(t, stats[3].TotalPlays, 4, "all-time plays")
}

func TestGetUserPlayerStats(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	players, err := db.GetUserPlayerStats(context.Background(), 1, false)
	checkNoError(t, err, "GetUserPlayerStats")
	checkSliceLen(t, players, 1, "players")
	checkStringEqual(t, players[0].Player, "Plex Web", "player")
	checkStringEqual(t, players[0].Platform, "Chrome", "platform")
	checkIntEqual(t, players[0].TotalPlays, 4, "plays")
	checkInt64Equal(t, players[0].TotalTime, 7200, "time")
}

func TestGetLibraryWatchTimeStats(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	stats, err := db.GetLibraryWatchTimeStats(context.Background(), "1", false)
	checkNoError(t, err, "GetLibraryWatchTimeStats")
	checkSliceLen(t, stats, 4, "windows")

	checkIntEqual(t, stats[3].QueryDays, 0, "all-time window")
	checkIntEqual(t, stats[3].TotalPlays, 3, "all-time plays")
	checkInt64Equal(t, stats[3].TotalTime, 5400, "all-time time")
}

func TestGetLibraryUserStats(t *testing.T) {
	db, _ := setupTestDBWithData(t)

	users, err := db.GetLibraryUserStats(context.Background(), "2", false)
	checkNoError(t, err, "GetLibraryUserStats")
	checkSliceLen(t, users, 1, "users")
	checkIntEqual(t, users[0].UserID, 2, "user id")
	checkStringEqual(t, users[0].Username, "bob", "username")
	checkIntEqual(t, users[0].TotalPlays, 2, "plays")
	checkInt64Equal(t, users[0].TotalTime, 3600, "time")
}
