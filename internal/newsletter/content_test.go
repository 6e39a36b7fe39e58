// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package newsletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

// fakeStore serves canned recently-added items, applying the same
// filters the real query does.
type fakeStore struct {
	items    []models.RecentlyAddedItem
	err      error
	sections []string
}

func (f *fakeStore) GetRecentlyAdded(_ context.Context, since time.Time, sectionID string, _ int) ([]models.RecentlyAddedItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sections = append(f.sections, sectionID)
	var out []models.RecentlyAddedItem
	for _, item := range f.items {
		if !since.IsZero() && item.AddedAt.Before(since) {
			continue
		}
		if sectionID != "" && item.SectionID != sectionID {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func addedItem(ratingKey, mediaType, title string, addedAt time.Time) models.RecentlyAddedItem {
	return models.RecentlyAddedItem{
		RatingKey: ratingKey,
		MediaType: mediaType,
		Title:     title,
		AddedAt:   addedAt,
	}
}

func TestResolveGroupsContent(t *testing.T) {
	now := time.Now()
	recent := now.Add(-24 * time.Hour)
	older := now.Add(-48 * time.Hour)

	movie1 := addedItem("m1", models.MediaTypeMovie, "Dune", recent)
	movie1.Year = 2021
	movie1.LibraryName = "Movies"
	movie1.SectionID = "1"
	movie2 := addedItem("m2", models.MediaTypeMovie, "Heat", older)
	movie2.Year = 1995

	ep1 := addedItem("e1", models.MediaTypeEpisode, "Good News About Hell", older)
	ep1.GrandparentTitle = "Severance"
	ep1.LibraryName = "TV Shows"
	ep2 := addedItem("e2", models.MediaTypeEpisode, "Half Loop", recent)
	ep2.GrandparentTitle = "Severance"
	ep3 := addedItem("e3", models.MediaTypeEpisode, "Pilot", now.Add(-time.Hour))
	ep3.GrandparentTitle = "The Rehearsal"

	tr1 := addedItem("t1", models.MediaTypeTrack, "Speed of Light", recent)
	tr1.GrandparentTitle = "Daft Punk"
	tr1.ParentTitle = "Discovery"
	tr2 := addedItem("t2", models.MediaTypeTrack, "Aerodynamic", recent)
	tr2.GrandparentTitle = "Daft Punk"
	tr2.ParentTitle = "Discovery"

	clip := addedItem("c1", models.MediaTypeClip, "Trailer", recent)

	store := &fakeStore{items: []models.RecentlyAddedItem{movie1, movie2, ep1, ep2, ep3, tr1, tr2, clip}}
	resolver := NewContentResolver(store, "Home")

	schedule := &models.NewsletterSchedule{TimeFrame: 7}
	data, err := resolver.Resolve(context.Background(), schedule)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if data.ServerName != "Home" {
		t.Errorf("ServerName = %q", data.ServerName)
	}
	if data.DateRangeDisplay == "" {
		t.Error("DateRangeDisplay is empty")
	}
	if len(data.Movies) != 2 {
		t.Fatalf("movies = %d, want 2", len(data.Movies))
	}
	if data.Movies[0].Title != "Dune" || data.Movies[0].Year != 2021 {
		t.Errorf("first movie = %+v", data.Movies[0])
	}

	if len(data.Shows) != 2 {
		t.Fatalf("shows = %d, want 2", len(data.Shows))
	}
	// Sorted by most recent episode, so The Rehearsal comes first.
	if data.Shows[0].Title != "The Rehearsal" || data.Shows[0].EpisodeCount != 1 {
		t.Errorf("first show = %+v", data.Shows[0])
	}
	if data.Shows[1].Title != "Severance" || data.Shows[1].EpisodeCount != 2 {
		t.Errorf("second show = %+v", data.Shows[1])
	}

	if len(data.Albums) != 1 {
		t.Fatalf("albums = %d, want 1", len(data.Albums))
	}
	album := data.Albums[0]
	if album.Artist != "Daft Punk" || album.Album != "Discovery" || album.TrackCount != 2 {
		t.Errorf("album = %+v", album)
	}

	// Clips do not count; 2 movies + 3 episodes + 2 tracks.
	if data.TotalItems != 7 {
		t.Errorf("TotalItems = %d, want 7", data.TotalItems)
	}
}

func TestResolveSectionFilter(t *testing.T) {
	now := time.Now()
	inOne := addedItem("m1", models.MediaTypeMovie, "Dune", now.Add(-2*time.Hour))
	inOne.SectionID = "1"
	inThree := addedItem("m2", models.MediaTypeMovie, "Heat", now.Add(-time.Hour))
	inThree.SectionID = "3"
	inNine := addedItem("m3", models.MediaTypeMovie, "Alien", now.Add(-time.Hour))
	inNine.SectionID = "9"

	store := &fakeStore{items: []models.RecentlyAddedItem{inOne, inThree, inNine}}
	resolver := NewContentResolver(store, "Home")

	schedule := &models.NewsletterSchedule{TimeFrame: 7, SectionIDs: []string{"1", "3"}}
	data, err := resolver.Resolve(context.Background(), schedule)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(store.sections) != 2 || store.sections[0] != "1" || store.sections[1] != "3" {
		t.Errorf("queried sections = %v", store.sections)
	}
	if len(data.Movies) != 2 {
		t.Fatalf("movies = %d, want 2", len(data.Movies))
	}
	// Merged newest first across sections.
	if data.Movies[0].Title != "Heat" {
		t.Errorf("first movie = %q, want Heat", data.Movies[0].Title)
	}
}

func TestResolveDefaultsTimeFrame(t *testing.T) {
	old := addedItem("m1", models.MediaTypeMovie, "Heat", time.Now().AddDate(0, 0, -10))
	fresh := addedItem("m2", models.MediaTypeMovie, "Dune", time.Now().AddDate(0, 0, -2))

	store := &fakeStore{items: []models.RecentlyAddedItem{old, fresh}}
	resolver := NewContentResolver(store, "Home")

	data, err := resolver.Resolve(context.Background(), &models.NewsletterSchedule{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if data.TotalItems != 1 {
		t.Errorf("TotalItems = %d, want 1 (seven day default window)", data.TotalItems)
	}
}

func TestResolveStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("disk on fire")}
	resolver := NewContentResolver(store, "Home")

	if _, err := resolver.Resolve(context.Background(), &models.NewsletterSchedule{TimeFrame: 7}); err == nil {
		t.Error("expected error from store")
	}
}

func TestFormatDateRange(t *testing.T) {
	tests := []struct {
		start, end time.Time
		want       string
	}{
		{
			time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
			"August 13 - 20, 2026",
		},
		{
			time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
			"Aug 28 - Sep 4, 2026",
		},
		{
			time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2027, 1, 4, 0, 0, 0, 0, time.UTC),
			"Dec 28, 2026 - Jan 4, 2027",
		},
	}
	for _, tt := range tests {
		if got := formatDateRange(tt.start, tt.end); got != tt.want {
			t.Errorf("formatDateRange = %q, want %q", got, tt.want)
		}
	}
}
