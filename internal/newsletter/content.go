// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package newsletter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

// fetchLimit caps the rows pulled per section for one newsletter run.
// The time frame bounds the result in practice; the cap guards against
// a bulk library import flooding a single issue.
const fetchLimit = 500

// ContentStore is the database surface the resolver needs.
type ContentStore interface {
	GetRecentlyAdded(ctx context.Context, since time.Time, sectionID string, limit int) ([]models.RecentlyAddedItem, error)
}

// ContentData is the root object handed to newsletter templates.
type ContentData struct {
	ServerName       string
	GeneratedAt      time.Time
	DateRangeStart   time.Time
	DateRangeEnd     time.Time
	DateRangeDisplay string

	Movies []MediaItem
	Shows  []ShowGroup
	Albums []AlbumGroup

	// TotalItems counts the underlying library items: movies, episodes,
	// and tracks, before grouping.
	TotalItems int
}

// MediaItem is one movie row for template rendering.
type MediaItem struct {
	Title       string
	Year        int
	LibraryName string
	Summary     string
	Thumb       string
	AddedAt     time.Time
}

// ShowGroup aggregates the episodes added for one show.
type ShowGroup struct {
	Title        string
	EpisodeCount int
	LibraryName  string
	LatestAdded  time.Time
}

// AlbumGroup aggregates the tracks added for one album.
type AlbumGroup struct {
	Artist      string
	Album       string
	TrackCount  int
	LibraryName string
	LatestAdded time.Time
}

// ContentResolver assembles the recently-added content for one
// newsletter issue from the watcher's table.
type ContentResolver struct {
	store      ContentStore
	serverName string
}

// NewContentResolver creates a resolver bound to a store.
func NewContentResolver(store ContentStore, serverName string) *ContentResolver {
	return &ContentResolver{store: store, serverName: serverName}
}

// Resolve gathers the items added within the schedule's time frame,
// restricted to its library sections when any are set, and groups
// episodes by show and tracks by album. Clips are skipped.
func (r *ContentResolver) Resolve(ctx context.Context, schedule *models.NewsletterSchedule) (*ContentData, error) {
	now := time.Now()
	days := schedule.TimeFrame
	if days <= 0 {
		days = 7
	}
	since := now.AddDate(0, 0, -days)

	data := &ContentData{
		ServerName:       r.serverName,
		GeneratedAt:      now,
		DateRangeStart:   since,
		DateRangeEnd:     now,
		DateRangeDisplay: formatDateRange(since, now),
	}

	items, err := r.fetch(ctx, since, schedule.SectionIDs)
	if err != nil {
		return nil, err
	}

	shows := make(map[string]*ShowGroup)
	albums := make(map[string]*AlbumGroup)
	for i := range items {
		item := &items[i]
		switch item.MediaType {
		case models.MediaTypeMovie:
			data.Movies = append(data.Movies, MediaItem{
				Title:       item.Title,
				Year:        item.Year,
				LibraryName: item.LibraryName,
				Summary:     item.Summary,
				Thumb:       item.Thumb,
				AddedAt:     item.AddedAt,
			})
			data.TotalItems++
		case models.MediaTypeEpisode:
			show := item.GrandparentTitle
			if show == "" {
				show = item.Title
			}
			g, ok := shows[show]
			if !ok {
				g = &ShowGroup{Title: show, LibraryName: item.LibraryName}
				shows[show] = g
			}
			g.EpisodeCount++
			if item.AddedAt.After(g.LatestAdded) {
				g.LatestAdded = item.AddedAt
			}
			data.TotalItems++
		case models.MediaTypeTrack:
			key := item.GrandparentTitle + "\x00" + item.ParentTitle
			a, ok := albums[key]
			if !ok {
				a = &AlbumGroup{
					Artist:      item.GrandparentTitle,
					Album:       item.ParentTitle,
					LibraryName: item.LibraryName,
				}
				albums[key] = a
			}
			a.TrackCount++
			if item.AddedAt.After(a.LatestAdded) {
				a.LatestAdded = item.AddedAt
			}
			data.TotalItems++
		}
	}

	for _, g := range shows {
		data.Shows = append(data.Shows, *g)
	}
	sort.Slice(data.Shows, func(i, j int) bool {
		return data.Shows[i].LatestAdded.After(data.Shows[j].LatestAdded)
	})
	for _, a := range albums {
		data.Albums = append(data.Albums, *a)
	}
	sort.Slice(data.Albums, func(i, j int) bool {
		return data.Albums[i].LatestAdded.After(data.Albums[j].LatestAdded)
	})

	return data, nil
}

// fetch pulls items per configured section, or across all sections when
// the schedule has no filter. Results from multiple sections are merged
// newest first.
func (r *ContentResolver) fetch(ctx context.Context, since time.Time, sectionIDs []string) ([]models.RecentlyAddedItem, error) {
	if len(sectionIDs) == 0 {
		items, err := r.store.GetRecentlyAdded(ctx, since, "", fetchLimit)
		if err != nil {
			return nil, fmt.Errorf("load recently added: %w", err)
		}
		return items, nil
	}

	var merged []models.RecentlyAddedItem
	for _, sectionID := range sectionIDs {
		items, err := r.store.GetRecentlyAdded(ctx, since, sectionID, fetchLimit)
		if err != nil {
			return nil, fmt.Errorf("load recently added for section %s: %w", sectionID, err)
		}
		merged = append(merged, items...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].AddedAt.After(merged[j].AddedAt)
	})
	return merged, nil
}

// formatDateRange renders the covered period for subjects and headers.
func formatDateRange(start, end time.Time) string {
	switch {
	case start.Year() != end.Year():
		return fmt.Sprintf("%s %d, %d - %s %d, %d",
			start.Month().String()[:3], start.Day(), start.Year(),
			end.Month().String()[:3], end.Day(), end.Year())
	case start.Month() != end.Month():
		return fmt.Sprintf("%s %d - %s %d, %d",
			start.Month().String()[:3], start.Day(),
			end.Month().String()[:3], end.Day(), end.Year())
	default:
		return fmt.Sprintf("%s %d - %d, %d",
			start.Month().String(), start.Day(), end.Day(), end.Year())
	}
}
