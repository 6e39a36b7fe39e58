// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// recentlyAddedFetchLimit bounds the recentlyAdded feed per check. The
// feed is newest-first, so anything past the limit was already seen on
// an earlier cycle.
const recentlyAddedFetchLimit = 50

// RecentlyAddedWatcher diffs the server's recentlyAdded feed into the
// recently_added table and, once items have settled, batches them into
// created events. The settle delay exists because servers import seasons
// episode by episode: notifying on first sight would fire once per file
// instead of once per batch.
type RecentlyAddedWatcher struct {
	monitor *Monitor

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRecentlyAddedWatcher creates the watcher. It shares the monitor's
// server identity, publisher and broadcaster wiring.
func NewRecentlyAddedWatcher(m *Monitor) *RecentlyAddedWatcher {
	return &RecentlyAddedWatcher{
		monitor:  m,
		stopChan: make(chan struct{}),
	}
}

// Start begins the watch loop.
func (w *RecentlyAddedWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	logging.Info().
		Dur("interval", w.monitor.cfg.RecentlyAddedInterval).
		Dur("settle", w.monitor.cfg.RecentlyAddedSettle).
		Msg("Starting recently-added watcher")

	w.wg.Add(1)
	go w.watchLoop(ctx)

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (w *RecentlyAddedWatcher) Serve(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	w.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer so supervisor logs name this service.
func (w *RecentlyAddedWatcher) String() string {
	return "recently-added-watcher"
}

// Stop gracefully stops the watch loop.
func (w *RecentlyAddedWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	logging.Info().Msg("[recently-added] Watcher stopped")
}

// IsRunning returns whether the watcher is active.
func (w *RecentlyAddedWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *RecentlyAddedWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	w.check(ctx)

	ticker := time.NewTicker(w.monitor.cfg.RecentlyAddedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[recently-added] Context canceled, stopping")
			return
		case <-w.stopChan:
			logging.Info().Msg("[recently-added] Stop signal received")
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one detect-then-notify cycle.
func (w *RecentlyAddedWatcher) check(ctx context.Context) {
	start := time.Now()
	w.detect(ctx)
	w.notify(ctx)
	metrics.RecentlyAddedCheckDuration.Observe(time.Since(start).Seconds())
}

// detect pulls the feed and records items not seen before. Known rating
// keys are silent no-ops at the insert.
func (w *RecentlyAddedWatcher) detect(ctx context.Context) {
	entries, err := w.monitor.client.GetRecentlyAdded(ctx, recentlyAddedFetchLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("Recently-added fetch failed")
		return
	}

	now := time.Now().UTC()
	var added int
	for i := range entries {
		item := recentlyAddedFromWire(&entries[i], now)
		if item.RatingKey == "" {
			continue
		}
		wasNew, err := w.monitor.db.InsertRecentlyAdded(ctx, &item)
		if err != nil {
			logging.Warn().Err(err).Str("rating_key", item.RatingKey).Msg("Recently-added insert failed")
			continue
		}
		if wasNew {
			added++
			logging.Debug().
				Str("rating_key", item.RatingKey).
				Str("title", item.FullTitle()).
				Str("library", item.LibraryName).
				Msg("New library item detected")
		}
	}

	if added > 0 {
		metrics.RecentlyAddedSeen.Add(float64(added))
		logging.Info().Int("count", added).Msg("Detected new library items")
	}
}

// notify publishes created events for items whose settle delay has
// passed, one event per batch, and marks them notified. Marking happens
// regardless of publisher wiring so disabled notification setups do not
// accumulate a backlog.
func (w *RecentlyAddedWatcher) notify(ctx context.Context) {
	settledBefore := time.Now().UTC().Add(-w.monitor.cfg.RecentlyAddedSettle)
	items, err := w.monitor.db.GetUnnotifiedRecentlyAdded(ctx, settledBefore)
	if err != nil {
		logging.Warn().Err(err).Msg("Recently-added settle query failed")
		return
	}
	if len(items) == 0 {
		return
	}

	keys := make([]string, 0, len(items))
	for i := range items {
		keys = append(keys, items[i].RatingKey)
	}

	batches := batchRecentlyAdded(items)
	for _, batch := range batches {
		ev := createdEvent(w.monitor.serverID, w.monitor.serverName, batch.items)
		w.monitor.publishEvent(ctx, ev)
		logging.Info().
			Str("library", batch.items[0].LibraryName).
			Str("title", batch.items[0].FullTitle()).
			Int("items", len(batch.items)).
			Msg("Recently-added batch announced")
	}

	if err := w.monitor.db.MarkRecentlyAddedNotified(ctx, keys); err != nil {
		logging.Error().Err(err).Int("count", len(keys)).Msg("Recently-added mark failed")
		return
	}

	w.monitor.mu.RLock()
	broadcaster := w.monitor.broadcaster
	w.monitor.mu.RUnlock()
	if broadcaster != nil {
		broadcaster.BroadcastRecentlyAdded(items)
	}
}

type addedBatch struct {
	key   string
	items []models.RecentlyAddedItem
}

// batchRecentlyAdded groups settled items into one announcement each:
// episodes and tracks batch under their show or artist per section,
// everything else stands alone. Input order is preserved within and
// across batches.
func batchRecentlyAdded(items []models.RecentlyAddedItem) []addedBatch {
	index := make(map[string]int)
	var batches []addedBatch

	for _, item := range items {
		key := item.SectionID + ":" + item.RatingKey
		switch item.MediaType {
		case models.MediaTypeEpisode, models.MediaTypeTrack:
			if item.GrandparentTitle != "" {
				key = item.SectionID + ":" + item.GrandparentTitle
			}
		}

		if i, ok := index[key]; ok {
			batches[i].items = append(batches[i].items, item)
			continue
		}
		index[key] = len(batches)
		batches = append(batches, addedBatch{key: key, items: []models.RecentlyAddedItem{item}})
	}
	return batches
}
