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
	"github.com/mpellar/vigil/internal/models"
)

// refreshInterval is how often user and library metadata is re-pulled.
// Session starts already upsert the watching user, so this only has to
// catch renames, new accounts and library changes.
const refreshInterval = time.Hour

// Refresher keeps the users and library_sections tables in step with
// the server's accounts and sections.
type Refresher struct {
	monitor *Monitor

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRefresher creates the metadata refresher.
func NewRefresher(m *Monitor) *Refresher {
	return &Refresher{
		monitor:  m,
		stopChan: make(chan struct{}),
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	logging.Info().Dur("interval", refreshInterval).Msg("Starting metadata refresher")

	r.wg.Add(1)
	go r.refreshLoop(ctx)

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (r *Refresher) Serve(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	r.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer so supervisor logs name this service.
func (r *Refresher) String() string {
	return "metadata-refresher"
}

// Stop gracefully stops the refresh loop.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
	logging.Info().Msg("[refresher] Metadata refresher stopped")
}

// IsRunning returns whether the refresher is active.
func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Refresher) refreshLoop(ctx context.Context) {
	defer r.wg.Done()

	r.refresh(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[refresher] Context canceled, stopping")
			return
		case <-r.stopChan:
			logging.Info().Msg("[refresher] Stop signal received")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh runs one users-then-libraries pass. Either half failing leaves
// the other's results in place; the next cycle retries.
func (r *Refresher) refresh(ctx context.Context) {
	r.refreshUsers(ctx)
	r.refreshLibraries(ctx)
}

func (r *Refresher) refreshUsers(ctx context.Context) {
	accounts, err := r.monitor.client.GetAccounts(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Account refresh failed")
		return
	}

	var count int
	for i := range accounts {
		a := &accounts[i]
		// Account 0 is the server's built-in anonymous entry.
		if a.ID == 0 {
			continue
		}
		user := &models.User{
			UserID:   a.ID,
			Username: a.Name,
			Thumb:    a.Thumb,
		}
		if err := r.monitor.db.UpsertUser(ctx, user); err != nil {
			logging.Warn().Err(err).Int("user_id", a.ID).Msg("User refresh upsert failed")
			continue
		}
		count++
	}
	logging.Debug().Int("count", count).Msg("Users refreshed")
}

func (r *Refresher) refreshLibraries(ctx context.Context) {
	sections, err := r.monitor.client.GetLibrarySections(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Library refresh failed")
		return
	}

	var count int
	for i := range sections {
		s := &sections[i]
		if s.Key == "" {
			continue
		}

		// The sections listing has no item counts; those come from a
		// zero-size page per section. A failed count skips the section
		// so the upsert cannot clobber a known count with zero.
		itemCount, err := r.monitor.client.GetSectionItemCount(ctx, s.Key)
		if err != nil {
			logging.Warn().Err(err).Str("section_id", s.Key).Msg("Section item count failed")
			continue
		}

		section := &models.LibrarySection{
			SectionID:   s.Key,
			Name:        s.Title,
			SectionType: s.Type,
			Agent:       s.Agent,
			ItemCount:   itemCount,
		}
		if err := r.monitor.db.UpsertLibrarySection(ctx, section); err != nil {
			logging.Warn().Err(err).Str("section_id", s.Key).Msg("Library upsert failed")
			continue
		}
		count++
	}
	logging.Debug().Int("count", count).Msg("Libraries refreshed")
}
