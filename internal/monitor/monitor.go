// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/pms"
)

// ErrSessionNotFound reports a terminate request for a session the
// monitor is not tracking.
var ErrSessionNotFound = errors.New("session not found")

// Known-device cache bounds. Entries expire so a device that drops out
// of history retention can fire again.
const (
	knownDeviceCapacity = 5000
	knownDeviceTTL      = 24 * time.Hour
)

// EventPublisher pushes session events onto the event stream. The
// interface keeps the monitor free of the nats build tag; with no
// publisher configured events are dropped and only history is written.
type EventPublisher interface {
	// PublishSessionEvent publishes an event to the stream. Errors are
	// logged by the caller but never block polling.
	PublishSessionEvent(ctx context.Context, event *eventstream.SessionEvent) error
}

// Broadcaster pushes live updates to connected WebSocket clients.
type Broadcaster interface {
	BroadcastActivity(activity models.Activity)
	BroadcastTransition(kind string, session models.ActiveSession)
	BroadcastRecentlyAdded(items []models.RecentlyAddedItem)
}

// Status is the monitor's runtime health snapshot.
type Status struct {
	Running             bool       `json:"running"`
	ServerReachable     bool       `json:"server_reachable"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	TrackedSessions     int        `json:"tracked_sessions"`
}

// Monitor polls the media server for active sessions and drives the
// Tracker, persisting history on stops and handing events to the
// configured publisher and broadcaster.
type Monitor struct {
	client  pms.ClientInterface
	db      *database.DB
	cfg     config.MonitorConfig
	tracker *Tracker

	serverID   string
	serverName string

	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	activity  models.Activity
	failCount int
	down      bool
	lastErr   string
	lastErrAt time.Time

	publisher   EventPublisher
	broadcaster Broadcaster

	wg        sync.WaitGroup
	publishWg sync.WaitGroup

	knownDevices *cache.LRUCache
}

// New creates a Monitor for the given server. serverID is the machine
// identifier reported by /identity; it stamps history records and
// events so multi-server data stays attributable.
func New(client pms.ClientInterface, db *database.DB, cfg config.MonitorConfig, serverID, serverName string) *Monitor {
	return &Monitor{
		client: client,
		db:     db,
		cfg:    cfg,
		tracker: NewTracker(TrackerConfig{
			WatchedPercentMovie:   cfg.WatchedPercentMovie,
			WatchedPercentEpisode: cfg.WatchedPercentEpisode,
			WatchedPercentTrack:   cfg.WatchedPercentTrack,
			ConcurrentThreshold:   cfg.ConcurrentThreshold,
			SeenSessionTTL:        cfg.SeenSessionTTL,
		}),
		serverID:     serverID,
		serverName:   serverName,
		stopChan:     make(chan struct{}),
		knownDevices: cache.NewLRUCache(knownDeviceCapacity, knownDeviceTTL),
	}
}

// SetEventPublisher wires the optional event stream publisher. Passing
// nil disables publishing.
func (m *Monitor) SetEventPublisher(publisher EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = publisher
}

// SetBroadcaster wires the optional WebSocket broadcaster.
func (m *Monitor) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = b
}

// Start begins the polling loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	logging.Info().
		Dur("interval", m.cfg.PollInterval).
		Str("server_id", m.serverID).
		Msg("Starting session monitor")

	m.wg.Add(1)
	go m.pollLoop(ctx)

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (m *Monitor) Serve(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	m.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer so supervisor logs name this service.
func (m *Monitor) String() string {
	return "session-monitor"
}

// Stop gracefully stops the polling loop and waits for in-flight event
// publishes to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.publishWg.Wait()
	logging.Info().Msg("[monitor] Session monitor stopped")
}

// IsRunning returns whether the monitor is active.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Activity returns the latest activity snapshot.
func (m *Monitor) Activity() models.Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activity
}

// Status returns the monitor's runtime health.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErrAt *time.Time
	if !m.lastErrAt.IsZero() {
		at := m.lastErrAt
		lastErrAt = &at
	}
	return Status{
		Running:             m.running,
		ServerReachable:     m.failCount == 0,
		ConsecutiveFailures: m.failCount,
		LastError:           m.lastErr,
		LastErrorAt:         lastErrAt,
		TrackedSessions:     m.tracker.Len(),
	}
}

// TerminateSession asks the server to stop the stream behind the given
// session key. The server wants the player's session ID, so the key is
// resolved against the tracked sessions first.
func (m *Monitor) TerminateSession(ctx context.Context, sessionKey, reason string) error {
	act := m.Activity()
	for i := range act.Sessions {
		s := &act.Sessions[i]
		if s.SessionKey != sessionKey {
			continue
		}
		id := s.SessionID
		if id == "" {
			id = s.SessionKey
		}
		return m.client.TerminateSession(ctx, id, reason)
	}
	return fmt.Errorf("terminate %s: %w", sessionKey, ErrSessionNotFound)
}

// pollLoop is the main polling loop. The sweep ticker finalizes
// sessions that outlived the stale threshold and evicts expired cache
// entries.
func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	m.poll(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	sweepTicker := time.NewTicker(m.staleAfter() / 2)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[monitor] Context canceled, stopping")
			return
		case <-m.stopChan:
			logging.Info().Msg("[monitor] Stop signal received")
			return
		case <-ticker.C:
			m.poll(ctx)
		case <-sweepTicker.C:
			m.sweep(ctx)
		}
	}
}

// staleAfter is how long a session may go unseen before the sweep
// finalizes it. Ten poll intervals tolerates transient failures without
// leaking sessions across long outages.
func (m *Monitor) staleAfter() time.Duration {
	d := 10 * m.cfg.PollInterval
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

// poll fetches the session list and feeds it to the tracker. Failed
// polls never reach the tracker: a vanished session only means stopped
// when the poll itself succeeded.
func (m *Monitor) poll(ctx context.Context) {
	start := time.Now()
	wired, err := m.client.GetSessions(ctx)
	metrics.RecordPollCycle(time.Since(start), err)
	if err != nil {
		m.pollFailed(ctx, err)
		return
	}
	m.pollSucceeded(ctx)

	now := time.Now().UTC()
	sessions := make([]models.ActiveSession, 0, len(wired))
	for i := range wired {
		sessions = append(sessions, sessionFromWire(&wired[i]))
	}

	transitions := m.tracker.Apply(now, sessions)
	m.processTransitions(ctx, transitions)
	m.refreshActivity(now, true)
}

// sweep finalizes stale sessions and refreshes the activity snapshot
// when anything changed.
func (m *Monitor) sweep(ctx context.Context) {
	transitions := m.tracker.SweepStale(time.Now().UTC(), m.staleAfter())
	if len(transitions) == 0 {
		return
	}
	logging.Info().Int("count", len(transitions)).Msg("Finalized stale sessions")
	m.processTransitions(ctx, transitions)

	m.mu.RLock()
	reachable := m.failCount == 0
	m.mu.RUnlock()
	m.refreshActivity(time.Now().UTC(), reachable)
}

// pollFailed tracks consecutive failures and fires server_down once the
// threshold is reached.
func (m *Monitor) pollFailed(ctx context.Context, err error) {
	m.mu.Lock()
	m.failCount++
	m.lastErr = err.Error()
	m.lastErrAt = time.Now().UTC()
	fireDown := !m.down && m.cfg.ServerDownThreshold > 0 && m.failCount >= m.cfg.ServerDownThreshold
	if fireDown {
		m.down = true
	}
	failCount := m.failCount
	m.mu.Unlock()

	metrics.SetServerReachable(false)
	logging.Warn().Err(err).Int("consecutive_failures", failCount).Msg("Session poll failed")

	if fireDown {
		logging.Error().Int("consecutive_failures", failCount).Msg("Server considered down")
		ev := eventstream.NewSessionEvent(eventstream.EventServerDown, m.serverID)
		ev.ServerName = m.serverName
		ev.Error = err.Error()
		ev.SetDedupeKey()
		m.publishEvent(ctx, ev)
	}

	m.refreshActivity(time.Now().UTC(), false)
}

// pollSucceeded resets the failure streak and fires server_up when the
// server comes back after being considered down.
func (m *Monitor) pollSucceeded(ctx context.Context) {
	m.mu.Lock()
	fireUp := m.down
	m.down = false
	m.failCount = 0
	m.mu.Unlock()

	metrics.SetServerReachable(true)

	if fireUp {
		logging.Info().Msg("Server reachable again")
		ev := eventstream.NewSessionEvent(eventstream.EventServerUp, m.serverID)
		ev.ServerName = m.serverName
		ev.SetDedupeKey()
		m.publishEvent(ctx, ev)
	}
}

// processTransitions routes tracker output: stops persist history, plays
// upsert the user and may flag a new device, everything except progress
// publishes an event, and every transition reaches the broadcaster.
func (m *Monitor) processTransitions(ctx context.Context, transitions []Transition) {
	for i := range transitions {
		tr := &transitions[i]
		metrics.RecordTransition(tr.Kind)

		switch tr.Kind {
		case eventstream.EventPlay:
			m.onPlay(ctx, tr)
		case eventstream.EventStop:
			m.onStop(ctx, tr)
		case TransitionProgress:
			// WebSocket and metrics only
		default:
			m.publishEvent(ctx, eventFromTransition(tr.Kind, tr, m.serverID, m.serverName))
		}

		m.mu.RLock()
		broadcaster := m.broadcaster
		m.mu.RUnlock()
		if broadcaster != nil {
			broadcaster.BroadcastTransition(tr.Kind, tr.Session)
		}
	}
}

// onPlay records the user, publishes the play event and checks whether
// the device is one the user has never streamed from before.
func (m *Monitor) onPlay(ctx context.Context, tr *Transition) {
	s := &tr.Session
	if s.UserID != 0 {
		user := &models.User{
			UserID:   s.UserID,
			Username: s.Username,
			Thumb:    s.UserThumb,
		}
		if err := m.db.UpsertUser(ctx, user); err != nil {
			logging.Warn().Err(err).Int("user_id", s.UserID).Msg("User upsert failed")
		}
	}

	newDevice := m.isNewDevice(ctx, s)

	m.publishEvent(ctx, eventFromTransition(tr.Kind, tr, m.serverID, m.serverName))

	if newDevice {
		metrics.RecordTransition(eventstream.EventNewDevice)
		m.publishEvent(ctx, eventFromTransition(eventstream.EventNewDevice, tr, m.serverID, m.serverName))
	}
}

// onStop persists the finished history record and publishes the stop
// event. The record gets its server and group identity here, where the
// database is in reach.
func (m *Monitor) onStop(ctx context.Context, tr *Transition) {
	rec := tr.Record
	if rec == nil {
		return
	}
	rec.ServerID = m.serverID
	rec.GroupKey = m.groupKeyFor(ctx, rec)

	if err := m.db.InsertHistory(ctx, rec); err != nil {
		metrics.RecordHistoryWrite("error")
		logging.Error().Err(err).Str("session_key", rec.SessionKey).Msg("History insert failed")
	} else {
		metrics.RecordHistoryWrite("inserted")
		logging.Debug().
			Str("session_key", rec.SessionKey).
			Str("user", rec.Username).
			Str("title", rec.FullTitle).
			Int64("play_duration", rec.PlayDuration).
			Msg("History record written")
	}

	m.publishEvent(ctx, eventFromTransition(tr.Kind, tr, m.serverID, m.serverName))
}

// groupKeyFor links the record to an earlier view of the same item when
// the user resumed within the grouping window; otherwise the record
// anchors its own group.
func (m *Monitor) groupKeyFor(ctx context.Context, rec *models.HistoryRecord) string {
	if m.cfg.GroupingWindow <= 0 || rec.RatingKey == nil {
		return rec.ID.String()
	}

	key, err := m.db.GetRecentGroupKey(ctx, rec.UserID, *rec.RatingKey, rec.StartedAt.Add(-m.cfg.GroupingWindow))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logging.Warn().Err(err).Str("session_key", rec.SessionKey).Msg("Group key lookup failed")
		}
		return rec.ID.String()
	}
	return key
}

// isNewDevice reports whether the user has no history from this device.
// The cache keeps the steady state to one database lookup per
// (user, device) per TTL.
func (m *Monitor) isNewDevice(ctx context.Context, s *models.ActiveSession) bool {
	if s.UserID == 0 || s.MachineID == "" {
		return false
	}
	key := strconv.Itoa(s.UserID) + ":" + s.MachineID
	if m.knownDevices.Contains(key) {
		return false
	}

	seen, err := m.db.HasSeenDevice(ctx, s.UserID, s.MachineID)
	if err != nil {
		logging.Warn().Err(err).Int("user_id", s.UserID).Msg("Device lookup failed")
		return false
	}
	m.knownDevices.Add(key, time.Now())
	return !seen
}

// refreshActivity rebuilds the published activity snapshot and pushes it
// to gauges and WebSocket clients.
func (m *Monitor) refreshActivity(now time.Time, reachable bool) {
	activity := m.tracker.Snapshot()
	activity.ServerReachable = reachable
	activity.PolledAt = now

	m.mu.Lock()
	m.activity = activity
	broadcaster := m.broadcaster
	m.mu.Unlock()

	metrics.UpdateActivityGauges(
		activity.StreamCount,
		activity.StreamCountTranscode,
		activity.LANBandwidthKbps,
		activity.WANBandwidthKbps,
	)
	if broadcaster != nil {
		broadcaster.BroadcastActivity(activity)
	}
}

// publishEvent hands an event to the configured publisher without
// blocking the poll loop. Failures are logged, not propagated; durable
// retry is the outbox's job on the publisher side.
func (m *Monitor) publishEvent(ctx context.Context, ev *eventstream.SessionEvent) {
	m.mu.RLock()
	publisher := m.publisher
	m.mu.RUnlock()

	if publisher == nil {
		return
	}

	m.publishWg.Add(1)
	go func() {
		defer m.publishWg.Done()
		if err := publisher.PublishSessionEvent(ctx, ev); err != nil {
			logging.Warn().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("type", ev.Type).
				Msg("Event publish failed")
		}
	}()
}
