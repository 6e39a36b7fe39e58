// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/models"
)

// TransitionProgress marks a view offset advance on a playing session.
// Progress transitions feed the WebSocket hub and metrics only; they are
// never published to the event stream.
const TransitionProgress = "progress"

// Defaults applied when the corresponding TrackerConfig field is zero.
const (
	defaultWatchedPercent      = 85
	defaultWatchedPercentTrack = 50
	defaultSeenSessionTTL      = 24 * time.Hour
	defaultBufferDebounce      = 90 * time.Second

	seenCacheCapacity   = 10000
	bufferCacheCapacity = 1000
)

// TrackerConfig tunes the session state machine.
type TrackerConfig struct {
	// Watched thresholds are integer percentages of the item's duration,
	// compared against the session's high-water view offset.
	WatchedPercentMovie   int
	WatchedPercentEpisode int
	WatchedPercentTrack   int

	// ConcurrentThreshold is the per-user stream count at or above which
	// a concurrent transition fires, once per breach episode. Zero
	// disables the check.
	ConcurrentThreshold int

	// BufferDebounce suppresses repeat buffer transitions for the same
	// session inside the window.
	BufferDebounce time.Duration

	// SeenSessionTTL bounds how long adopted session keys are remembered
	// so a restart does not replay play transitions for sessions that
	// were already announced.
	SeenSessionTTL time.Duration
}

func (c *TrackerConfig) watchedPercentFor(mediaType string) int {
	switch mediaType {
	case models.MediaTypeEpisode:
		return c.WatchedPercentEpisode
	case models.MediaTypeTrack:
		return c.WatchedPercentTrack
	default:
		return c.WatchedPercentMovie
	}
}

// Transition is one observed session state change. Kind is an event type
// constant from the eventstream package, or TransitionProgress. Record is
// set only on stop transitions; Streams only on concurrent ones.
type Transition struct {
	Kind    string
	Session models.ActiveSession
	Record  *models.HistoryRecord
	Streams int
}

// trackedSession is the monitor-side accounting for one active stream.
type trackedSession struct {
	session  models.ActiveSession
	lastSeen time.Time

	pausedAt      time.Time // Zero while not paused
	pausedTotal   time.Duration
	maxViewOffset int64
	watchedFired  bool
}

func (ts *trackedSession) closePauseSpan(now time.Time) {
	if ts.pausedAt.IsZero() {
		return
	}
	ts.pausedTotal += now.Sub(ts.pausedAt)
	ts.pausedAt = time.Time{}
}

// snapshot returns the session enriched with the tracker's accounting:
// accumulated pause time (including any open span), high-water percent
// complete and the watched flag.
func (ts *trackedSession) snapshot(now time.Time) models.ActiveSession {
	s := ts.session
	s.PausedDuration = ts.pausedTotal
	if !ts.pausedAt.IsZero() {
		s.PausedDuration += now.Sub(ts.pausedAt)
	}
	s.PercentComplete = percentComplete(ts.maxViewOffset, s.DurationMS)
	s.Watched = ts.watchedFired
	return s
}

// Tracker diffs poll snapshots into ordered playback transitions. It is
// a pure state machine: Apply must only be fed snapshots from healthy
// polls, so that a session missing from the input genuinely means the
// stream stopped rather than the server being unreachable.
type Tracker struct {
	mu     sync.Mutex
	cfg    TrackerConfig
	active map[string]*trackedSession
	seen   *cache.LRUCache // Adopted session keys, for restart dedupe
	buffer *cache.LRUCache // Buffer transition debounce per session
	over   map[int]bool    // Users currently at or above the concurrent threshold
}

// NewTracker builds a Tracker, filling zero config fields with defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.WatchedPercentMovie <= 0 {
		cfg.WatchedPercentMovie = defaultWatchedPercent
	}
	if cfg.WatchedPercentEpisode <= 0 {
		cfg.WatchedPercentEpisode = defaultWatchedPercent
	}
	if cfg.WatchedPercentTrack <= 0 {
		cfg.WatchedPercentTrack = defaultWatchedPercentTrack
	}
	if cfg.SeenSessionTTL <= 0 {
		cfg.SeenSessionTTL = defaultSeenSessionTTL
	}
	if cfg.BufferDebounce <= 0 {
		cfg.BufferDebounce = defaultBufferDebounce
	}

	return &Tracker{
		cfg:    cfg,
		active: make(map[string]*trackedSession),
		seen:   cache.NewLRUCache(seenCacheCapacity, cfg.SeenSessionTTL),
		buffer: cache.NewLRUCache(bufferCacheCapacity, cfg.BufferDebounce),
		over:   make(map[int]bool),
	}
}

// Apply diffs one poll snapshot against the tracked sessions and returns
// the transitions in a stable order: per-session changes first (in input
// order), then stops for vanished sessions (sorted by session key), then
// concurrent threshold breaches (sorted by user ID).
func (t *Tracker) Apply(now time.Time, sessions []models.ActiveSession) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	present := make(map[string]bool, len(sessions))

	for i := range sessions {
		s := &sessions[i]
		if s.SessionKey == "" {
			continue
		}
		present[s.SessionKey] = true
		if ts, ok := t.active[s.SessionKey]; ok {
			out = t.update(now, ts, s, out)
		} else {
			out = t.adopt(now, s, out)
		}
	}

	// A session absent from a healthy poll has stopped.
	var gone []string
	for key := range t.active {
		if !present[key] {
			gone = append(gone, key)
		}
	}
	sort.Strings(gone)
	for _, key := range gone {
		out = append(out, t.finalize(now, t.active[key]))
		delete(t.active, key)
	}

	return t.checkConcurrent(now, out)
}

// adopt starts tracking a session first seen in this snapshot.
func (t *Tracker) adopt(now time.Time, s *models.ActiveSession, out []Transition) []Transition {
	ts := &trackedSession{
		session:       *s,
		lastSeen:      now,
		maxViewOffset: s.ViewOffsetMS,
	}
	ts.session.StartedAt = now
	ts.session.State = normalizeState(s.State)

	// A key seen within the TTL is a session this process already
	// announced before a restart. Re-adopt it silently and carry the
	// watched flag forward so neither event fires twice.
	rejoin := t.seen.IsDuplicate(seenKey(s))
	if rejoin {
		ts.watchedFired = t.pastWatchedThreshold(ts)
	}

	// A session that first appears paused still gets its play
	// transition, but pause accounting starts immediately.
	if ts.session.State == models.StatePaused {
		ts.pausedAt = now
	}
	t.active[s.SessionKey] = ts

	if !rejoin {
		out = append(out, Transition{Kind: eventstream.EventPlay, Session: ts.snapshot(now)})
	}
	if !ts.watchedFired && t.pastWatchedThreshold(ts) {
		ts.watchedFired = true
		out = append(out, Transition{Kind: eventstream.EventWatched, Session: ts.snapshot(now)})
	}
	return out
}

// update folds a fresh snapshot of an already-tracked session into its
// state, emitting any transitions the change implies.
func (t *Tracker) update(now time.Time, ts *trackedSession, s *models.ActiveSession, out []Transition) []Transition {
	prevState := ts.session.State
	prevOffset := ts.session.ViewOffsetMS

	startedAt := ts.session.StartedAt
	ts.session = *s
	ts.session.StartedAt = startedAt
	ts.session.State = normalizeState(s.State)
	ts.lastSeen = now

	// The high-water offset is monotonic; rewinds and server hiccups
	// never lower it.
	if s.ViewOffsetMS > ts.maxViewOffset {
		ts.maxViewOffset = s.ViewOffsetMS
	}

	state := ts.session.State
	if state == models.StatePaused {
		if prevState != models.StatePaused {
			ts.pausedAt = now
			out = append(out, Transition{Kind: eventstream.EventPause, Session: ts.snapshot(now)})
		}
	} else {
		// Playing or buffering closes an open pause span. Buffering
		// counts as play time; the stall is the server's, not the
		// user's.
		if prevState == models.StatePaused {
			ts.closePauseSpan(now)
			out = append(out, Transition{Kind: eventstream.EventResume, Session: ts.snapshot(now)})
		}
		if state == models.StateBuffering && prevState != models.StateBuffering {
			if !t.buffer.IsDuplicate(ts.session.SessionKey) {
				out = append(out, Transition{Kind: eventstream.EventBuffer, Session: ts.snapshot(now)})
			}
		}
	}

	if !ts.watchedFired && t.pastWatchedThreshold(ts) {
		ts.watchedFired = true
		out = append(out, Transition{Kind: eventstream.EventWatched, Session: ts.snapshot(now)})
	}

	if state == models.StatePlaying && s.ViewOffsetMS > prevOffset {
		out = append(out, Transition{Kind: TransitionProgress, Session: ts.snapshot(now)})
	}

	return out
}

// finalize closes a tracked session at stoppedAt and builds its stop
// transition with the finished history record attached.
func (t *Tracker) finalize(stoppedAt time.Time, ts *trackedSession) Transition {
	ts.closePauseSpan(stoppedAt)
	ts.session.State = models.StateStopped
	ts.session.ViewOffsetMS = ts.maxViewOffset

	tr := Transition{Kind: eventstream.EventStop, Session: ts.snapshot(stoppedAt)}
	tr.Record = historyFromTracked(ts, stoppedAt)
	return tr
}

// checkConcurrent fires one concurrent transition per user per breach
// episode: when the user's stream count reaches the threshold the
// transition fires, and it cannot fire again until the count drops back
// below. The newest session provides the event context.
func (t *Tracker) checkConcurrent(now time.Time, out []Transition) []Transition {
	if t.cfg.ConcurrentThreshold <= 0 {
		return out
	}

	counts := make(map[int]int)
	newest := make(map[int]*trackedSession)
	for _, ts := range t.active {
		uid := ts.session.UserID
		if uid == 0 {
			continue
		}
		counts[uid]++
		cur, ok := newest[uid]
		if !ok || ts.session.StartedAt.After(cur.session.StartedAt) ||
			(ts.session.StartedAt.Equal(cur.session.StartedAt) && ts.session.SessionKey > cur.session.SessionKey) {
			newest[uid] = ts
		}
	}

	uids := make([]int, 0, len(counts))
	for uid := range counts {
		uids = append(uids, uid)
	}
	sort.Ints(uids)

	for _, uid := range uids {
		switch n := counts[uid]; {
		case n >= t.cfg.ConcurrentThreshold && !t.over[uid]:
			t.over[uid] = true
			out = append(out, Transition{
				Kind:    eventstream.EventConcurrent,
				Session: newest[uid].snapshot(now),
				Streams: n,
			})
		case n < t.cfg.ConcurrentThreshold:
			delete(t.over, uid)
		}
	}

	// Users with no sessions left disarm as well.
	for uid := range t.over {
		if counts[uid] == 0 {
			delete(t.over, uid)
		}
	}
	return out
}

// SweepStale finalizes sessions not seen since the cutoff and evicts
// expired cache entries. This covers prolonged monitor downtime: streams
// that ended unobserved close at the time they were last actually seen,
// not at sweep time.
func (t *Tracker) SweepStale(now time.Time, olderThan time.Duration) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-olderThan)
	var stale []string
	for key, ts := range t.active {
		if ts.lastSeen.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)

	var out []Transition
	for _, key := range stale {
		ts := t.active[key]
		out = append(out, t.finalize(ts.lastSeen, ts))
		delete(t.active, key)
	}

	t.seen.CleanupExpired()
	t.buffer.CleanupExpired()

	return t.checkConcurrent(now, out)
}

// Snapshot assembles the live activity view from the tracked sessions,
// ordered by session key. Reachability and poll time are left for the
// caller to fill.
func (t *Tracker) Snapshot() models.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	act := models.Activity{Sessions: make([]models.ActiveSession, 0, len(t.active))}

	keys := make([]string, 0, len(t.active))
	for key := range t.active {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s := t.active[key].snapshot(now)
		act.Sessions = append(act.Sessions, s)

		act.StreamCount++
		switch s.TranscodeDecision {
		case models.DecisionTranscode:
			act.StreamCountTranscode++
		case models.DecisionCopy:
			act.StreamCountDirectStream++
		default:
			act.StreamCountDirectPlay++
		}

		act.TotalBandwidthKbps += s.BandwidthKbps
		if s.LocationType == models.LocationWAN {
			act.WANBandwidthKbps += s.BandwidthKbps
		} else {
			act.LANBandwidthKbps += s.BandwidthKbps
		}
	}
	return act
}

// Len reports the number of sessions currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *Tracker) pastWatchedThreshold(ts *trackedSession) bool {
	if ts.session.DurationMS <= 0 {
		return false
	}
	threshold := float64(t.cfg.watchedPercentFor(ts.session.MediaType))
	return percentComplete(ts.maxViewOffset, ts.session.DurationMS) >= threshold
}

func percentComplete(offsetMS, durationMS int64) float64 {
	if durationMS <= 0 {
		return 0
	}
	p := float64(offsetMS) / float64(durationMS) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func normalizeState(state string) string {
	if state == "" {
		return models.StatePlaying
	}
	return state
}

// seenKey identifies one viewing for restart dedupe. The rating key is
// included because servers reuse session keys across restarts.
func seenKey(s *models.ActiveSession) string {
	return s.SessionKey + ":" + s.RatingKey
}
