// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/outbox"
)

var (
	// One in-memory DuckDB at a time; each instance reserves max_memory
	// up front.
	testDBSemaphore = make(chan struct{}, 1)
	testDBMutex     sync.Mutex
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	type result struct {
		db  *database.DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		defer testDBMutex.Unlock()
		db, err := database.New(&config.DatabaseConfig{
			Path:                   ":memory:",
			MaxMemory:              "1GB",
			Threads:                2,
			PreserveInsertionOrder: true,
			SkipIndexes:            true,
		})
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Logf("failed to close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("timed out waiting for test database")
		return nil
	}
}

func testJournal(t *testing.T) *outbox.Journal {
	t.Helper()
	cfg := outbox.DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	j, err := outbox.Open(cfg)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

// fakeChannel records sent messages and plays back scripted results. The
// last scripted result repeats; with no script every send succeeds.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []*Message
	results []*DeliveryResult
	err     error
}

func (f *fakeChannel) Name() string                            { return models.ChannelWebhook }
func (f *fakeChannel) Validate(_ *models.NotifierConfig) error { return nil }

func (f *fakeChannel) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		now := time.Now()
		return &DeliveryResult{Success: true, DeliveredAt: &now}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r, nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) message(i int) *Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

func transientFailure(msg string) *DeliveryResult {
	return &DeliveryResult{ErrorMessage: msg, ErrorCode: ErrorCodeServerError, IsTransient: true}
}

func permanentFailure(msg string) *DeliveryResult {
	return &DeliveryResult{ErrorMessage: msg, ErrorCode: ErrorCodeAuthFailed}
}

// testDispatcher builds a dispatcher around an in-memory journal and a
// fake webhook channel, with millisecond retry delays so transient-path
// tests stay fast.
func testDispatcher(t *testing.T, db *database.DB) (*Dispatcher, *fakeChannel) {
	t.Helper()
	cfg := config.NotificationsConfig{
		Enabled:      true,
		MaxAttempts:  5,
		MaxAge:       24 * time.Hour,
		DedupeWindow: 90 * time.Second,
	}
	d := NewDispatcher(db, cfg, testJournal(t))
	fake := &fakeChannel{}
	d.channels[models.ChannelWebhook] = fake
	d.baseDelay = time.Millisecond
	d.maxDelay = 5 * time.Millisecond
	return d, fake
}

func seedNotifier(t *testing.T, db *database.DB, mutate func(*models.Notifier)) *models.Notifier {
	t.Helper()
	n := &models.Notifier{
		Name:        "test-hook",
		ChannelType: models.ChannelWebhook,
		Enabled:     true,
		Triggers:    map[string]bool{models.TriggerPlay: true},
		Config:      models.NotifierConfig{URL: "https://hooks.example.com/vigil"},
	}
	if mutate != nil {
		mutate(n)
	}
	if err := db.CreateNotifier(context.Background(), n); err != nil {
		t.Fatalf("create notifier: %v", err)
	}
	return n
}

func playEvent() *eventstream.SessionEvent {
	ev := eventstream.NewSessionEvent(eventstream.EventPlay, "srv-1")
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

func TestDispatcherDeliversOnTrigger(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, func(n *models.Notifier) {
		n.Subjects = map[string]string{models.TriggerPlay: "Play on {server_name}"}
		n.Bodies = map[string]string{models.TriggerPlay: "{user} started {title}"}
	})

	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if fake.count() != 1 {
		t.Fatalf("sent %d messages, want 1", fake.count())
	}
	msg := fake.message(0)
	if msg.Trigger != models.TriggerPlay {
		t.Errorf("trigger = %q", msg.Trigger)
	}
	if msg.Subject != "Play on Test Server" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.Body != "alice started Inception" {
		t.Errorf("body = %q", msg.Body)
	}
	if msg.SessionKey != "42" || msg.UserID != 10 {
		t.Errorf("session fields = %q / %d", msg.SessionKey, msg.UserID)
	}

	entries, err := db.GetNotifyLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetNotifyLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("notify log has %d entries, want 1", len(entries))
	}
	if !entries[0].Success {
		t.Errorf("log entry failed: %s", entries[0].Error)
	}

	pending, err := d.journal.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("outbox has %d entries after confirmed delivery, want 0", len(pending))
	}
}

func TestDispatcherIgnoresUnmatchedTrigger(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, nil)

	stop := playEvent()
	stop.Type = eventstream.EventStop
	if err := d.HandleEvent(ctx, stop); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fake.count() != 0 {
		t.Errorf("sent %d messages for a disabled trigger, want 0", fake.count())
	}
}

// fakeBroadcaster records pushed delivery outcomes.
type fakeBroadcaster struct {
	mu      sync.Mutex
	entries []models.NotifyLogEntry
}

func (f *fakeBroadcaster) BroadcastNotification(entry models.NotifyLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func TestDispatcherBroadcastsOutcome(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	feed := &fakeBroadcaster{}
	d.SetBroadcaster(feed)

	seedNotifier(t, db, nil)
	fake.results = []*DeliveryResult{permanentFailure("endpoint gone")}

	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.entries) != 1 {
		t.Fatalf("broadcast %d outcomes, want 1", len(feed.entries))
	}
	got := feed.entries[0]
	if got.Success {
		t.Error("broadcast entry reports success for a failed delivery")
	}
	if got.Trigger != models.TriggerPlay || got.Error != "endpoint gone" {
		t.Errorf("unexpected broadcast entry: trigger=%q error=%q", got.Trigger, got.Error)
	}
}

func TestDispatcherAppliesConditions(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, func(n *models.Notifier) {
		n.Conditions = []models.NotifierCondition{
			{Field: "media_type", Operator: models.OperatorIs, Values: []string{"movie"}},
		}
	})

	episode := playEvent()
	episode.MediaType = models.MediaTypeEpisode
	episode.SessionKey = "43"
	if err := d.HandleEvent(ctx, episode); err != nil {
		t.Fatalf("HandleEvent episode: %v", err)
	}
	if fake.count() != 0 {
		t.Fatalf("episode event matched a movie-only condition")
	}

	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("HandleEvent movie: %v", err)
	}
	if fake.count() != 1 {
		t.Errorf("sent %d messages, want 1", fake.count())
	}
}

func TestDispatcherSuppressesDuplicateEvents(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, nil)

	// Two distinct event objects describing the same playback carry the
	// same dedupe key.
	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("first HandleEvent: %v", err)
	}
	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("second HandleEvent: %v", err)
	}

	if fake.count() != 1 {
		t.Errorf("sent %d messages for duplicate events, want 1", fake.count())
	}
	entries, err := db.GetNotifyLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetNotifyLog: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("notify log has %d entries, want 1", len(entries))
	}
}

func TestDispatcherWatchedFiresOncePerSession(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, func(n *models.Notifier) {
		n.Triggers = map[string]bool{models.TriggerWatched: true}
	})

	// Expire dedupe entries immediately so only the watched-once guard
	// can suppress the repeat.
	d.dedupe = cache.NewLRUCache(100, time.Nanosecond)

	watched := func() *eventstream.SessionEvent {
		ev := playEvent()
		ev.Type = eventstream.EventWatched
		ev.PercentComplete = 91.0
		return ev
	}

	if err := d.HandleEvent(ctx, watched()); err != nil {
		t.Fatalf("first HandleEvent: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := d.HandleEvent(ctx, watched()); err != nil {
		t.Fatalf("second HandleEvent: %v", err)
	}

	if fake.count() != 1 {
		t.Errorf("watched fired %d times for one session, want 1", fake.count())
	}
}

func TestDispatcherJournalsFailedDelivery(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, nil)
	fake.results = []*DeliveryResult{transientFailure("webhook returned 503: overloaded")}

	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	// One initial attempt plus maxRetries inline retries.
	if fake.count() != d.maxRetries+1 {
		t.Errorf("made %d attempts, want %d", fake.count(), d.maxRetries+1)
	}

	pending, err := d.journal.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("outbox has %d entries, want 1", len(pending))
	}
	env := pending[0]
	if env.Attempts != 1 {
		t.Errorf("envelope attempts = %d, want 1", env.Attempts)
	}
	if !strings.Contains(env.LastError, "503") {
		t.Errorf("envelope last error = %q", env.LastError)
	}

	entries, err := db.GetNotifyLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetNotifyLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Success {
		t.Errorf("expected one failed log entry, got %+v", entries)
	}
}

func TestDispatcherStopsRetryOnPermanentFailure(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, nil)
	fake.results = []*DeliveryResult{permanentFailure("webhook returned 403: denied")}

	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fake.count() != 1 {
		t.Errorf("made %d attempts for a permanent failure, want 1", fake.count())
	}

	// The envelope stays journaled; a later config fix applies on replay
	// because the notifier is reloaded then.
	pending, err := d.journal.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("outbox has %d entries, want 1", len(pending))
	}
}

func TestDispatcherRetriesTransientThenSucceeds(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	seedNotifier(t, db, nil)
	now := time.Now()
	fake.results = []*DeliveryResult{
		transientFailure("webhook returned 502: bad gateway"),
		{Success: true, DeliveredAt: &now},
	}

	if err := d.HandleEvent(ctx, playEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fake.count() != 2 {
		t.Errorf("made %d attempts, want 2", fake.count())
	}

	pending, err := d.journal.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("outbox has %d entries after eventual success, want 0", len(pending))
	}
}

func TestDeliverEnvelope(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	n := seedNotifier(t, db, nil)
	env := &outbox.Envelope{
		NotifierID: n.ID,
		Trigger:    models.TriggerPlay,
		Subject:    "Play on Test Server",
		Body:       "alice started Inception",
		SessionKey: "42",
		UserID:     10,
	}

	if err := d.DeliverEnvelope(ctx, env); err != nil {
		t.Fatalf("DeliverEnvelope: %v", err)
	}
	if fake.count() != 1 {
		t.Fatalf("sent %d messages, want 1", fake.count())
	}
	if got := fake.message(0).Subject; got != "Play on Test Server" {
		t.Errorf("replayed subject = %q", got)
	}

	// A failing replay reports the delivery error so the journal records
	// the attempt.
	fake.results = []*DeliveryResult{permanentFailure("webhook returned 410: gone")}
	err := d.DeliverEnvelope(ctx, env)
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Errorf("expected delivery error, got %v", err)
	}
	fake.results = nil

	// Disabling the notifier drops the envelope without delivery.
	n.Enabled = false
	if err := db.UpdateNotifier(ctx, n); err != nil {
		t.Fatalf("disable notifier: %v", err)
	}
	before := fake.count()
	if err := d.DeliverEnvelope(ctx, env); err != nil {
		t.Fatalf("DeliverEnvelope disabled: %v", err)
	}
	if fake.count() != before {
		t.Error("disabled notifier still delivered")
	}

	// A deleted notifier also clears the entry.
	if err := db.DeleteNotifier(ctx, n.ID); err != nil {
		t.Fatalf("delete notifier: %v", err)
	}
	if err := d.DeliverEnvelope(ctx, env); err != nil {
		t.Fatalf("DeliverEnvelope deleted: %v", err)
	}
	if fake.count() != before {
		t.Error("deleted notifier still delivered")
	}
}

func TestSendTest(t *testing.T) {
	db := setupTestDB(t)
	d, fake := testDispatcher(t, db)
	ctx := context.Background()

	n := seedNotifier(t, db, nil)
	result, err := d.SendTest(ctx, n)
	if err != nil {
		t.Fatalf("SendTest: %v", err)
	}
	if !result.Success {
		t.Errorf("test delivery failed: %s", result.ErrorMessage)
	}
	if fake.count() != 1 {
		t.Fatalf("sent %d messages, want 1", fake.count())
	}
	if got := fake.message(0).Trigger; got != "test" {
		t.Errorf("test trigger = %q", got)
	}

	bogus := &models.Notifier{ID: 99, ChannelType: "carrier_pigeon"}
	if _, err := d.SendTest(ctx, bogus); err == nil {
		t.Error("expected error for unknown channel type")
	}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		prev    *DeliveryResult
		want    time.Duration
	}{
		{1, nil, time.Second},
		{2, nil, 2 * time.Second},
		{3, nil, 4 * time.Second},
		{10, nil, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, tt.prev, base, max); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	retryAfter := 5 * time.Second
	prev := &DeliveryResult{RetryAfter: &retryAfter}
	if got := backoffDelay(1, prev, base, max); got != 5*time.Second {
		t.Errorf("RetryAfter override = %v, want 5s", got)
	}

	tooLong := 5 * time.Minute
	prev = &DeliveryResult{RetryAfter: &tooLong}
	if got := backoffDelay(1, prev, base, max); got != 30*time.Second {
		t.Errorf("capped RetryAfter = %v, want 30s", got)
	}
}
