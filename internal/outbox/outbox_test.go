// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()

	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false

	j, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Failed to close journal: %v", err)
		}
	})
	return j
}

func testEnvelope(trigger string) *Envelope {
	return &Envelope{
		NotifierID: 1,
		Trigger:    trigger,
		Subject:    "Vigil (Test Server)",
		Body:       "alice started playing Inception.",
		SessionKey: "42",
		UserID:     10,
	}
}

func TestJournalEnqueueConfirm(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	first := testEnvelope("on_play")
	first.EnqueuedAt = time.Now().UTC().Add(-2 * time.Minute)
	if err := j.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second := testEnvelope("on_stop")
	if err := j.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if first.Key == "" || second.Key == "" {
		t.Fatal("Enqueue did not assign keys")
	}
	if first.ID == second.ID {
		t.Error("Enqueue assigned duplicate IDs")
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Pending returned %d entries, want 2", len(pending))
	}
	// Keys are time-ordered, so the older entry comes back first.
	if pending[0].Trigger != "on_play" {
		t.Errorf("Oldest entry trigger = %q, want on_play", pending[0].Trigger)
	}

	if err := j.Confirm(ctx, first.Key); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if err := j.Confirm(ctx, first.Key); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Second Confirm = %v, want ErrEntryNotFound", err)
	}

	pending, err = j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Trigger != "on_stop" {
		t.Errorf("After confirm, pending = %d entries, want just on_stop", len(pending))
	}
}

func TestJournalRecordAttempt(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := j.RecordAttempt(ctx, env.Key, "connection refused"); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := j.RecordAttempt(ctx, env.Key, "timeout"); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending returned %d entries, want 1", len(pending))
	}
	if pending[0].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", pending[0].Attempts)
	}
	if pending[0].LastError != "timeout" {
		t.Errorf("LastError = %q, want timeout", pending[0].LastError)
	}
	if pending[0].LastAttemptAt.IsZero() {
		t.Error("LastAttemptAt not recorded")
	}

	if err := j.RecordAttempt(ctx, "nfy:missing", "x"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("RecordAttempt on missing key = %v, want ErrEntryNotFound", err)
	}
}

func TestJournalClaims(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Enqueue leaves the entry claimed for the caller's inline delivery.
	if j.TryClaim(env.Key) {
		t.Error("TryClaim succeeded on a freshly enqueued entry")
	}
	j.Release(env.Key)
	if !j.TryClaim(env.Key) {
		t.Error("TryClaim failed after Release")
	}
	if j.TryClaim(env.Key) {
		t.Error("TryClaim succeeded while the key was held")
	}
}

func TestJournalClosedErrors(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	j, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Second Close = %v, want nil", err)
	}

	ctx := context.Background()
	if err := j.Enqueue(ctx, testEnvelope("on_play")); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Enqueue after close = %v, want ErrJournalClosed", err)
	}
	if _, err := j.Pending(ctx); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Pending after close = %v, want ErrJournalClosed", err)
	}
}

type captureDeliverer struct {
	mu   sync.Mutex
	envs []*Envelope
	err  error
}

func (c *captureDeliverer) deliver(_ context.Context, env *Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return c.err
}

func (c *captureDeliverer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.envs)
}

func TestServiceReplaysPending(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// Simulate a crashed dispatch: the claim is gone, the entry remains.
	j.Release(env.Key)

	capture := &captureDeliverer{}
	svc := NewService(j, capture.deliver)
	svc.replayPending(ctx)

	if capture.count() != 1 {
		t.Fatalf("Replay delivered %d entries, want 1", capture.count())
	}
	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Replayed entry still pending: %d entries", len(pending))
	}
}

func TestServiceSkipsClaimedEntries(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// Claim still held by the inline dispatch.

	capture := &captureDeliverer{}
	svc := NewService(j, capture.deliver)
	svc.replayPending(ctx)

	if capture.count() != 0 {
		t.Errorf("Replay delivered a claimed entry")
	}
	pending, _ := j.Pending(ctx)
	if len(pending) != 1 {
		t.Errorf("Claimed entry vanished: %d pending", len(pending))
	}
}

func TestServiceDropsExhaustedEntries(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	for i := 0; i < j.Config().MaxAttempts; i++ {
		if err := j.RecordAttempt(ctx, env.Key, fmt.Sprintf("attempt %d failed", i+1)); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}
	j.Release(env.Key)

	capture := &captureDeliverer{}
	svc := NewService(j, capture.deliver)
	svc.replayPending(ctx)

	if capture.count() != 0 {
		t.Error("Replay delivered an exhausted entry")
	}
	pending, _ := j.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Exhausted entry not dropped: %d pending", len(pending))
	}
}

func TestServiceDropsAgedEntries(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	env.EnqueuedAt = time.Now().UTC().Add(-j.Config().MaxAge - time.Hour)
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	j.Release(env.Key)

	capture := &captureDeliverer{}
	svc := NewService(j, capture.deliver)
	svc.replayPending(ctx)

	if capture.count() != 0 {
		t.Error("Replay delivered an aged entry")
	}
	pending, _ := j.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Aged entry not dropped: %d pending", len(pending))
	}
}

func TestServiceBacksOffFailedEntries(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// A delivery just failed; the backoff window has not elapsed.
	if err := j.RecordAttempt(ctx, env.Key, "connection refused"); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	j.Release(env.Key)

	capture := &captureDeliverer{}
	svc := NewService(j, capture.deliver)
	svc.replayPending(ctx)

	if capture.count() != 0 {
		t.Error("Replay ignored the retry backoff")
	}
	pending, _ := j.Pending(ctx)
	if len(pending) != 1 {
		t.Errorf("Backed-off entry vanished: %d pending", len(pending))
	}
}

func TestServiceRecordsFailedReplay(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	env := testEnvelope("on_play")
	if err := j.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	j.Release(env.Key)

	capture := &captureDeliverer{err: errors.New("webhook returned 503")}
	svc := NewService(j, capture.deliver)
	svc.replayPending(ctx)

	if capture.count() != 1 {
		t.Fatalf("Replay attempted %d deliveries, want 1", capture.count())
	}
	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Failed entry not retained: %d pending", len(pending))
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", pending[0].Attempts)
	}
	if pending[0].LastError != "webhook returned 503" {
		t.Errorf("LastError = %q", pending[0].LastError)
	}
}

func TestReadyForRetry(t *testing.T) {
	t.Parallel()

	base := 30 * time.Second

	fresh := &Envelope{}
	if !readyForRetry(fresh, base) {
		t.Error("Entry with no attempts should be ready")
	}

	recent := &Envelope{Attempts: 1, LastAttemptAt: time.Now().Add(-time.Second)}
	if readyForRetry(recent, base) {
		t.Error("Entry inside the backoff window should not be ready")
	}

	elapsed := &Envelope{Attempts: 1, LastAttemptAt: time.Now().Add(-time.Minute)}
	if !readyForRetry(elapsed, base) {
		t.Error("Entry past the backoff window should be ready")
	}

	// Fourth attempt backs off 8x the base, so two minutes is not enough.
	repeat := &Envelope{Attempts: 4, LastAttemptAt: time.Now().Add(-2 * time.Minute)}
	if readyForRetry(repeat, base) {
		t.Error("Backoff should grow with the attempt count")
	}

	// Backoff is capped, so very old attempts always qualify.
	capped := &Envelope{Attempts: 50, LastAttemptAt: time.Now().Add(-backoffCap - time.Minute)}
	if !readyForRetry(capped, base) {
		t.Error("Entry past the backoff cap should be ready")
	}
}
