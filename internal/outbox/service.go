// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package outbox

import (
	"context"
	"time"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
)

// DeliverFunc re-delivers one journaled notification. A nil return confirms
// the entry; an error leaves it pending for the next replay pass.
type DeliverFunc func(ctx context.Context, env *Envelope) error

// deliveryTimeout bounds one replay delivery attempt.
const deliveryTimeout = 30 * time.Second

// backoffCap bounds the per-entry retry backoff.
const backoffCap = 10 * time.Minute

// Service is the replay loop. It runs under the supervision tree and
// periodically re-delivers pending envelopes, oldest first.
type Service struct {
	journal *Journal
	deliver DeliverFunc
}

// NewService creates the replay service around an open journal.
func NewService(journal *Journal, deliver DeliverFunc) *Service {
	return &Service{journal: journal, deliver: deliver}
}

// Serve runs the replay loop until the context is canceled. The first pass
// runs immediately so entries stranded by a restart move again without
// waiting out a full interval.
func (s *Service) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.journal.config.ReplayInterval).
		Msg("Outbox replay loop started")

	s.replayPending(ctx)

	ticker := time.NewTicker(s.journal.config.ReplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Outbox replay loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.replayPending(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "outbox-replay"
}

func (s *Service) replayPending(ctx context.Context) {
	entries, err := s.journal.Pending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Outbox replay failed to load pending entries")
		return
	}

	var replayed, failed, dropped, skipped int
	for _, env := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch s.processEntry(ctx, env) {
		case replayOutcomeDelivered:
			replayed++
		case replayOutcomeFailed:
			failed++
		case replayOutcomeDropped:
			dropped++
		case replayOutcomeSkipped:
			skipped++
		}
	}

	depth, oldestAge := s.journal.Stats(ctx)
	metrics.UpdateOutboxGauges(depth, oldestAge.Seconds())

	if replayed > 0 || failed > 0 || dropped > 0 {
		logging.Info().
			Int("replayed", replayed).
			Int("failed", failed).
			Int("dropped", dropped).
			Int("skipped", skipped).
			Int64("depth", depth).
			Msg("Outbox replay pass complete")
	}
}

type replayOutcome int

const (
	replayOutcomeDelivered replayOutcome = iota
	replayOutcomeFailed
	replayOutcomeDropped
	replayOutcomeSkipped
)

func (s *Service) processEntry(ctx context.Context, env *Envelope) replayOutcome {
	if !s.journal.TryClaim(env.Key) {
		// An inline dispatch still owns this entry.
		return replayOutcomeSkipped
	}
	defer s.journal.Release(env.Key)

	cfg := s.journal.config

	if age := time.Since(env.EnqueuedAt); age > cfg.MaxAge {
		logging.Info().
			Str("id", env.ID.String()).
			Str("trigger", env.Trigger).
			Dur("age", age).
			Msg("Dropping outbox entry past max age")
		if err := s.journal.Drop(ctx, env.Key, DropReasonMaxAge); err != nil {
			logging.Warn().Err(err).Str("key", env.Key).Msg("Failed to drop aged outbox entry")
		}
		return replayOutcomeDropped
	}

	if env.Attempts >= cfg.MaxAttempts {
		logging.Info().
			Str("id", env.ID.String()).
			Str("trigger", env.Trigger).
			Int("attempts", env.Attempts).
			Str("last_error", env.LastError).
			Msg("Dropping outbox entry past max attempts")
		if err := s.journal.Drop(ctx, env.Key, DropReasonMaxAttempts); err != nil {
			logging.Warn().Err(err).Str("key", env.Key).Msg("Failed to drop exhausted outbox entry")
		}
		return replayOutcomeDropped
	}

	if !readyForRetry(env, cfg.RetryBackoff) {
		return replayOutcomeSkipped
	}

	if s.deliver == nil {
		return replayOutcomeSkipped
	}

	deliverCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	err := s.deliver(deliverCtx, env)
	cancel()

	if err != nil {
		if recordErr := s.journal.RecordAttempt(ctx, env.Key, err.Error()); recordErr != nil {
			logging.Warn().Err(recordErr).Str("key", env.Key).Msg("Failed to record outbox attempt")
		}
		logging.Debug().
			Err(err).
			Str("id", env.ID.String()).
			Str("trigger", env.Trigger).
			Int("attempts", env.Attempts+1).
			Msg("Outbox replay delivery failed")
		return replayOutcomeFailed
	}

	if err := s.journal.Confirm(ctx, env.Key); err != nil {
		logging.Warn().Err(err).Str("key", env.Key).Msg("Failed to confirm replayed outbox entry")
	}
	metrics.OutboxReplayed.Inc()
	return replayOutcomeDelivered
}

// readyForRetry applies exponential backoff per attempt: base, 2x, 4x...
// capped at backoffCap. Entries that have never been attempted go
// immediately.
func readyForRetry(env *Envelope, base time.Duration) bool {
	if env.LastAttemptAt.IsZero() {
		return true
	}
	backoff := base
	for i := 1; i < env.Attempts && backoff < backoffCap; i++ {
		backoff *= 2
	}
	if backoff > backoffCap {
		backoff = backoffCap
	}
	return time.Since(env.LastAttemptAt) >= backoff
}
