// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/outbox"
)

const (
	// Inline retry policy for transient delivery failures. Deliveries
	// that exhaust these retries stay journaled for the replay loop.
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second

	dedupeCacheSize = 10000

	// A watched notification fires once per session per item even though
	// the monitor keeps emitting progress past the threshold.
	watchedOnceTTL = 24 * time.Hour
)

// Broadcaster pushes delivery outcomes to the dashboard's live feed.
// Satisfied by the WebSocket hub.
type Broadcaster interface {
	BroadcastNotification(entry models.NotifyLogEntry)
}

// Dispatcher fans session events out to the enabled notifiers whose
// trigger and conditions match, renders the per-trigger templates, and
// delivers through the configured channel with journaled retry.
type Dispatcher struct {
	db          *database.DB
	config      config.NotificationsConfig
	channels    map[string]Channel
	journal     *outbox.Journal
	dedupe      *cache.LRUCache
	watched     *cache.LRUCache
	broadcaster Broadcaster

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewDispatcher creates a dispatcher. The journal may be nil, in which
// case failed deliveries are not replayed.
func NewDispatcher(db *database.DB, cfg config.NotificationsConfig, journal *outbox.Journal) *Dispatcher {
	return &Dispatcher{
		db:         db,
		config:     cfg,
		channels:   Channels(),
		journal:    journal,
		dedupe:     cache.NewLRUCache(dedupeCacheSize, cfg.DedupeWindow),
		watched:    cache.NewLRUCache(dedupeCacheSize, watchedOnceTTL),
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
}

// SetBroadcaster wires the optional live-feed broadcaster. Wire it
// before the consumer starts; the field is not guarded.
func (d *Dispatcher) SetBroadcaster(b Broadcaster) {
	d.broadcaster = b
}

// HandleEvent processes one session event against every enabled
// notifier. Its signature matches the eventstream consumer handler so it
// can terminate either a NATS subscription or a direct publish.
//
// Per-notifier delivery failures do not fail the event. The failed
// envelope stays in the outbox for replay instead, so a redelivered
// event cannot double-send through notifiers that already succeeded.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *eventstream.SessionEvent) error {
	if ev == nil {
		return nil
	}
	if ev.DedupeKey == "" {
		ev.SetDedupeKey()
	}

	notifiers, err := d.db.GetEnabledNotifiers(ctx)
	if err != nil {
		return fmt.Errorf("load notifiers: %w", err)
	}
	if len(notifiers) == 0 {
		return nil
	}

	trigger := ev.TriggerKind()
	params := BuildParams(ev)

	for i := range notifiers {
		n := &notifiers[i]
		if !n.Triggers[trigger] {
			continue
		}
		if !EvaluateConditions(n.Conditions, params) {
			logging.Trace().
				Int64("notifier_id", n.ID).
				Str("trigger", trigger).
				Msg("Notifier conditions did not match")
			continue
		}
		if ev.Type == eventstream.EventWatched {
			onceKey := fmt.Sprintf("%d:watched:%s:%s", n.ID, ev.SessionKey, ev.RatingKey)
			if d.watched.IsDuplicate(onceKey) {
				continue
			}
		}
		dedupeKey := fmt.Sprintf("%d:%s", n.ID, ev.DedupeKey)
		if d.dedupe.IsDuplicate(dedupeKey) {
			metrics.NotificationDedupeSkips.Inc()
			logging.Debug().
				Int64("notifier_id", n.ID).
				Str("dedupe_key", ev.DedupeKey).
				Msg("Duplicate notification suppressed")
			continue
		}

		d.dispatch(ctx, n, trigger, ev, params)
	}
	return nil
}

// dispatch renders and delivers one notification. The envelope is
// journaled before the first attempt so a crash mid-delivery is replayed
// rather than lost.
func (d *Dispatcher) dispatch(ctx context.Context, n *models.Notifier, trigger string, ev *eventstream.SessionEvent, params map[string]string) {
	subject, body := RenderMessage(n, trigger, params)

	msg := &Message{
		NotifierID: n.ID,
		Trigger:    trigger,
		Subject:    subject,
		Body:       body,
		Params:     params,
		Config:     &n.Config,
		SessionKey: ev.SessionKey,
		RatingKey:  ev.RatingKey,
		UserID:     ev.UserID,
	}

	ch, ok := d.channels[n.ChannelType]
	if !ok {
		logging.Error().
			Int64("notifier_id", n.ID).
			Str("channel", n.ChannelType).
			Msg("Notifier references an unknown channel type")
		d.logOutcome(ctx, msg, &DeliveryResult{
			ErrorMessage: "unknown channel type: " + n.ChannelType,
			ErrorCode:    ErrorCodeInvalidConfig,
		})
		return
	}

	env := &outbox.Envelope{
		NotifierID: n.ID,
		Trigger:    trigger,
		Subject:    subject,
		Body:       body,
		Params:     params,
		SessionKey: ev.SessionKey,
		RatingKey:  ev.RatingKey,
		UserID:     ev.UserID,
	}
	journaled := false
	if d.journal != nil {
		if err := d.journal.Enqueue(ctx, env); err != nil {
			logging.Warn().Err(err).
				Int64("notifier_id", n.ID).
				Msg("Failed to journal notification, delivering without replay cover")
		} else {
			journaled = true
			defer d.journal.Release(env.Key)
		}
	}

	start := time.Now()
	result := d.deliverWithRetry(ctx, ch, msg)
	metrics.RecordNotification(trigger, ch.Name(), time.Since(start), resultError(result))
	d.logOutcome(ctx, msg, result)

	switch {
	case result.Success && journaled:
		if err := d.journal.Confirm(ctx, env.Key); err != nil && !errors.Is(err, outbox.ErrEntryNotFound) {
			logging.Warn().Err(err).Str("key", env.Key).Msg("Failed to confirm delivered notification")
		}
	case !result.Success && journaled:
		if err := d.journal.RecordAttempt(ctx, env.Key, result.ErrorMessage); err != nil {
			logging.Warn().Err(err).Str("key", env.Key).Msg("Failed to record delivery attempt")
		}
		logging.Info().
			Int64("notifier_id", n.ID).
			Str("trigger", trigger).
			Str("error", result.ErrorMessage).
			Msg("Notification delivery failed, left in outbox for replay")
	case !result.Success:
		logging.Error().
			Int64("notifier_id", n.ID).
			Str("trigger", trigger).
			Str("error", result.ErrorMessage).
			Msg("Notification delivery failed with no journal entry")
	}
}

// deliverWithRetry attempts delivery with the dispatcher's retry policy.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, ch Channel, msg *Message) *DeliveryResult {
	return DeliverWithRetry(ctx, ch, msg, d.maxRetries, d.baseDelay, d.maxDelay)
}

// DeliverWithRetry attempts delivery with exponential backoff, stopping
// early on success or a permanent failure. Newsletter delivery shares
// this path with event notifications.
func DeliverWithRetry(ctx context.Context, ch Channel, msg *Message, maxRetries int, baseDelay, maxDelay time.Duration) *DeliveryResult {
	var result *DeliveryResult

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &DeliveryResult{
					ErrorMessage: ctx.Err().Error(),
					ErrorCode:    ErrorCodeTimeout,
					IsTransient:  true,
				}
			case <-time.After(backoffDelay(attempt, result, baseDelay, maxDelay)):
			}
		}

		var err error
		result, err = ch.Send(ctx, msg)
		if err != nil {
			result = &DeliveryResult{
				ErrorMessage: err.Error(),
				ErrorCode:    ErrorCodeUnknown,
				IsTransient:  true,
			}
			continue
		}
		if result.Success || !result.IsTransient {
			return result
		}
	}
	return result
}

// backoffDelay computes the wait before a retry attempt, honoring a
// server-provided Retry-After over the exponential schedule.
func backoffDelay(attempt int, prev *DeliveryResult, baseDelay, maxDelay time.Duration) time.Duration {
	if prev != nil && prev.RetryAfter != nil && *prev.RetryAfter > 0 {
		if *prev.RetryAfter > maxDelay {
			return maxDelay
		}
		return *prev.RetryAfter
	}
	delay := baseDelay
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// logOutcome records the delivery attempt in the notification log and
// pushes it to the live feed.
func (d *Dispatcher) logOutcome(ctx context.Context, msg *Message, result *DeliveryResult) {
	entry := &models.NotifyLogEntry{
		ID:         uuid.New(),
		NotifierID: msg.NotifierID,
		Trigger:    msg.Trigger,
		SessionKey: msg.SessionKey,
		RatingKey:  msg.RatingKey,
		UserID:     msg.UserID,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Success:    result.Success,
		Error:      result.ErrorMessage,
		SentAt:     time.Now().UTC(),
	}
	if err := d.db.InsertNotifyLog(ctx, entry); err != nil {
		logging.Warn().Err(err).
			Int64("notifier_id", msg.NotifierID).
			Msg("Failed to record notification log entry")
	}
	if d.broadcaster != nil {
		d.broadcaster.BroadcastNotification(*entry)
	}
}

// DeliverEnvelope replays one journaled notification. It reloads the
// notifier so configuration edits made since enqueue apply, and makes a
// single attempt; the replay loop provides pacing and backoff. A nil
// return clears the journal entry.
func (d *Dispatcher) DeliverEnvelope(ctx context.Context, env *outbox.Envelope) error {
	n, err := d.db.GetNotifier(ctx, env.NotifierID)
	if errors.Is(err, database.ErrNotFound) {
		logging.Info().
			Int64("notifier_id", env.NotifierID).
			Str("trigger", env.Trigger).
			Msg("Notifier deleted, dropping journaled notification")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload notifier %d: %w", env.NotifierID, err)
	}
	if !n.Enabled {
		logging.Debug().
			Int64("notifier_id", n.ID).
			Msg("Notifier disabled, dropping journaled notification")
		return nil
	}

	ch, ok := d.channels[n.ChannelType]
	if !ok {
		logging.Error().
			Int64("notifier_id", n.ID).
			Str("channel", n.ChannelType).
			Msg("Journaled notification references an unknown channel type")
		return nil
	}

	msg := &Message{
		NotifierID: env.NotifierID,
		Trigger:    env.Trigger,
		Subject:    env.Subject,
		Body:       env.Body,
		Params:     env.Params,
		Config:     &n.Config,
		SessionKey: env.SessionKey,
		RatingKey:  env.RatingKey,
		UserID:     env.UserID,
	}

	start := time.Now()
	result, err := ch.Send(ctx, msg)
	if err != nil {
		metrics.RecordNotification(env.Trigger, ch.Name(), time.Since(start), err)
		return fmt.Errorf("replay delivery: %w", err)
	}
	metrics.RecordNotification(env.Trigger, ch.Name(), time.Since(start), resultError(result))
	d.logOutcome(ctx, msg, result)

	if !result.Success {
		return errors.New(result.ErrorMessage)
	}
	return nil
}

// SendTest delivers a synthetic notification through the notifier's
// channel, bypassing triggers, conditions, and the outbox. The result is
// returned to the caller rather than retried.
func (d *Dispatcher) SendTest(ctx context.Context, n *models.Notifier) (*DeliveryResult, error) {
	ch, ok := d.channels[n.ChannelType]
	if !ok {
		return nil, fmt.Errorf("unknown notification channel: %s", n.ChannelType)
	}

	msg := &Message{
		NotifierID: n.ID,
		Trigger:    "test",
		Subject:    "Vigil test notification",
		Body:       "This is a test notification from Vigil.",
		Config:     &n.Config,
	}

	start := time.Now()
	result, err := ch.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	metrics.RecordNotification("test", ch.Name(), time.Since(start), resultError(result))
	d.logOutcome(ctx, msg, result)
	return result, nil
}

// resultError converts a failed delivery result into an error for the
// metrics helper. A successful result maps to nil.
func resultError(result *DeliveryResult) error {
	if result == nil {
		return errors.New("no delivery result")
	}
	if result.Success {
		return nil
	}
	return errors.New(result.ErrorMessage)
}
