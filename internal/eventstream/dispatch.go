// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build nats

package eventstream

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
)

// DecodeMessage parses a Watermill message payload back into a SessionEvent.
func DecodeMessage(msg *message.Message) (*SessionEvent, error) {
	ev, err := DecodeEvent(msg.Payload)
	if err != nil {
		metrics.RecordNATSParseFailed()
		return nil, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// ConsumerHandler adapts an event callback into a Watermill no-publish
// handler, recording consume metrics around it. An undecodable payload is
// acked and dropped since redelivery cannot fix it.
func ConsumerHandler(name string, fn func(ctx context.Context, ev *SessionEvent) error) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()
		metrics.RecordNATSConsume()

		ev, err := DecodeMessage(msg)
		if err != nil {
			logging.Error().
				Err(err).
				Str("handler", name).
				Str("message_uuid", msg.UUID).
				Msg("Dropping undecodable event message")
			return nil
		}

		if err := fn(msg.Context(), ev); err != nil {
			logging.Warn().
				Err(err).
				Str("handler", name).
				Str("event_type", ev.Type).
				Str("event_id", ev.ID.String()).
				Msg("Event handler failed, message will be retried")
			return err
		}

		metrics.RecordNATSProcessed()
		metrics.RecordNATSProcessingDuration(time.Since(start))

		logging.Trace().
			Str("handler", name).
			Str("event_type", ev.Type).
			Str("event_id", ev.ID.String()).
			Dur("duration", time.Since(start)).
			Msg("Event processed")

		return nil
	}
}
