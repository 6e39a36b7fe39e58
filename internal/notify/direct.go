// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"context"
	"fmt"

	"github.com/mpellar/vigil/internal/eventstream"
)

// DirectPublisher hands session events straight to the dispatcher,
// bypassing the event stream. It is wired in place of the NATS publisher
// when the embedded stream is disabled, so the monitor publishes the
// same way in both modes.
type DirectPublisher struct {
	dispatcher *Dispatcher
}

// NewDirectPublisher creates a publisher that dispatches in-process.
func NewDirectPublisher(d *Dispatcher) *DirectPublisher {
	return &DirectPublisher{dispatcher: d}
}

// PublishSessionEvent validates and dispatches one event. Validation
// mirrors the encode step of the stream path so both modes reject the
// same malformed events.
func (p *DirectPublisher) PublishSessionEvent(ctx context.Context, ev *eventstream.SessionEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("direct publish: %w", err)
	}
	ev.SetDedupeKey()
	return p.dispatcher.HandleEvent(ctx, ev)
}
