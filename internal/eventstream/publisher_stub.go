// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build !nats

package eventstream

import "context"

// Publisher is a stub when NATS dependencies are not compiled in.
// Build with -tags=nats to enable the Watermill publisher.
type Publisher struct{}

// NewPublisher returns an error when NATS is not compiled in.
func NewPublisher(cfg PublisherConfig, logger interface{}) (*Publisher, error) {
	return nil, ErrNATSNotEnabled
}

// Publish is a stub that returns an error.
func (p *Publisher) Publish(ctx context.Context, topic string, msg interface{}) error {
	return ErrNATSNotEnabled
}

// PublishSessionEvent is a stub that returns an error.
func (p *Publisher) PublishSessionEvent(ctx context.Context, ev *SessionEvent) error {
	return ErrNATSNotEnabled
}

// Close is a no-op stub.
func (p *Publisher) Close() error {
	return nil
}

// WatermillPublisher returns nil for the stub.
func (p *Publisher) WatermillPublisher() interface{} {
	return nil
}
