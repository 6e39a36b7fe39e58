// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build !nats

package eventstream

import "context"

// Subscriber is a stub when NATS dependencies are not compiled in.
// Build with -tags=nats to enable the Watermill subscriber.
type Subscriber struct{}

// NewSubscriber returns an error when NATS is not compiled in.
func NewSubscriber(cfg *SubscriberConfig, logger interface{}) (*Subscriber, error) {
	return nil, ErrNATSNotEnabled
}

// Subscribe is a stub that returns an error.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan interface{}, error) {
	return nil, ErrNATSNotEnabled
}

// WatermillSubscriber returns nil for the stub.
func (s *Subscriber) WatermillSubscriber() interface{} {
	return nil
}

// Close is a no-op stub.
func (s *Subscriber) Close() error {
	return nil
}
