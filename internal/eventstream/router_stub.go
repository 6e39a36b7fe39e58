// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build !nats

package eventstream

import "context"

// Router is a stub for builds without NATS support.
type Router struct{}

// NewRouter returns ErrNATSNotEnabled when NATS support is not compiled in.
func NewRouter(cfg *RouterConfig, poisonPublisher interface{}, logger interface{}) (*Router, error) {
	return nil, ErrNATSNotEnabled
}

// Run returns ErrNATSNotEnabled.
func (r *Router) Run(ctx context.Context) error {
	return ErrNATSNotEnabled
}

// Running returns a closed channel.
func (r *Router) Running() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Close is a no-op.
func (r *Router) Close() error {
	return nil
}

// IsRunning always returns false.
func (r *Router) IsRunning() bool {
	return false
}
