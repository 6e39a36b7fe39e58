// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build !nats

package eventstream

import "context"

// StreamInitializer is a stub when NATS is not compiled in.
type StreamInitializer struct{}

// NewStreamInitializer returns an error when NATS is not compiled in.
func NewStreamInitializer(js interface{}, cfg *StreamConfig) (*StreamInitializer, error) {
	return nil, ErrNATSNotEnabled
}

// EnsureStream is a no-op stub.
func (s *StreamInitializer) EnsureStream(ctx context.Context) (interface{}, error) {
	return nil, ErrNATSNotEnabled
}

// GetStreamInfo is a no-op stub.
func (s *StreamInitializer) GetStreamInfo(ctx context.Context) (interface{}, error) {
	return nil, ErrNATSNotEnabled
}

// IsHealthy always returns false when NATS is not compiled in.
func (s *StreamInitializer) IsHealthy(ctx context.Context) bool {
	return false
}

// Config returns the stream configuration.
func (s *StreamInitializer) Config() StreamConfig {
	return StreamConfig{}
}
