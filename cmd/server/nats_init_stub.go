// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build !nats

package main

import (
	"context"

	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/monitor"
	"github.com/mpellar/vigil/internal/notify"
)

// NATSComponents is a stub for non-NATS builds.
type NATSComponents struct{}

// InitNATS is a no-op stub for non-NATS builds. Returns nil so main falls
// back to in-process dispatch.
func InitNATS(cfg *config.Config, _ *notify.Dispatcher) (*NATSComponents, error) {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("NATS_ENABLED=true but event stream support not compiled (build with -tags nats)")
	}
	return nil, nil
}

// Start is a no-op stub for non-NATS builds.
func (c *NATSComponents) Start(_ context.Context) error {
	return nil
}

// Shutdown is a no-op stub for non-NATS builds.
func (c *NATSComponents) Shutdown(_ context.Context) {}

// IsRunning returns false for non-NATS builds.
func (c *NATSComponents) IsRunning() bool {
	return false
}

// EventPublisher returns nil for non-NATS builds.
func (c *NATSComponents) EventPublisher() monitor.EventPublisher {
	return nil
}
