// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build nats

// This file provides NATS integration with the supervisor tree.
// It is only compiled when the "nats" build tag is enabled.
//
// Build with NATS support:
//
//	go build -tags nats -o vigil ./cmd/server

package main

import (
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/supervisor"
	"github.com/mpellar/vigil/internal/supervisor/services"
)

// AddNATSToSupervisor adds the event stream components to the supervisor
// tree's delivery layer for automatic lifecycle management.
//
// The components include:
//   - Embedded NATS server (if configured)
//   - JetStream publisher the monitor writes session events through
//   - Watermill router running the notifier consumer
//
// When added to the supervisor tree:
//   - Start() is called when the supervisor starts
//   - Shutdown() is called when the supervisor stops
//   - The service is automatically restarted on failure
//
// This function is a no-op if natsComponents is nil (NATS disabled via
// config).
func AddNATSToSupervisor(tree *supervisor.Tree, natsComponents *NATSComponents) {
	if natsComponents == nil {
		return
	}
	tree.AddDeliveryService(services.NewNATSComponentsService(natsComponents))
	logging.Info().Msg("Event stream components added to supervisor tree (delivery layer)")
}
