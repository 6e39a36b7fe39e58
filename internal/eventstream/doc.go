// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package eventstream carries session lifecycle events from the monitor to
// the notifier over NATS JetStream.
//
// The monitor publishes a SessionEvent for every transition it wants acted
// on (play, stop, pause, resume, buffer, watched, concurrent, newdevice,
// created, server_down, server_up). Events flow through a single JetStream
// stream covering the playback.> and dlq.> subjects; the notifier consumes
// them through a Watermill router whose middleware stack handles panics,
// retries with backoff, deduplicates on the event's logical key, and parks
// poisoned messages under dlq.playback.
//
// The NATS transport compiles only with the nats build tag. Without it,
// every constructor in this package returns ErrNATSNotEnabled and the
// monitor hands events straight to the notifier in-process instead.
package eventstream
