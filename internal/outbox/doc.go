// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package outbox provides a durable journal for pending notifications.
//
// Rendered notifications are written to BadgerDB before the first delivery
// attempt and deleted after confirmed delivery. A background replay loop
// (Service) re-delivers entries that were left pending by a transient
// failure or a process crash, with exponential backoff between attempts.
// Entries that exceed the attempt or age limits are dropped and counted.
//
// Keys are time-ordered (zero-padded enqueue timestamp plus UUID) so
// iteration replays oldest first. Values are goccy-JSON encoded Envelopes.
package outbox
