// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package monitor polls the media server for activity and turns the raw
// session snapshots into playback transitions, history records and
// events.
//
// The package has three moving parts:
//
//   - Tracker: a pure state machine fed one poll snapshot at a time. It
//     diffs each snapshot against the sessions it already tracks and
//     emits ordered transitions (play, pause, resume, buffer, watched,
//     progress, stop, concurrent) together with finished history
//     records.
//   - Monitor: the polling service. It drives the Tracker on a ticker,
//     persists stop records, upserts users, detects new devices, tracks
//     server reachability and hands events to the configured publisher
//     and WebSocket broadcaster.
//   - recently-added watcher: a second, slower ticker that diffs the
//     server's recentlyAdded feeds into the recently_added table and
//     batches settled items into created events.
//
// The Tracker never touches the network or the database, which keeps
// the transition semantics testable with plain table tests.
package monitor
