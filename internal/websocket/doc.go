// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package websocket pushes live monitoring updates to connected dashboard
clients.

A single Hub owns the client registry and a bounded broadcast queue.
The monitor publishes an activity snapshot after every poll cycle and a
transition message for each session lifecycle change; the
recently-added watcher publishes settled library batches; the notifier
publishes delivery outcomes. Each connected client runs a read pump and
a write pump over a gorilla/websocket connection.

Message framing is {"type": ..., "data": ...} with these types:

  - activity: full models.Activity snapshot (sessions plus counts)
  - transition: one session change, kind play|pause|resume|buffer|stop|watched
  - recently_added: a settled batch of newly detected library items
  - notification: a delivery outcome for the notification feed
  - ping / pong: application-level keepalive initiated by the client

Delivery is advisory. The hub never blocks a publisher: a full
broadcast queue drops the message, and a client that stops draining its
send buffer is disconnected. Clients are expected to resync from the
REST API after a reconnect, so a dropped update is a cosmetic gap, not
data loss.

The hub runs under the supervision tree via RunWithContext, which
closes every client on context cancellation and returns ctx.Err() so a
supervisor restart begins with an empty registry. Fan-out and shutdown
iterate clients in registration order to keep behavior reproducible.

The HTTP upgrade lives in internal/api; it wraps the accepted
connection with NewClient, registers it, and calls Start.
*/
package websocket
