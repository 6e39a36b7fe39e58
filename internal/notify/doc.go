// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package notify evaluates and delivers notifications for session events.
//
// The Dispatcher is the entry point: each SessionEvent is flattened into a
// parameter map, matched against every enabled notifier (trigger switch
// plus custom conditions), rendered through the notifier's {parameter}
// templates, journaled to the outbox, and handed to the notifier's
// delivery channel. Channels implement webhook and SMTP email delivery
// with permanent-versus-transient error classification; transient failures
// retry inline with exponential backoff, then fall to the outbox replay
// loop. Every dispatch outcome is written to the notification log.
//
// Events arrive either from the NATS consumer handler or, when the stream
// is disabled, from the DirectPublisher the monitor publishes into.
package notify
