// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package newsletter generates and delivers scheduled digest emails of
// recently added library content.
//
// Schedules live in the database with a five-field cron expression, a
// time frame in days, and a notifier to deliver through. The Scheduler
// service checks for due schedules on an interval, resolves the
// recently-added items the watcher has recorded, renders the built-in
// or custom template, and sends the result through the notify package's
// delivery channels. Every run is written to the newsletter log.
package newsletter
