// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

/*
Package models defines data structures shared across the Vigil application.

This package contains all data models used throughout the application:
database row types, API request/response structures and internal data
transfer objects. It is the single source of truth for data structure
definitions and carries no behavior beyond small formatting helpers.

Key Components:

  - ActiveSession: one currently-playing stream from the session poller
  - Activity: the full poll snapshot returned by /api/v1/activity
  - HistoryRecord: completed (or in-flight) playback history row
  - Notifier: stored notification agent with triggers and conditions
  - NewsletterSchedule: cron-driven digest definition
  - APIResponse: standardized API response wrapper

Model Categories:

1. Session Models:
  - ActiveSession, Activity and the playback state constants

2. Database Models:
  - HistoryRecord, User, LibrarySection, RecentlyAddedItem,
    NotifyLogEntry, NewsletterLogEntry

3. API Models:
  - APIResponse, APIError, Metadata, HistoryPage, HomeStats and the
    per-chart stats shapes

4. Notification Models:
  - Notifier, NotifierCondition, NotifierConfig plus the trigger kind,
    operator and channel constants

Pointer fields mark values that are absent for some media types, for
example ParentTitle on a movie row. Durations are stored in seconds and
offsets in milliseconds, matching the media server's wire format.
*/
package models
