// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import (
	"time"

	"github.com/google/uuid"
)

// Newsletter template identifiers. Built-in templates ship with the
// binary; custom bodies may be stored on the schedule itself.
const (
	NewsletterTemplateRecentlyAdded = "recently_added"
)

// NewsletterSchedule is a stored newsletter definition. CronExpr is a
// five-field cron line evaluated in the server's local time zone.
type NewsletterSchedule struct {
	ID       int64  `json:"id"`
	Name     string `json:"name" validate:"required,max=120"`
	Enabled  bool   `json:"enabled"`
	CronExpr string `json:"cron_expr" validate:"required"`

	Template  string `json:"template" validate:"required"`
	TimeFrame int    `json:"time_frame" validate:"min=1,max=90"` // Days of recently-added to include
	Subject   string `json:"subject,omitempty"`
	BodyHTML  string `json:"body_html,omitempty"` // Overrides the built-in template when set

	// Delivery target. NotifierID references an email notifier whose
	// SMTP settings carry the send.
	NotifierID int64 `json:"notifier_id" validate:"required"`

	// Library filter. Empty means all sections.
	SectionIDs []string `json:"section_ids,omitempty"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewsletterLogEntry records one newsletter execution.
type NewsletterLogEntry struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID int64     `json:"schedule_id"`
	Subject    string    `json:"subject"`
	ItemCount  int       `json:"item_count"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
