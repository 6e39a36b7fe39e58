// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import (
	"time"

	"github.com/google/uuid"
)

// Trigger kinds a notifier can subscribe to. Playback triggers fire from
// session transitions, library triggers from the recently-added watcher,
// server triggers from reachability changes.
const (
	TriggerPlay       = "on_play"
	TriggerStop       = "on_stop"
	TriggerPause      = "on_pause"
	TriggerResume     = "on_resume"
	TriggerBuffer     = "on_buffer"
	TriggerWatched    = "on_watched"
	TriggerConcurrent = "on_concurrent"
	TriggerNewDevice  = "on_newdevice"
	TriggerCreated    = "on_created"
	TriggerServerDown = "on_server_down"
	TriggerServerUp   = "on_server_up"
)

// TriggerKinds lists every recognised trigger, in display order.
var TriggerKinds = []string{
	TriggerPlay,
	TriggerStop,
	TriggerPause,
	TriggerResume,
	TriggerBuffer,
	TriggerWatched,
	TriggerConcurrent,
	TriggerNewDevice,
	TriggerCreated,
	TriggerServerDown,
	TriggerServerUp,
}

// Condition operators. String operators compare case-insensitively;
// numeric operators parse both sides as floats and fail the condition
// when either side does not parse.
const (
	OperatorIs          = "is"
	OperatorIsNot       = "is not"
	OperatorContains    = "contains"
	OperatorNotContains = "does not contain"
	OperatorBeginsWith  = "begins with"
	OperatorEndsWith    = "ends with"
	OperatorGreater     = ">"
	OperatorGreaterEq   = ">="
	OperatorLess        = "<"
	OperatorLessEq      = "<="
)

// Delivery channel types.
const (
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
)

// NotifierCondition is one filter clause. All conditions on a notifier
// must hold for a trigger to fire. For positive operators a value list
// matches when any entry satisfies the operator; for the negated
// operators (is not, does not contain) every entry must satisfy it.
type NotifierCondition struct {
	Field    string   `json:"field" validate:"required"`
	Operator string   `json:"operator" validate:"required,oneof=is 'is not' contains 'does not contain' 'begins with' 'ends with' > >= < <="`
	Values   []string `json:"values" validate:"required,min=1"`
}

// Notifier is a stored notification agent configuration. Triggers map
// trigger kind to enabled, Subjects and Bodies carry the per-trigger
// text templates with {parameter} placeholders.
type Notifier struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"required,max=120"`
	ChannelType string `json:"channel_type" validate:"required,oneof=webhook email"`
	Enabled     bool   `json:"enabled"`

	Triggers   map[string]bool     `json:"triggers"`
	Conditions []NotifierCondition `json:"conditions,omitempty"`
	Subjects   map[string]string   `json:"subjects,omitempty"`
	Bodies     map[string]string   `json:"bodies,omitempty"`

	// Channel settings. Webhook uses URL, Method and Headers; email uses
	// the SMTP block.
	Config NotifierConfig `json:"config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotifierConfig holds channel-specific delivery settings.
type NotifierConfig struct {
	// Webhook
	URL     string            `json:"url,omitempty" validate:"omitempty,url"`
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT"`
	Headers map[string]string `json:"headers,omitempty"`

	// Email
	SMTPHost    string   `json:"smtp_host,omitempty"`
	SMTPPort    int      `json:"smtp_port,omitempty" validate:"omitempty,min=1,max=65535"`
	SMTPUser    string   `json:"smtp_user,omitempty"`
	SMTPPass    string   `json:"smtp_pass,omitempty"`
	From        string   `json:"from,omitempty" validate:"omitempty,email"`
	To          []string `json:"to,omitempty" validate:"omitempty,dive,email"`
	UseTLS      bool     `json:"use_tls,omitempty"`
	HTMLSupport bool     `json:"html_support,omitempty"`
}

// SubjectFor returns the configured subject template for a trigger, or
// the built-in default.
func (n *Notifier) SubjectFor(trigger string) string {
	if s, ok := n.Subjects[trigger]; ok && s != "" {
		return s
	}
	return DefaultSubject(trigger)
}

// BodyFor returns the configured body template for a trigger, or the
// built-in default.
func (n *Notifier) BodyFor(trigger string) string {
	if b, ok := n.Bodies[trigger]; ok && b != "" {
		return b
	}
	return DefaultBody(trigger)
}

// DefaultSubject returns the built-in subject template for a trigger.
func DefaultSubject(trigger string) string {
	return "Vigil ({server_name})"
}

// DefaultBody returns the built-in body template for a trigger.
func DefaultBody(trigger string) string {
	switch trigger {
	case TriggerPlay:
		return "{user} ({player}) started playing {title}."
	case TriggerStop:
		return "{user} ({player}) has stopped {title}."
	case TriggerPause:
		return "{user} ({player}) has paused {title}."
	case TriggerResume:
		return "{user} ({player}) has resumed {title}."
	case TriggerBuffer:
		return "{user} ({player}) is buffering {title}."
	case TriggerWatched:
		return "{user} ({player}) has watched {title}."
	case TriggerConcurrent:
		return "{user} has {user_streams} concurrent streams."
	case TriggerNewDevice:
		return "{user} is streaming from a new device: {player}."
	case TriggerCreated:
		return "{title} was recently added to {library_name}."
	case TriggerServerDown:
		return "The media server {server_name} is down."
	case TriggerServerUp:
		return "The media server {server_name} is back up."
	default:
		return "Notification from {server_name}."
	}
}

// NotifyLogEntry records one delivery attempt for the notification log.
type NotifyLogEntry struct {
	ID         uuid.UUID `json:"id"`
	NotifierID int64     `json:"notifier_id"`
	Trigger    string    `json:"trigger"`
	SessionKey string    `json:"session_key,omitempty"`
	RatingKey  string    `json:"rating_key,omitempty"`
	UserID     int       `json:"user_id,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}
