// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

// Channel is one delivery mechanism for rendered notifications.
type Channel interface {
	// Name returns the channel identifier (webhook, email).
	Name() string

	// Validate checks the channel-specific fields of a notifier config.
	Validate(config *models.NotifierConfig) error

	// Send performs a single delivery attempt. Delivery failures are
	// reported in the result, not the error; a non-nil error means the
	// attempt itself could not be made.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
}

// Message is a rendered notification handed to a channel.
type Message struct {
	NotifierID int64
	Trigger    string
	Subject    string
	Body       string

	// BodyHTML carries a pre-rendered HTML body. When set, the email
	// channel sends it as the HTML part verbatim instead of deriving
	// one from Body. Newsletters use this for templated output.
	BodyHTML string

	// Params carries the full parameter map for channels that deliver
	// structured payloads alongside the rendered text.
	Params map[string]string

	Config *models.NotifierConfig

	SessionKey string
	RatingKey  string
	UserID     int
}

// DeliveryResult describes the outcome of one delivery attempt.
type DeliveryResult struct {
	Success     bool       `json:"success"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	// ErrorMessage and ErrorCode describe the failure when Success is
	// false. IsTransient marks failures worth retrying.
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	IsTransient  bool   `json:"is_transient,omitempty"`

	// RetryAfter carries a server-suggested retry delay, when rate
	// limited.
	RetryAfter *time.Duration `json:"retry_after,omitempty"`

	// ResponseCode is the HTTP status for webhook deliveries.
	ResponseCode int `json:"response_code,omitempty"`
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidConfig     = "INVALID_CONFIG"
	ErrorCodeInvalidRecipient  = "INVALID_RECIPIENT"
	ErrorCodeConnectionFailed  = "CONNECTION_FAILED"
	ErrorCodeAuthFailed        = "AUTH_FAILED"
	ErrorCodeRateLimited       = "RATE_LIMITED"
	ErrorCodeContentTooLarge   = "CONTENT_TOO_LARGE"
	ErrorCodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	ErrorCodeServerError       = "SERVER_ERROR"
	ErrorCodeTimeout           = "TIMEOUT"
	ErrorCodeUnknown           = "UNKNOWN"
)

// Channels returns the default channel set keyed by channel type.
func Channels() map[string]Channel {
	return map[string]Channel{
		models.ChannelWebhook: NewWebhookChannel(),
		models.ChannelEmail:   NewEmailChannel(),
	}
}

// ValidateNotifierConfig checks a notifier's channel configuration with
// the channel implementation for its type.
func ValidateNotifierConfig(channelType string, config *models.NotifierConfig) error {
	ch, ok := Channels()[channelType]
	if !ok {
		return fmt.Errorf("unknown notification channel: %s", channelType)
	}
	return ch.Validate(config)
}

// isTransientCode reports whether a delivery error code is worth
// retrying.
func isTransientCode(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited, ErrorCodeServerError:
		return true
	}
	return false
}

// ValidateEmail validates an email address format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email domain: %s", parts[1])
	}
	return nil
}

// ValidateWebhookURL validates a webhook URL.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// ValidateSMTPConfig validates the SMTP fields of a notifier config.
func ValidateSMTPConfig(config *models.NotifierConfig) error {
	if config == nil {
		return fmt.Errorf("SMTP configuration is required")
	}
	if config.SMTPHost == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if config.SMTPPort <= 0 || config.SMTPPort > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", config.SMTPPort)
	}
	if config.From == "" {
		return fmt.Errorf("from address is required")
	}
	if err := ValidateEmail(config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if len(config.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for _, to := range config.To {
		if err := ValidateEmail(to); err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
	}
	return nil
}
