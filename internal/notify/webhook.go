// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mpellar/vigil/internal/models"
)

// WebhookChannel implements generic HTTP webhook delivery.
type WebhookChannel struct {
	client *http.Client
}

// NewWebhookChannel creates a new generic webhook delivery channel.
func NewWebhookChannel() *WebhookChannel {
	return &WebhookChannel{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the channel identifier.
func (c *WebhookChannel) Name() string {
	return models.ChannelWebhook
}

// Validate checks if the webhook configuration is valid.
func (c *WebhookChannel) Validate(config *models.NotifierConfig) error {
	if config == nil {
		return fmt.Errorf("webhook configuration is required")
	}
	if err := ValidateWebhookURL(config.URL); err != nil {
		return err
	}
	method := strings.ToUpper(config.Method)
	if method != "" && method != http.MethodGet && method != http.MethodPost && method != http.MethodPut {
		return fmt.Errorf("webhook method must be GET, POST, or PUT")
	}
	return nil
}

// webhookPayload is the JSON body posted to the configured URL.
type webhookPayload struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	BodyHTML  string            `json:"body_html,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Send delivers one notification via HTTP webhook.
func (c *WebhookChannel) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	result := &DeliveryResult{}

	if err := c.Validate(msg.Config); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeInvalidConfig
		return result, nil
	}

	payload := webhookPayload{
		Event:     msg.Trigger,
		Timestamp: time.Now().UTC(),
		Subject:   msg.Subject,
		Body:      msg.Body,
		BodyHTML:  msg.BodyHTML,
		Data:      msg.Params,
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to marshal payload: %v", err)
		result.ErrorCode = ErrorCodeUnknown
		return result, nil
	}

	method := strings.ToUpper(msg.Config.Method)
	if method == "" {
		method = http.MethodPost
	}

	var reqBody io.Reader
	if method != http.MethodGet {
		reqBody = bytes.NewReader(jsonPayload)
	}
	req, err := http.NewRequestWithContext(ctx, method, msg.Config.URL, reqBody)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to create request: %v", err)
		result.ErrorCode = ErrorCodeUnknown
		return result, nil
	}

	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Vigil-Notifier/1.0")
	for key, value := range msg.Config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to send webhook: %v", err)
		result.ErrorCode = classifyHTTPError(err)
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}
	defer resp.Body.Close()

	result.ResponseCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		body = []byte("(failed to read response)")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		now := time.Now()
		result.Success = true
		result.DeliveredAt = &now
		return result, nil
	}

	result.ErrorMessage = fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, string(body))
	result.ErrorCode = classifyHTTPStatusCode(resp.StatusCode)
	result.IsTransient = isTransientCode(result.ErrorCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				result.RetryAfter = &seconds
			}
		}
	}

	return result, nil
}

// classifyHTTPError classifies a transport-level error into an error code.
func classifyHTTPError(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return ErrorCodeTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "refused") {
		return ErrorCodeConnectionFailed
	}

	return ErrorCodeUnknown
}

// classifyHTTPStatusCode classifies an HTTP status code into an error code.
func classifyHTTPStatusCode(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorCodeAuthFailed
	case code == http.StatusNotFound:
		return ErrorCodeRecipientNotFound
	case code == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case code == http.StatusRequestEntityTooLarge:
		return ErrorCodeContentTooLarge
	case code >= 500:
		return ErrorCodeServerError
	default:
		return ErrorCodeUnknown
	}
}
