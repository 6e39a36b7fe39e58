// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

// EmailChannel implements email delivery via SMTP.
type EmailChannel struct {
	defaultTimeout time.Duration
}

// NewEmailChannel creates a new email delivery channel.
func NewEmailChannel() *EmailChannel {
	return &EmailChannel{
		defaultTimeout: 30 * time.Second,
	}
}

// Name returns the channel identifier.
func (c *EmailChannel) Name() string {
	return models.ChannelEmail
}

// Validate checks if the SMTP configuration is valid.
func (c *EmailChannel) Validate(config *models.NotifierConfig) error {
	return ValidateSMTPConfig(config)
}

// Send delivers one notification via email. All configured recipients
// are addressed in a single SMTP session.
func (c *EmailChannel) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	result := &DeliveryResult{}

	if err := c.Validate(msg.Config); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeInvalidConfig
		return result, nil
	}

	body := c.buildMessage(msg)

	if err := c.sendSMTP(ctx, msg.Config, body); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = classifyEmailError(err)
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}

	now := time.Now()
	result.Success = true
	result.DeliveredAt = &now
	return result, nil
}

// buildMessage constructs the email message with headers.
func (c *EmailChannel) buildMessage(msg *Message) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: Vigil <%s>\r\n", msg.Config.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.Config.To, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.BodyHTML != "" || msg.Config.HTMLSupport {
		// Multipart message with both plaintext and an HTML rendering.
		// A pre-rendered BodyHTML is sent as-is; otherwise the HTML part
		// is derived from the plaintext body.
		htmlPart := msg.BodyHTML
		if htmlPart == "" {
			htmlPart = htmlBody(msg.Body)
		}
		boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
		b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
		b.WriteString("\r\n")

		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.Body)
		b.WriteString("\r\n")

		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(htmlPart)
		b.WriteString("\r\n")

		b.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.Body)
	}

	return b.String()
}

// htmlBody wraps plaintext notification text in a minimal HTML body.
func htmlBody(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>\r\n")
	return "<html><body>" + escaped + "</body></html>"
}

// sendSMTP sends the email via SMTP.
func (c *EmailChannel) sendSMTP(ctx context.Context, config *models.NotifierConfig, msg string) error {
	addr := fmt.Sprintf("%s:%d", config.SMTPHost, config.SMTPPort)

	dialer := &net.Dialer{Timeout: c.defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if config.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if config.SMTPUser != "" && config.SMTPPass != "" {
		auth := smtp.PlainAuth("", config.SMTPUser, config.SMTPPass, config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, to := range config.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", to, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// The message is accepted once DATA completes; a failed QUIT does
	// not undo delivery.
	if err := client.Quit(); err != nil {
		return nil
	}

	return nil
}

// classifyEmailError classifies an SMTP error into an error code.
func classifyEmailError(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "authentication") || strings.Contains(errStr, "auth") {
		return ErrorCodeAuthFailed
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect") {
		return ErrorCodeConnectionFailed
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return ErrorCodeTimeout
	}
	if strings.Contains(errStr, "recipient") || strings.Contains(errStr, "mailbox") {
		return ErrorCodeRecipientNotFound
	}
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "limit") {
		return ErrorCodeRateLimited
	}

	return ErrorCodeUnknown
}
