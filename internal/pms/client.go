// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package pms

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/logging"
)

// ClientInterface defines the interface for Plex API operations.
// Both Client and CircuitBreakerClient implement this interface.
type ClientInterface interface {
	Ping(ctx context.Context) error
	GetSessions(ctx context.Context) ([]Session, error)
	GetIdentity(ctx context.Context) (*IdentityContainer, error)
	GetServerInfo(ctx context.Context) (*ServerInfoContainer, error)
	GetLibrarySections(ctx context.Context) ([]LibrarySection, error)
	GetRecentlyAdded(ctx context.Context, limit int) ([]LibraryMetadata, error)
	GetSectionRecentlyAdded(ctx context.Context, sectionID string, limit int) ([]LibraryMetadata, error)
	GetSectionItemCount(ctx context.Context, sectionID string) (int, error)
	GetAccounts(ctx context.Context) ([]Account, error)
	GetMetadata(ctx context.Context, ratingKey string) (*LibraryMetadata, error)
	TerminateSession(ctx context.Context, sessionID, reason string) error
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Client communicates with a Plex Media Server over its REST API.
//
// Every request carries the X-Plex-Token header and asks for JSON responses.
// An optional client-side rate limiter spaces requests out so a tight poll
// cadence stays polite toward servers that are also serving streams; HTTP 429
// responses are retried with exponential backoff regardless.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates an authenticated Plex API client from the connection settings.
func New(cfg *config.PlexConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		// Burst of one poll cycle's worth of requests so the limiter only
		// bites on sustained pressure, not on a single cycle.
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// BaseURL returns the server URL the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequestWithRateLimit executes an HTTP request with automatic retry on
// rate limiting (HTTP 429).
//
// Retry behavior:
//   - Max 5 retry attempts
//   - Exponential backoff: 1s, 2s, 4s, 8s, 16s
//   - Respects the Retry-After header (RFC 6585) when present
//   - Only retries on HTTP 429 (Too Many Requests)
//
// The caller must close the response body on success.
func (c *Client) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Rate limited. Close this response and retry.
		resp.Body.Close()

		if attempt == maxRetries {
			return nil, fmt.Errorf("rate limit exceeded after %d retries", maxRetries)
		}

		retryDelay := baseDelay * (1 << attempt) // 1s, 2s, 4s, 8s, 16s

		// The server's Retry-After header (seconds) wins over our backoff.
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				retryDelay = seconds
			}
		}

		logging.Warn().Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", maxRetries).Msg("Plex API rate limited (HTTP 429), retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(retryDelay):
			// Continue to next retry
		}
	}

	return nil, fmt.Errorf("unreachable code: retry loop should return or error")
}
