// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package pms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// requestConfig holds configuration for building HTTP requests
type requestConfig struct {
	method      string
	path        string
	query       url.Values
	acceptJSON  bool
	expectOK    bool // if true, check for 200 OK status
	expectNoErr bool // if true, also accept 204 No Content
}

// doRequest executes a Plex API request and decodes the JSON response into
// result when a non-nil pointer is given.
func (c *Client) doRequest(ctx context.Context, cfg requestConfig, result interface{}) error {
	reqURL := fmt.Sprintf("%s%s", c.baseURL, cfg.path)

	req, err := http.NewRequestWithContext(ctx, cfg.method, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Plex-Token", c.token)

	if cfg.acceptJSON {
		req.Header.Set("Accept", "application/json")
	}

	if len(cfg.query) > 0 {
		req.URL.RawQuery = cfg.query.Encode()
	}

	resp, err := c.doRequestWithRateLimit(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if cfg.expectNoErr {
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, statusDetail(resp))
		}
	} else if cfg.expectOK && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, statusDetail(resp))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// doJSONRequest is a convenience wrapper for JSON API requests
func (c *Client) doJSONRequest(ctx context.Context, path string, result interface{}) error {
	return c.doRequest(ctx, requestConfig{
		method:     http.MethodGet,
		path:       path,
		acceptJSON: true,
		expectOK:   true,
	}, result)
}

// doJSONRequestWithQuery is a convenience wrapper for JSON API requests with query parameters
func (c *Client) doJSONRequestWithQuery(ctx context.Context, path string, query url.Values, result interface{}) error {
	return c.doRequest(ctx, requestConfig{
		method:     http.MethodGet,
		path:       path,
		query:      query,
		acceptJSON: true,
		expectOK:   true,
	}, result)
}

// statusDetail returns the status text plus a bounded slice of the body,
// which for Plex errors usually names the cause (bad token, missing key).
func statusDetail(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, string(body))
}
