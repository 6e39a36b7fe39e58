// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package pms

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetSessions retrieves active playback sessions from the server.
//
// Endpoint: GET /status/sessions
// Returns an empty slice when nothing is playing; the server omits the
// Metadata array entirely in that case.
func (c *Client) GetSessions(ctx context.Context) ([]Session, error) {
	var sessionsResp SessionsResponse
	if err := c.doJSONRequest(ctx, "/status/sessions", &sessionsResp); err != nil {
		return nil, err
	}

	if sessionsResp.MediaContainer.Metadata == nil {
		return []Session{}, nil
	}

	return sessionsResp.MediaContainer.Metadata, nil
}

// GetIdentity retrieves the server's machine identifier and version.
//
// Endpoint: GET /identity
// This endpoint answers without authentication and is the cheapest probe
// for reachability checks.
func (c *Client) GetIdentity(ctx context.Context) (*IdentityContainer, error) {
	var identityResp IdentityResponse
	if err := c.doJSONRequest(ctx, "/identity", &identityResp); err != nil {
		return nil, err
	}
	return &identityResp.MediaContainer, nil
}

// GetServerInfo retrieves the server's capability summary.
//
// Endpoint: GET /
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfoContainer, error) {
	var infoResp ServerInfoResponse
	if err := c.doJSONRequest(ctx, "/", &infoResp); err != nil {
		return nil, err
	}
	return &infoResp.MediaContainer, nil
}

// GetLibrarySections retrieves all library sections on the server.
//
// Endpoint: GET /library/sections
func (c *Client) GetLibrarySections(ctx context.Context) ([]LibrarySection, error) {
	var sectionsResp LibrarySectionsResponse
	if err := c.doJSONRequest(ctx, "/library/sections", &sectionsResp); err != nil {
		return nil, err
	}

	if sectionsResp.MediaContainer.Directory == nil {
		return []LibrarySection{}, nil
	}

	return sectionsResp.MediaContainer.Directory, nil
}

// GetRecentlyAdded retrieves the newest items across all libraries.
//
// Endpoint: GET /library/recentlyAdded
// The limit bounds the container size; 0 uses the server default.
func (c *Client) GetRecentlyAdded(ctx context.Context, limit int) ([]LibraryMetadata, error) {
	query := url.Values{}
	if limit > 0 {
		query.Add("X-Plex-Container-Start", "0")
		query.Add("X-Plex-Container-Size", strconv.Itoa(limit))
	}

	var libResp LibraryResponse
	if err := c.doJSONRequestWithQuery(ctx, "/library/recentlyAdded", query, &libResp); err != nil {
		return nil, err
	}

	if libResp.MediaContainer.Metadata == nil {
		return []LibraryMetadata{}, nil
	}

	return libResp.MediaContainer.Metadata, nil
}

// GetSectionRecentlyAdded retrieves the newest items of one library section.
//
// Endpoint: GET /library/sections/{id}/recentlyAdded
func (c *Client) GetSectionRecentlyAdded(ctx context.Context, sectionID string, limit int) ([]LibraryMetadata, error) {
	query := url.Values{}
	if limit > 0 {
		query.Add("X-Plex-Container-Start", "0")
		query.Add("X-Plex-Container-Size", strconv.Itoa(limit))
	}

	var libResp LibraryResponse
	path := fmt.Sprintf("/library/sections/%s/recentlyAdded", url.PathEscape(sectionID))
	if err := c.doJSONRequestWithQuery(ctx, path, query, &libResp); err != nil {
		return nil, err
	}

	if libResp.MediaContainer.Metadata == nil {
		return []LibraryMetadata{}, nil
	}

	return libResp.MediaContainer.Metadata, nil
}

// GetSectionItemCount retrieves the number of items in a library section
// without fetching the items themselves.
//
// Endpoint: GET /library/sections/{id}/all
// A zero container size makes the server answer with totalSize only.
func (c *Client) GetSectionItemCount(ctx context.Context, sectionID string) (int, error) {
	query := url.Values{}
	query.Add("X-Plex-Container-Start", "0")
	query.Add("X-Plex-Container-Size", "0")

	var libResp LibraryResponse
	path := fmt.Sprintf("/library/sections/%s/all", url.PathEscape(sectionID))
	if err := c.doJSONRequestWithQuery(ctx, path, query, &libResp); err != nil {
		return 0, err
	}

	if libResp.MediaContainer.TotalSize > 0 {
		return libResp.MediaContainer.TotalSize, nil
	}
	return libResp.MediaContainer.Size, nil
}

// GetAccounts retrieves the server-local user accounts. The list includes
// the owner (id 1) plus managed and shared users that have touched the
// server.
//
// Endpoint: GET /accounts
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var accountsResp AccountsResponse
	if err := c.doJSONRequest(ctx, "/accounts", &accountsResp); err != nil {
		return nil, err
	}

	if accountsResp.MediaContainer.Account == nil {
		return []Account{}, nil
	}

	return accountsResp.MediaContainer.Account, nil
}

// GetMetadata retrieves full metadata for a single item by rating key.
//
// Endpoint: GET /library/metadata/{ratingKey}
func (c *Client) GetMetadata(ctx context.Context, ratingKey string) (*LibraryMetadata, error) {
	var libResp LibraryResponse
	path := fmt.Sprintf("/library/metadata/%s", url.PathEscape(ratingKey))
	if err := c.doJSONRequest(ctx, path, &libResp); err != nil {
		return nil, err
	}

	if len(libResp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("metadata not found for rating key %s", ratingKey)
	}

	return &libResp.MediaContainer.Metadata[0], nil
}

// TerminateSession stops an active stream, showing the reason to the viewer.
//
// Endpoint: GET /status/sessions/terminate
// The server uses GET for this mutation; it answers 200 with an empty body.
func (c *Client) TerminateSession(ctx context.Context, sessionID, reason string) error {
	query := url.Values{}
	query.Add("sessionId", sessionID)
	if reason != "" {
		query.Add("reason", reason)
	}

	return c.doRequest(ctx, requestConfig{
		method:      "GET",
		path:        "/status/sessions/terminate",
		query:       query,
		expectNoErr: true,
	}, nil)
}

// Ping checks server reachability by hitting the identity endpoint and
// discarding the payload.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetIdentity(ctx)
	return err
}
