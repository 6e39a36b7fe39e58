// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package models

import "time"

// APIResponse is the envelope every JSON endpoint returns.
//
// Status is "success" or "error"; Data carries the payload on success and
// Error the details on failure. Metadata is always present.
//
// Example:
//
//	{
//	  "status": "success",
//	  "data": {"sessions": [...]},
//	  "metadata": {"timestamp": "2026-02-11T12:00:00Z", "query_time_ms": 12}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the structured error payload.
//
// Stable codes: VALIDATION_ERROR, DATABASE_ERROR, NOT_FOUND,
// UPSTREAM_ERROR, UNAUTHORIZED, RATE_LIMIT_EXCEEDED, INTERNAL_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
