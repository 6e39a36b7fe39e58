// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

// Request types validated with go-playground/validator before any
// database work happens. Query parameters are copied into these structs
// by the handlers so the validation rules live in one place.

// HistoryRequest bounds the paging parameters of GET /history.
type HistoryRequest struct {
	Limit  int `json:"limit" validate:"min=1,max=1000"`
	Offset int `json:"offset" validate:"min=0"`
}

// HistoryDeleteRequest is the body of DELETE /history.
type HistoryDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=1000,dive,uuid"`
}

// HomeStatsRequest bounds GET /stats/home parameters.
type HomeStatsRequest struct {
	Days  int `json:"days" validate:"min=1,max=3650"`
	Count int `json:"count" validate:"min=1,max=50"`
}

// PlaysRequest selects and bounds a play-count series.
type PlaysRequest struct {
	By     string `json:"by" validate:"required,oneof=date dayofweek hourofday streamtype month"`
	Days   int    `json:"days" validate:"min=1,max=3650"`
	Months int    `json:"months" validate:"min=1,max=120"`
}

// RecentlyAddedRequest bounds GET /recently-added parameters.
type RecentlyAddedRequest struct {
	Days  int `json:"days" validate:"min=1,max=365"`
	Limit int `json:"limit" validate:"min=1,max=500"`
}

// TerminateSessionRequest is the body of POST /server/terminate.
type TerminateSessionRequest struct {
	SessionKey string `json:"session_key" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=300"`
}

// LogLimitRequest bounds the limit parameter of the notification and
// newsletter log endpoints.
type LogLimitRequest struct {
	Limit int `json:"limit" validate:"min=1,max=1000"`
}
