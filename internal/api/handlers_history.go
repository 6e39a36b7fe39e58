// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/models"
)

// fallback page bounds when the API config leaves them unset
const (
	defaultHistoryPageSize = 100
	maxHistoryPageSize     = 1000
)

// pageBounds resolves the default and maximum page sizes from config.
func (h *Handler) pageBounds() (def, max int) {
	def, max = defaultHistoryPageSize, maxHistoryPageSize
	if h.config != nil {
		if h.config.API.DefaultPageSize > 0 {
			def = h.config.API.DefaultPageSize
		}
		if h.config.API.MaxPageSize > 0 {
			max = h.config.API.MaxPageSize
		}
	}
	return def, max
}

// buildHistoryFilter maps query parameters onto a database.HistoryFilter.
// Paging is clamped to the configured maximum so a single request cannot
// drag an unbounded row count out of the database.
func (h *Handler) buildHistoryFilter(r *http.Request) (database.HistoryFilter, error) {
	def, max := h.pageBounds()

	filter := database.HistoryFilter{
		Users:              parseCommaSeparated(r.URL.Query().Get("user")),
		MediaTypes:         parseCommaSeparated(r.URL.Query().Get("media_type")),
		TranscodeDecisions: parseCommaSeparated(r.URL.Query().Get("transcode_decision")),
		Platforms:          parseCommaSeparated(r.URL.Query().Get("platform")),
		Search:             r.URL.Query().Get("search"),
		WatchedOnly:        getBoolParam(r, "watched"),
		OrderColumn:        r.URL.Query().Get("order_column"),
		OrderDesc:          r.URL.Query().Get("order_dir") != "asc",
		Limit:              getIntParam(r, "limit", def),
		Offset:             getIntParam(r, "offset", 0),
		Grouped:            getBoolParam(r, "grouped"),
	}

	startDate, err := parseTimeParam(r, "start_date")
	if err != nil {
		return filter, err
	}
	filter.StartDate = startDate

	endDate, err := parseTimeParam(r, "end_date")
	if err != nil {
		return filter, err
	}
	filter.EndDate = endDate

	if v := r.URL.Query().Get("user_id"); v != "" {
		userID := getIntParam(r, "user_id", 0)
		filter.UserID = &userID
	}

	if v := r.URL.Query().Get("section_id"); v != "" {
		filter.SectionID = &v
	}

	if filter.Limit > max {
		filter.Limit = max
	}

	return filter, nil
}

// History returns a filtered, paged slice of playback history.
//
// @Summary Query playback history
// @Description Returns playback history records with filtering, sorting, paging, and optional grouping of multi-part plays
// @Tags History
// @Produce json
// @Param start_date query string false "Only events started at or after this RFC 3339 time"
// @Param end_date query string false "Only events started at or before this RFC 3339 time"
// @Param user_id query int false "Filter by account id"
// @Param user query string false "Comma-separated usernames"
// @Param section_id query string false "Filter by library section"
// @Param media_type query string false "Comma-separated media types (movie, episode, track, clip)"
// @Param transcode_decision query string false "Comma-separated decisions (direct play, copy, transcode)"
// @Param platform query string false "Comma-separated platforms"
// @Param search query string false "Case-insensitive title substring"
// @Param watched query bool false "Only plays that crossed the watched threshold"
// @Param grouped query bool false "Collapse rows that belong to the same viewing session"
// @Param order_column query string false "Sort key (started_at, stopped_at, user, full_title, play_duration, paused_counter, percent_complete, platform, player)"
// @Param order_dir query string false "Sort direction, asc or desc (default desc)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} models.APIResponse{data=models.HistoryPage} "History page"
// @Failure 400 {object} models.APIResponse "Invalid filter parameters"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()

	filter, err := h.buildHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	req := HistoryRequest{Limit: filter.Limit, Offset: filter.Offset}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	page, err := h.db.GetHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query history", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   page,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// HistoryDelete removes history rows by id.
//
// @Summary Delete history records
// @Description Deletes the history rows with the given ids and reports how many were removed
// @Tags History
// @Accept json
// @Produce json
// @Param body body HistoryDeleteRequest true "Record ids to delete"
// @Success 200 {object} models.APIResponse "Number of deleted rows"
// @Failure 400 {object} models.APIResponse "Invalid request body"
// @Failure 500 {object} models.APIResponse "Delete failed"
// @Security ApiKeyAuth
// @Router /history [delete]
func (h *Handler) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req HistoryDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid record id: "+sanitizeLogValue(raw), nil)
			return
		}
		ids = append(ids, id)
	}

	deleted, err := h.db.DeleteHistory(r.Context(), ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete history", err)
		return
	}

	// Aggregates built over the deleted rows are stale now.
	h.ClearCache()

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]interface{}{"deleted": deleted},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
