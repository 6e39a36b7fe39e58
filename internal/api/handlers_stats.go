// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/models"
)

// This file contains the aggregated statistics endpoints backing the
// dashboard:
//   - StatsHome: the home page stat cards (top media, users, platforms)
//   - StatsPlays: play count series grouped by date, weekday, hour,
//     stream type, or month
//   - StatsUser: per-user watch time and player breakdown
//   - StatsLibrary: per-library watch time and user breakdown
//
// All statistics run through StatsQueryExecutor for short-TTL caching.
// The grouped query parameter collapses resumed plays into a single
// logical viewing before aggregating.

// StatsHome returns the home page statistics lists.
//
// @Summary Get home statistics
// @Description Returns the stat cards shown on the dashboard home page: top and popular media, top users, platforms, libraries, and most concurrent streams
// @Tags Statistics
// @Produce json
// @Param days query int false "Look-back window in days (default 30)"
// @Param count query int false "Rows per list (default 10)"
// @Param grouped query bool false "Collapse resumed plays before counting"
// @Success 200 {object} models.APIResponse{data=models.HomeStats} "Home statistics"
// @Failure 400 {object} models.APIResponse "Invalid parameters"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /stats/home [get]
func (h *Handler) StatsHome(w http.ResponseWriter, r *http.Request) {
	req := HomeStatsRequest{
		Days:  getIntParam(r, "days", 30),
		Count: getIntParam(r, "count", 10),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	grouped := getBoolParam(r, "grouped")

	executor := NewStatsQueryExecutor(h)
	executor.Execute(w, r, "StatsHome", struct {
		Days    int
		Count   int
		Grouped bool
	}{req.Days, req.Count, grouped}, func(ctx context.Context) (interface{}, error) {
		return h.db.GetHomeStats(ctx, req.Days, req.Count, grouped)
	})
}

// StatsPlays returns a play count series for graphing.
//
// @Summary Get play count series
// @Description Returns play counts bucketed by date, day of week, hour of day, stream type, or month, ready for chart rendering
// @Tags Statistics
// @Produce json
// @Param by query string true "Bucketing dimension: date, dayofweek, hourofday, streamtype, or month"
// @Param days query int false "Look-back window in days for daily series (default 30)"
// @Param months query int false "Look-back window in months for the monthly series (default 12)"
// @Param grouped query bool false "Collapse resumed plays before counting"
// @Success 200 {object} models.APIResponse{data=models.PlaysSeries} "Play count series"
// @Failure 400 {object} models.APIResponse "Invalid parameters"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /stats/plays [get]
func (h *Handler) StatsPlays(w http.ResponseWriter, r *http.Request) {
	req := PlaysRequest{
		By:     r.URL.Query().Get("by"),
		Days:   getIntParam(r, "days", 30),
		Months: getIntParam(r, "months", 12),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	grouped := getBoolParam(r, "grouped")

	executor := NewStatsQueryExecutor(h)
	executor.Execute(w, r, "StatsPlays", struct {
		By      string
		Days    int
		Months  int
		Grouped bool
	}{req.By, req.Days, req.Months, grouped}, func(ctx context.Context) (interface{}, error) {
		switch req.By {
		case "date":
			return h.db.GetPlaysByDate(ctx, req.Days, grouped)
		case "dayofweek":
			return h.db.GetPlaysByDayOfWeek(ctx, req.Days, grouped)
		case "hourofday":
			return h.db.GetPlaysByHourOfDay(ctx, req.Days, grouped)
		case "streamtype":
			return h.db.GetPlaysByStreamType(ctx, req.Days, grouped)
		default: // "month", guaranteed by validation
			return h.db.GetPlaysPerMonth(ctx, req.Months, grouped)
		}
	})
}

// StatsUser returns the watch time and player breakdown for one user.
//
// @Summary Get per-user statistics
// @Description Returns watch time over standard windows plus a player breakdown for the given account
// @Tags Statistics
// @Produce json
// @Param id path int true "Account id"
// @Param grouped query bool false "Collapse resumed plays before counting"
// @Success 200 {object} models.APIResponse{data=models.UserStats} "User statistics"
// @Failure 400 {object} models.APIResponse "Invalid user id"
// @Failure 404 {object} models.APIResponse "Unknown user"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /stats/user/{id} [get]
func (h *Handler) StatsUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user id", nil)
		return
	}
	grouped := getBoolParam(r, "grouped")

	if !h.requireDB(w) {
		return
	}

	// Resolve the user first so unknown ids are a 404, not an empty
	// stats bundle.
	user, err := h.db.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load user", err)
		return
	}

	executor := NewStatsQueryExecutor(h)
	executor.Execute(w, r, "StatsUser", struct {
		UserID  int
		Grouped bool
	}{userID, grouped}, func(ctx context.Context) (interface{}, error) {
		watchTime, err := h.db.GetUserWatchTimeStats(ctx, userID, grouped)
		if err != nil {
			return nil, err
		}
		players, err := h.db.GetUserPlayerStats(ctx, userID, grouped)
		if err != nil {
			return nil, err
		}
		return &models.UserStats{
			UserID:    user.UserID,
			Username:  user.Username,
			WatchTime: watchTime,
			Players:   players,
		}, nil
	})
}

// StatsLibrary returns the watch time and user breakdown for one library.
//
// @Summary Get per-library statistics
// @Description Returns watch time over standard windows plus a per-user breakdown for the given library section
// @Tags Statistics
// @Produce json
// @Param id path string true "Library section id"
// @Param grouped query bool false "Collapse resumed plays before counting"
// @Success 200 {object} models.APIResponse{data=models.LibraryStats} "Library statistics"
// @Failure 404 {object} models.APIResponse "Unknown library section"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /stats/library/{id} [get]
func (h *Handler) StatsLibrary(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "id")
	grouped := getBoolParam(r, "grouped")

	if !h.requireDB(w) {
		return
	}

	section, err := h.db.GetLibrarySection(r.Context(), sectionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Library section not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load library section", err)
		return
	}

	executor := NewStatsQueryExecutor(h)
	executor.Execute(w, r, "StatsLibrary", struct {
		SectionID string
		Grouped   bool
	}{sectionID, grouped}, func(ctx context.Context) (interface{}, error) {
		watchTime, err := h.db.GetLibraryWatchTimeStats(ctx, sectionID, grouped)
		if err != nil {
			return nil, err
		}
		users, err := h.db.GetLibraryUserStats(ctx, sectionID, grouped)
		if err != nil {
			return nil, err
		}
		return &models.LibraryStats{
			SectionID: section.SectionID,
			Name:      section.Name,
			WatchTime: watchTime,
			Users:     users,
		}, nil
	})
}
