// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/models"
)

// Libraries returns all known library sections with their play totals.
//
// @Summary List libraries
// @Description Returns every library section on the server, including item counts and aggregate play totals
// @Tags Libraries
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.LibrarySection} "Library sections"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /libraries [get]
func (h *Handler) Libraries(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()

	sections, err := h.db.GetLibrarySections(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query libraries", err)
		return
	}
	if sections == nil {
		sections = []models.LibrarySection{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   sections,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// LibraryByID returns one library section.
//
// @Summary Get library
// @Description Returns a single library section by id
// @Tags Libraries
// @Produce json
// @Param id path string true "Library section id"
// @Success 200 {object} models.APIResponse{data=models.LibrarySection} "Library section"
// @Failure 404 {object} models.APIResponse "Unknown library section"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /libraries/{id} [get]
func (h *Handler) LibraryByID(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "id")

	if !h.requireDB(w) {
		return
	}

	section, err := h.db.GetLibrarySection(r.Context(), sectionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Library section not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query library section", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   section,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// RecentlyAdded returns recently added library items.
//
// @Summary List recently added items
// @Description Returns items detected in library scans over the given window, newest first
// @Tags Libraries
// @Produce json
// @Param days query int false "Look-back window in days (default 7)"
// @Param section_id query string false "Restrict to one library section"
// @Param limit query int false "Maximum items to return (default 50)"
// @Success 200 {object} models.APIResponse{data=[]models.RecentlyAddedItem} "Recently added items"
// @Failure 400 {object} models.APIResponse "Invalid parameters"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /recently-added [get]
func (h *Handler) RecentlyAdded(w http.ResponseWriter, r *http.Request) {
	req := RecentlyAddedRequest{
		Days:  getIntParam(r, "days", 7),
		Limit: getIntParam(r, "limit", 50),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	sectionID := r.URL.Query().Get("section_id")

	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	since := time.Now().AddDate(0, 0, -req.Days)

	items, err := h.db.GetRecentlyAdded(r.Context(), since, sectionID, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query recently added items", err)
		return
	}
	if items == nil {
		items = []models.RecentlyAddedItem{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   items,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}
