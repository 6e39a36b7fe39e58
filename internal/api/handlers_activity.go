// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"net/http"
	"time"

	"github.com/mpellar/vigil/internal/models"
)

// Activity returns the current playback activity snapshot.
//
// The snapshot comes from the poller's last completed cycle, not a
// fresh upstream call, so this endpoint stays fast and cheap even when
// the media server is slow or down. ServerReachable and PolledAt tell
// clients how fresh the data is.
//
// @Summary Get current playback activity
// @Description Returns all currently playing sessions with stream counts and bandwidth totals from the most recent poll
// @Tags Activity
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.Activity} "Current activity snapshot"
// @Failure 503 {object} models.APIResponse "Monitor not available"
// @Security ApiKeyAuth
// @Router /activity [get]
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Session monitor not available", nil)
		return
	}

	activity := h.monitor.Activity()

	// Live data must never be served from shared caches.
	w.Header().Set("Cache-Control", "no-store")

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   activity,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
