// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/monitor"
)

// breakerStater is satisfied by clients wrapped in a circuit breaker.
// The status endpoint reports the breaker state when the client
// provides one.
type breakerStater interface {
	State() string
}

// ServerInfo returns identity details of the upstream media server.
//
// @Summary Get media server info
// @Description Proxies the upstream server's identity: name, version, platform, and machine identifier
// @Tags Server
// @Produce json
// @Success 200 {object} models.APIResponse{data=pms.ServerInfoContainer} "Server info"
// @Failure 502 {object} models.APIResponse "Upstream request failed"
// @Failure 503 {object} models.APIResponse "Client not available"
// @Security ApiKeyAuth
// @Router /server/info [get]
func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Media server client not available", nil)
		return
	}

	info, err := h.client.GetServerInfo(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to reach media server", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   info,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// ServerStatus reports upstream reachability as seen by the poller.
//
// @Summary Get media server status
// @Description Reports whether the poller can reach the media server, the circuit breaker state, and the last poll and error times
// @Tags Server
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.ServerStatus} "Server status"
// @Failure 503 {object} models.APIResponse "Monitor not available"
// @Security ApiKeyAuth
// @Router /server/status [get]
func (h *Handler) ServerStatus(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Session monitor not available", nil)
		return
	}

	ms := h.monitor.Status()
	activity := h.monitor.Activity()

	status := models.ServerStatus{
		Reachable:   ms.ServerReachable,
		LastErrorAt: ms.LastErrorAt,
		LastError:   ms.LastError,
	}
	if !activity.PolledAt.IsZero() {
		at := activity.PolledAt
		status.LastPollAt = &at
	}
	if bs, ok := h.client.(breakerStater); ok {
		status.BreakerState = bs.State()
	}

	// Status must reflect this instant, not a shared cache.
	w.Header().Set("Cache-Control", "no-store")

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   status,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// ServerTerminate stops a running stream on the media server.
//
// @Summary Terminate a session
// @Description Asks the media server to stop the stream behind the given session key, optionally showing a message to the viewer
// @Tags Server
// @Accept json
// @Produce json
// @Param body body TerminateSessionRequest true "Session key and optional reason"
// @Success 200 {object} models.APIResponse "Termination requested"
// @Failure 400 {object} models.APIResponse "Invalid request body"
// @Failure 404 {object} models.APIResponse "Session not currently tracked"
// @Failure 502 {object} models.APIResponse "Upstream request failed"
// @Failure 503 {object} models.APIResponse "Monitor not available"
// @Security ApiKeyAuth
// @Router /server/terminate [post]
func (h *Handler) ServerTerminate(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Session monitor not available", nil)
		return
	}

	var req TerminateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.monitor.TerminateSession(r.Context(), req.SessionKey, req.Reason); err != nil {
		if errors.Is(err, monitor.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Session not currently tracked", nil)
			return
		}
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to terminate session", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]interface{}{"terminated": req.SessionKey},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
