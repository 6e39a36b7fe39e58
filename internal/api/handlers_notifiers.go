// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/notify"
)

// notifierIDParam parses the {id} path segment of notifier routes.
func notifierIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid notifier id", nil)
		return 0, false
	}
	return id, true
}

// validateNotifier runs the struct rules plus the cross-field checks the
// validator tags cannot express: trigger keys must be known, and the
// channel config must satisfy its channel implementation.
func validateNotifier(w http.ResponseWriter, n *models.Notifier) bool {
	if apiErr := validateRequest(n); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return false
	}

	for trigger := range n.Triggers {
		if !knownTrigger(trigger) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown trigger: "+sanitizeLogValue(trigger), nil)
			return false
		}
	}

	if err := notify.ValidateNotifierConfig(n.ChannelType, &n.Config); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}

	return true
}

func knownTrigger(trigger string) bool {
	for _, known := range models.TriggerKinds {
		if trigger == known {
			return true
		}
	}
	return false
}

// Notifiers returns all configured notification agents.
//
// @Summary List notifiers
// @Description Returns every configured notification agent with its triggers, conditions, and channel settings
// @Tags Notifications
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.Notifier} "Notifiers"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /notifiers [get]
func (h *Handler) Notifiers(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	notifiers, err := h.db.GetNotifiers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query notifiers", err)
		return
	}
	if notifiers == nil {
		notifiers = []models.Notifier{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   notifiers,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NotifierByID returns one notification agent.
//
// @Summary Get notifier
// @Description Returns a single notification agent by id
// @Tags Notifications
// @Produce json
// @Param id path int true "Notifier id"
// @Success 200 {object} models.APIResponse{data=models.Notifier} "Notifier"
// @Failure 404 {object} models.APIResponse "Unknown notifier"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /notifiers/{id} [get]
func (h *Handler) NotifierByID(w http.ResponseWriter, r *http.Request) {
	id, ok := notifierIDParam(w, r)
	if !ok {
		return
	}
	if !h.requireDB(w) {
		return
	}

	notifier, err := h.db.GetNotifier(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Notifier not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query notifier", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   notifier,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NotifierCreate stores a new notification agent.
//
// @Summary Create notifier
// @Description Validates and stores a new notification agent. Webhook notifiers need a URL, email notifiers a complete SMTP block.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param body body models.Notifier true "Notifier definition"
// @Success 201 {object} models.APIResponse{data=models.Notifier} "Created notifier"
// @Failure 400 {object} models.APIResponse "Invalid notifier"
// @Failure 500 {object} models.APIResponse "Store failed"
// @Security ApiKeyAuth
// @Router /notifiers [post]
func (h *Handler) NotifierCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var n models.Notifier
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err)
		return
	}

	if !validateNotifier(w, &n) {
		return
	}

	if err := h.db.CreateNotifier(r.Context(), &n); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create notifier", err)
		return
	}

	respondJSON(w, http.StatusCreated, &models.APIResponse{
		Status: "success",
		Data:   n,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NotifierUpdate replaces a stored notification agent.
//
// @Summary Update notifier
// @Description Replaces the notifier with the given id after full validation
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path int true "Notifier id"
// @Param body body models.Notifier true "Notifier definition"
// @Success 200 {object} models.APIResponse{data=models.Notifier} "Updated notifier"
// @Failure 400 {object} models.APIResponse "Invalid notifier"
// @Failure 404 {object} models.APIResponse "Unknown notifier"
// @Failure 500 {object} models.APIResponse "Store failed"
// @Security ApiKeyAuth
// @Router /notifiers/{id} [put]
func (h *Handler) NotifierUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := notifierIDParam(w, r)
	if !ok {
		return
	}
	if !h.requireDB(w) {
		return
	}

	var n models.Notifier
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err)
		return
	}
	n.ID = id

	if !validateNotifier(w, &n) {
		return
	}

	if err := h.db.UpdateNotifier(r.Context(), &n); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Notifier not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update notifier", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   n,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NotifierDelete removes a notification agent.
//
// @Summary Delete notifier
// @Description Removes the notifier with the given id
// @Tags Notifications
// @Produce json
// @Param id path int true "Notifier id"
// @Success 200 {object} models.APIResponse "Deleted"
// @Failure 404 {object} models.APIResponse "Unknown notifier"
// @Failure 500 {object} models.APIResponse "Delete failed"
// @Security ApiKeyAuth
// @Router /notifiers/{id} [delete]
func (h *Handler) NotifierDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := notifierIDParam(w, r)
	if !ok {
		return
	}
	if !h.requireDB(w) {
		return
	}

	if err := h.db.DeleteNotifier(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Notifier not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete notifier", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]interface{}{"deleted": id},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NotifierTest fires a synthetic notification through the agent's
// channel and reports the delivery outcome without retrying.
//
// @Summary Send test notification
// @Description Delivers a synthetic test message through the notifier's channel, bypassing triggers and conditions, and returns the delivery result
// @Tags Notifications
// @Produce json
// @Param id path int true "Notifier id"
// @Success 200 {object} models.APIResponse{data=notify.DeliveryResult} "Delivery result"
// @Failure 404 {object} models.APIResponse "Unknown notifier"
// @Failure 502 {object} models.APIResponse "Channel send failed"
// @Failure 503 {object} models.APIResponse "Dispatcher not available"
// @Security ApiKeyAuth
// @Router /notifiers/{id}/test [post]
func (h *Handler) NotifierTest(w http.ResponseWriter, r *http.Request) {
	id, ok := notifierIDParam(w, r)
	if !ok {
		return
	}
	if h.dispatcher == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Notification dispatcher not available", nil)
		return
	}
	if !h.requireDB(w) {
		return
	}

	notifier, err := h.db.GetNotifier(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Notifier not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query notifier", err)
		return
	}

	result, err := h.dispatcher.SendTest(r.Context(), notifier)
	if err != nil {
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Test notification failed", err)
		return
	}

	// A completed send with Success false is still a 200; the result
	// carries the channel's error for the client to display.
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   result,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NotifyLog returns recent notification delivery attempts.
//
// @Summary Get notification log
// @Description Returns the most recent notification delivery attempts, newest first
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum entries to return (default 100)"
// @Success 200 {object} models.APIResponse{data=[]models.NotifyLogEntry} "Log entries"
// @Failure 400 {object} models.APIResponse "Invalid parameters"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /notifications [get]
func (h *Handler) NotifyLog(w http.ResponseWriter, r *http.Request) {
	req := LogLimitRequest{Limit: getIntParam(r, "limit", 100)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	if !h.requireDB(w) {
		return
	}

	entries, err := h.db.GetNotifyLog(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query notification log", err)
		return
	}
	if entries == nil {
		entries = []models.NotifyLogEntry{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   entries,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
