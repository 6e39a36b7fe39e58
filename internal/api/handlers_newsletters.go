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
	"github.com/mpellar/vigil/internal/newsletter"
)

// scheduleIDParam parses the {id} path segment of newsletter routes.
func scheduleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid schedule id", nil)
		return 0, false
	}
	return id, true
}

// validateSchedule runs the struct rules plus the checks the validator
// tags cannot express: the cron expression must parse, the template
// name must be a known built-in, and any custom subject or body
// templates must compile.
func (h *Handler) validateSchedule(w http.ResponseWriter, s *models.NewsletterSchedule) bool {
	if apiErr := validateRequest(s); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return false
	}

	if _, err := newsletter.ParseCron(s.CronExpr); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}

	if _, _, err := newsletter.BuiltinTemplate(s.Template); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}

	if s.Subject != "" {
		if err := h.templates.ValidateTemplate(s.Subject); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid subject template: "+err.Error(), nil)
			return false
		}
	}

	if s.BodyHTML != "" {
		if err := h.templates.ValidateTemplate(s.BodyHTML); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid body template: "+err.Error(), nil)
			return false
		}
	}

	return true
}

// seedNextRun stamps NextRunAt for enabled schedules so the scheduler
// picks them up on its next check. Disabled schedules carry no next
// run.
func seedNextRun(s *models.NewsletterSchedule) {
	s.NextRunAt = nil
	if !s.Enabled {
		return
	}
	if next, err := newsletter.CalculateNextRun(s.CronExpr, time.Now(), ""); err == nil {
		s.NextRunAt = &next
	}
}

// NewsletterSchedules returns all newsletter schedules.
//
// @Summary List newsletter schedules
// @Description Returns every newsletter schedule with its cron expression, template, and delivery target
// @Tags Newsletters
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.NewsletterSchedule} "Schedules"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /newsletters [get]
func (h *Handler) NewsletterSchedules(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	schedules, err := h.db.GetNewsletterSchedules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query newsletter schedules", err)
		return
	}
	if schedules == nil {
		schedules = []models.NewsletterSchedule{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   schedules,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NewsletterByID returns one newsletter schedule.
//
// @Summary Get newsletter schedule
// @Description Returns a single newsletter schedule by id
// @Tags Newsletters
// @Produce json
// @Param id path int true "Schedule id"
// @Success 200 {object} models.APIResponse{data=models.NewsletterSchedule} "Schedule"
// @Failure 404 {object} models.APIResponse "Unknown schedule"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /newsletters/{id} [get]
func (h *Handler) NewsletterByID(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	if !h.requireDB(w) {
		return
	}

	schedule, err := h.db.GetNewsletterSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Newsletter schedule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query newsletter schedule", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   schedule,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NewsletterCreate stores a new newsletter schedule.
//
// @Summary Create newsletter schedule
// @Description Validates and stores a new newsletter schedule. The referenced notifier carries the delivery; enabled schedules get their next run seeded immediately.
// @Tags Newsletters
// @Accept json
// @Produce json
// @Param body body models.NewsletterSchedule true "Schedule definition"
// @Success 201 {object} models.APIResponse{data=models.NewsletterSchedule} "Created schedule"
// @Failure 400 {object} models.APIResponse "Invalid schedule"
// @Failure 500 {object} models.APIResponse "Store failed"
// @Security ApiKeyAuth
// @Router /newsletters [post]
func (h *Handler) NewsletterCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var s models.NewsletterSchedule
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err)
		return
	}

	if !h.validateSchedule(w, &s) {
		return
	}
	seedNextRun(&s)

	if err := h.db.CreateNewsletterSchedule(r.Context(), &s); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create newsletter schedule", err)
		return
	}

	respondJSON(w, http.StatusCreated, &models.APIResponse{
		Status: "success",
		Data:   s,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NewsletterUpdate replaces a stored newsletter schedule.
//
// @Summary Update newsletter schedule
// @Description Replaces the schedule with the given id after full validation, recomputing the next run from the new cron expression
// @Tags Newsletters
// @Accept json
// @Produce json
// @Param id path int true "Schedule id"
// @Param body body models.NewsletterSchedule true "Schedule definition"
// @Success 200 {object} models.APIResponse{data=models.NewsletterSchedule} "Updated schedule"
// @Failure 400 {object} models.APIResponse "Invalid schedule"
// @Failure 404 {object} models.APIResponse "Unknown schedule"
// @Failure 500 {object} models.APIResponse "Store failed"
// @Security ApiKeyAuth
// @Router /newsletters/{id} [put]
func (h *Handler) NewsletterUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	if !h.requireDB(w) {
		return
	}

	var s models.NewsletterSchedule
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", err)
		return
	}
	s.ID = id

	if !h.validateSchedule(w, &s) {
		return
	}
	seedNextRun(&s)

	if err := h.db.UpdateNewsletterSchedule(r.Context(), &s); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Newsletter schedule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update newsletter schedule", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   s,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NewsletterDelete removes a newsletter schedule.
//
// @Summary Delete newsletter schedule
// @Description Removes the schedule with the given id
// @Tags Newsletters
// @Produce json
// @Param id path int true "Schedule id"
// @Success 200 {object} models.APIResponse "Deleted"
// @Failure 404 {object} models.APIResponse "Unknown schedule"
// @Failure 500 {object} models.APIResponse "Delete failed"
// @Security ApiKeyAuth
// @Router /newsletters/{id} [delete]
func (h *Handler) NewsletterDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	if !h.requireDB(w) {
		return
	}

	if err := h.db.DeleteNewsletterSchedule(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Newsletter schedule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete newsletter schedule", err)
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

// NewsletterPreview renders a newsletter issue without delivering it.
//
// @Summary Preview newsletter
// @Description Renders the subject and both bodies for the schedule's current content window without sending anything or writing a log entry
// @Tags Newsletters
// @Produce json
// @Param id path int true "Schedule id"
// @Success 200 {object} models.APIResponse{data=newsletter.Rendered} "Rendered issue"
// @Failure 404 {object} models.APIResponse "Unknown schedule"
// @Failure 500 {object} models.APIResponse "Render failed"
// @Failure 503 {object} models.APIResponse "Scheduler not available"
// @Security ApiKeyAuth
// @Router /newsletters/{id}/preview [post]
func (h *Handler) NewsletterPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	if h.newsletters == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Newsletter scheduler not available", nil)
		return
	}
	if !h.requireDB(w) {
		return
	}

	schedule, err := h.db.GetNewsletterSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Newsletter schedule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query newsletter schedule", err)
		return
	}

	rendered, err := h.newsletters.Render(r.Context(), schedule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render newsletter", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   rendered,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NewsletterSend runs a schedule immediately.
//
// @Summary Send newsletter now
// @Description Renders and delivers the schedule's newsletter immediately, recording a log entry. The regular cron cadence is unaffected.
// @Tags Newsletters
// @Produce json
// @Param id path int true "Schedule id"
// @Success 200 {object} models.APIResponse{data=models.NewsletterLogEntry} "Delivery log entry"
// @Failure 404 {object} models.APIResponse "Unknown schedule"
// @Failure 502 {object} models.APIResponse "Delivery failed"
// @Failure 503 {object} models.APIResponse "Scheduler not available"
// @Security ApiKeyAuth
// @Router /newsletters/{id}/send [post]
func (h *Handler) NewsletterSend(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}
	if h.newsletters == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Newsletter scheduler not available", nil)
		return
	}
	if !h.requireDB(w) {
		return
	}

	schedule, err := h.db.GetNewsletterSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Newsletter schedule not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query newsletter schedule", err)
		return
	}

	entry, err := h.newsletters.RunNow(r.Context(), schedule)
	if err != nil {
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Newsletter delivery failed", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   entry,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// NewsletterLog returns recent newsletter runs.
//
// @Summary Get newsletter log
// @Description Returns the most recent newsletter runs, newest first
// @Tags Newsletters
// @Produce json
// @Param limit query int false "Maximum entries to return (default 100)"
// @Success 200 {object} models.APIResponse{data=[]models.NewsletterLogEntry} "Log entries"
// @Failure 400 {object} models.APIResponse "Invalid parameters"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /newsletters/log [get]
func (h *Handler) NewsletterLog(w http.ResponseWriter, r *http.Request) {
	req := LogLimitRequest{Limit: getIntParam(r, "limit", 100)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	if !h.requireDB(w) {
		return
	}

	entries, err := h.db.GetNewsletterLog(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query newsletter log", err)
		return
	}
	if entries == nil {
		entries = []models.NewsletterLogEntry{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   entries,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
