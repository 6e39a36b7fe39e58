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

	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/models"
)

// Users returns all known server accounts with their play totals.
//
// @Summary List users
// @Description Returns every account seen on the server, including aggregate play counts and last activity
// @Tags Users
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.User} "Users"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /users [get]
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()

	users, err := h.db.GetUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query users", err)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   users,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// UserByID returns one account.
//
// @Summary Get user
// @Description Returns a single account by id
// @Tags Users
// @Produce json
// @Param id path int true "Account id"
// @Success 200 {object} models.APIResponse{data=models.User} "User"
// @Failure 400 {object} models.APIResponse "Invalid user id"
// @Failure 404 {object} models.APIResponse "Unknown user"
// @Failure 500 {object} models.APIResponse "Query failed"
// @Security ApiKeyAuth
// @Router /users/{id} [get]
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user id", nil)
		return
	}

	if !h.requireDB(w) {
		return
	}

	user, err := h.db.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query user", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   user,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
