// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/models"
)

// StatsQueryExecutor encapsulates the common pattern for statistics
// query handlers. It implements a cache-first execution flow:
//
//  1. Check cache for existing results (short TTL)
//  2. Execute query if cache miss
//  3. Cache the result for subsequent requests
//  4. Respond with JSON including metadata (query time, cached status)
//
// The executor is shared by the stats, users, and libraries handlers
// and keeps the cache-checking and response-building code in one place.
//
// Example usage:
//
//	executor := NewStatsQueryExecutor(h)
//	executor.Execute(w, r, "StatsHome", params, func(ctx context.Context) (interface{}, error) {
//	    return h.db.GetHomeStats(ctx, days, count, grouped)
//	})
type StatsQueryExecutor struct {
	handler *Handler
}

// NewStatsQueryExecutor creates a new statistics query executor instance.
func NewStatsQueryExecutor(h *Handler) *StatsQueryExecutor {
	return &StatsQueryExecutor{handler: h}
}

// StatsQueryFunc executes the actual database query. The result must be
// JSON-serializable as it will be cached and returned in an APIResponse
// wrapper with metadata.
type StatsQueryFunc func(ctx context.Context) (interface{}, error)

// Execute runs a statistics query with automatic caching.
//
// The cache key is derived from cacheKeyPrefix plus the params value, so
// different parameter combinations are cached separately. Cache hits
// return immediately with Cached set and 0ms query time; misses include
// the actual execution time in milliseconds.
func (e *StatsQueryExecutor) Execute(
	w http.ResponseWriter,
	r *http.Request,
	cacheKeyPrefix string,
	params interface{},
	queryFunc StatsQueryFunc,
) {
	// Check if database is available (protects against nil pointer in queryFunc)
	if e.handler.db == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Database not available", nil)
		return
	}

	start := time.Now()

	cacheKey := cache.GenerateKey(cacheKeyPrefix, params)

	// Check cache first (only if cache is available)
	if e.handler.cache != nil {
		if cached, found := e.handler.cache.Get(cacheKey); found {
			respondJSON(w, http.StatusOK, &models.APIResponse{
				Status: "success",
				Data:   cached,
				Metadata: models.Metadata{
					Timestamp:   time.Now(),
					QueryTimeMS: 0, // Cached
					Cached:      true,
				},
			})
			return
		}
	}

	// Execute query
	data, err := queryFunc(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR",
			fmt.Sprintf("Failed to execute query: %s", cacheKeyPrefix), err)
		return
	}

	// Cache the result (only if cache is available)
	if e.handler.cache != nil {
		e.handler.cache.Set(cacheKey, data)
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}
