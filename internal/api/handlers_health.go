// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"net/http"
	"time"

	"github.com/mpellar/vigil/internal/cache"
	"github.com/mpellar/vigil/internal/middleware"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/monitor"
)

// serviceVersion is stamped by the binary at startup (ldflags flow
// through main). Defaults keep tests meaningful.
var serviceVersion = "dev"

// SetVersion records the build version reported by the health endpoint.
func SetVersion(v string) {
	if v != "" {
		serviceVersion = v
	}
}

// HealthStatus is the detailed health report for GET /health.
type HealthStatus struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	Database    HealthDatabase    `json:"database"`
	MediaServer HealthMediaServer `json:"media_server"`
	Monitor     monitor.Status    `json:"monitor"`

	WebSocketClients int                        `json:"websocket_clients"`
	Cache            map[string]interface{}     `json:"cache,omitempty"`
	Performance      []middleware.EndpointStats `json:"performance,omitempty"`
}

// HealthDatabase reports storage health inside HealthStatus.
type HealthDatabase struct {
	Connected     bool   `json:"connected"`
	Path          string `json:"path,omitempty"`
	SchemaVersion int    `json:"schema_version,omitempty"`
	HistoryRows   int64  `json:"history_rows"`
	UserRows      int64  `json:"user_rows"`
}

// HealthMediaServer reports upstream health inside HealthStatus.
type HealthMediaServer struct {
	Reachable    bool   `json:"reachable"`
	BreakerState string `json:"breaker_state,omitempty"`
}

// Health handles health check requests
//
// @Summary Get system health status
// @Description Returns comprehensive health status including database connectivity, media server reachability, monitor state, WebSocket clients, cache, and request performance
// @Tags Core
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse{data=HealthStatus} "Health status retrieved successfully"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check database connectivity (nil means not connected)
	dbConnected := h.db != nil && h.db.Ping(ctx) == nil

	db := HealthDatabase{Connected: dbConnected}
	if dbConnected {
		db.Path = h.db.GetDatabasePath()
		if v, err := h.db.GetCurrentSchemaVersion(); err == nil {
			db.SchemaVersion = v
		}
		if history, users, err := h.db.GetRecordCounts(ctx); err == nil {
			db.HistoryRows = history
			db.UserRows = users
		}
	}

	var monitorStatus monitor.Status
	server := HealthMediaServer{}
	if h.monitor != nil {
		monitorStatus = h.monitor.Status()
		server.Reachable = monitorStatus.ServerReachable
	}
	if bs, ok := h.client.(breakerStater); ok {
		server.BreakerState = bs.State()
	}

	// Degraded beats unhealthy: history and stats still serve from the
	// database while the media server is away.
	status := "healthy"
	if !dbConnected {
		status = "degraded"
	} else if h.monitor != nil && !monitorStatus.ServerReachable {
		status = "degraded"
	}

	health := HealthStatus{
		Status:        status,
		Version:       serviceVersion,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Database:      db,
		MediaServer:   server,
		Monitor:       monitorStatus,
		Performance:   h.GetPerformanceStats(),
	}

	if h.wsHub != nil {
		health.WebSocketClients = h.wsHub.GetClientCount()
	}

	if h.cache != nil {
		stats := h.cache.GetStats()
		health.Cache = map[string]interface{}{
			"hits":       stats.Hits,
			"misses":     stats.Misses,
			"evictions":  stats.Evictions,
			"total_keys": stats.TotalKeys,
			"hit_rate":   h.cache.HitRate(),
		}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   health,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthLive handles liveness probe requests (Kubernetes-style)
// Returns 200 OK if the process is alive, regardless of dependencies
//
// @Summary Kubernetes liveness probe
// @Description Returns 200 OK if the process is alive, regardless of external dependencies. Used for Kubernetes liveness probes.
// @Tags Core
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse "Service is alive"
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style)
// Returns 200 OK only if the service is ready to handle traffic
//
// Readiness needs the database and a running monitor. An unreachable
// media server does NOT fail readiness: history and statistics keep
// serving while the poller waits for the server to come back.
//
// @Summary Kubernetes readiness probe
// @Description Returns 200 OK only if the service is ready to handle traffic (database connected and session monitor running). Returns 503 if not ready.
// @Tags Core
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse "Service is ready"
// @Failure 503 {object} models.APIResponse "Service is not ready"
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	// Check database connectivity (nil means not connected)
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	monitorRunning := h.monitor != nil && h.monitor.IsRunning()
	ready := dbConnected && monitorRunning

	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"database_connected": dbConnected,
			"monitor_running":    monitorRunning,
			"ready_to_serve":     ready,
			"uptime":             time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// GetCacheStats returns cache performance statistics
func (h *Handler) GetCacheStats() cache.Stats {
	if h.cache != nil {
		return h.cache.GetStats()
	}
	return cache.Stats{}
}

// GetPerformanceStats returns performance monitoring statistics
func (h *Handler) GetPerformanceStats() []middleware.EndpointStats {
	if h.perfMon != nil {
		return h.perfMon.GetStats()
	}
	return nil
}
