// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestNewRouter tests router construction defaults
func TestNewRouter(t *testing.T) {
	t.Parallel()

	handler := NewHandler(nil, nil, nil, testConfig(), nil)

	router := NewRouter(handler, nil)
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}
	if router.chiMiddleware == nil {
		t.Error("Expected middleware to be built from the API config")
	}

	custom := NewChiMiddleware(nil)
	router = NewRouter(handler, custom)
	if router.chiMiddleware != custom {
		t.Error("Expected the provided middleware to be kept")
	}
}

// TestRouter_HealthWithoutKey tests that probes never require a key
func TestRouter_HealthWithoutKey(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.API.Key = "sekret"
	handler := NewHandler(db, nil, nil, cfg, nil)
	mux := NewRouter(handler, nil).SetupChi()

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready", "/api/v1/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		// Readiness legitimately answers 503 while the monitor is down;
		// what matters here is that no 401 is in the way.
		if w.Code == http.StatusUnauthorized {
			t.Errorf("%s: got 401, health endpoints must not require a key", path)
		}
	}
}

// TestRouter_APIKeyEnforced tests key enforcement on data endpoints
func TestRouter_APIKeyEnforced(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.API.Key = "sekret"
	handler := NewHandler(db, nil, nil, cfg, nil)
	mux := NewRouter(handler, nil).SetupChi()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assertStatusCode(t, w.Code, http.StatusUnauthorized, "TestRouter_APIKeyEnforced no key")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("X-Api-Key", "sekret")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assertStatusCode(t, w.Code, http.StatusOK, "TestRouter_APIKeyEnforced with key")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats/home", nil)
	req.Header.Set("X-Api-Key", "sekret")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assertStatusCode(t, w.Code, http.StatusOK, "TestRouter_APIKeyEnforced stats with key")
}

// TestRouter_OpenWithoutKey tests that an unset key leaves the API open
func TestRouter_OpenWithoutKey(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	mux := NewRouter(handler, nil).SetupChi()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestRouter_OpenWithoutKey")
}

// TestRouter_RouteWiring tests that the visible surface is routed
func TestRouter_RouteWiring(t *testing.T) {
	db := setupTestDB(t)
	seedHistory(t, db, 2)
	handler := newTestHandler(t, db)
	mux := NewRouter(handler, nil).SetupChi()

	// Endpoints that work with storage alone.
	okPaths := []string{
		"/api/v1/history",
		"/api/v1/users",
		"/api/v1/libraries",
		"/api/v1/notifiers",
		"/api/v1/notifications",
		"/api/v1/newsletters",
		"/api/v1/newsletters/log",
		"/api/v1/stats/home",
		"/api/v1/stats/plays?by=date",
		"/metrics",
	}
	for _, path := range okPaths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}

	// Endpoints needing the monitor or client answer 503, not 404.
	unavailablePaths := []string{
		"/api/v1/activity",
		"/api/v1/server/info",
		"/api/v1/server/status",
	}
	for _, path := range unavailablePaths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assertStatusCode(t, w.Code, http.StatusNotFound, "TestRouter_RouteWiring unknown route")
}

// TestRouter_SecurityHeaders tests that responses carry the header set
func TestRouter_SecurityHeaders(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	mux := NewRouter(handler, nil).SetupChi()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

// TestRouter_CORSPreflight tests that preflight requests short-circuit
func TestRouter_CORSPreflight(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	mux := NewRouter(handler, nil).SetupChi()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/history", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if allowOrigin := w.Header().Get("Access-Control-Allow-Origin"); allowOrigin == "" {
		t.Error("Expected Access-Control-Allow-Origin on preflight")
	}
}

// TestRouter_DeleteHistoryRouted tests the write-limited delete route
func TestRouter_DeleteHistoryRouted(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	mux := NewRouter(handler, nil).SetupChi()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	// An empty body fails decoding, proving the route reaches the handler.
	assertStatusCode(t, w.Code, http.StatusBadRequest, "TestRouter_DeleteHistoryRouted")
	response := decodeAPIResponse(t, w, "TestRouter_DeleteHistoryRouted")
	assertErrorCode(t, response, "INVALID_JSON", "TestRouter_DeleteHistoryRouted")
}
