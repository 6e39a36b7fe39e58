// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mpellar/vigil/internal/config"
)

// =====================================================
// ChiMiddleware Configuration Tests
// =====================================================

func TestNewChiMiddleware_DefaultConfig(t *testing.T) {
	m := NewChiMiddleware(nil)

	if m == nil {
		t.Fatal("NewChiMiddleware returned nil")
	}
	if m.config == nil {
		t.Fatal("config is nil")
	}
	// Default should be empty (secure by default - requires explicit configuration)
	if len(m.config.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want []", m.config.CORSAllowedOrigins)
	}
	if m.config.CORSMaxAge != 86400 {
		t.Errorf("CORSMaxAge = %d, want 86400", m.config.CORSMaxAge)
	}
	if m.config.RateLimitRequests != 100 {
		t.Errorf("RateLimitRequests = %d, want 100", m.config.RateLimitRequests)
	}

	// X-Api-Key must be an allowed header or browser clients cannot
	// authenticate through CORS preflight.
	found := false
	for _, h := range m.config.CORSAllowedHeaders {
		if h == "X-Api-Key" {
			found = true
		}
	}
	if !found {
		t.Errorf("CORSAllowedHeaders = %v, want X-Api-Key included", m.config.CORSAllowedHeaders)
	}
}

func TestNewChiMiddleware_CustomConfig(t *testing.T) {
	cfg := &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://example.com"},
		CORSAllowedMethods: []string{"GET", "POST"},
		CORSAllowedHeaders: []string{"Content-Type"},
		CORSMaxAge:         3600,
		RateLimitRequests:  50,
		RateLimitWindow:    time.Second * 30,
		RateLimitDisabled:  true,
	}

	m := NewChiMiddleware(cfg)

	if m.config.CORSAllowedOrigins[0] != "https://example.com" {
		t.Errorf("CORSAllowedOrigins = %v, want [https://example.com]", m.config.CORSAllowedOrigins)
	}
	if m.config.RateLimitRequests != 50 {
		t.Errorf("RateLimitRequests = %d, want 50", m.config.RateLimitRequests)
	}
	if !m.config.RateLimitDisabled {
		t.Error("RateLimitDisabled should be true")
	}
}

func TestNewChiMiddlewareFromAPIConfig(t *testing.T) {
	m := NewChiMiddlewareFromAPIConfig(config.APIConfig{
		CORSOrigins:     []string{"https://example.com", "https://other.com"},
		RateLimitReqs:   200,
		RateLimitWindow: time.Minute * 2,
	})

	if len(m.config.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins length = %d, want 2", len(m.config.CORSAllowedOrigins))
	}
	if m.config.RateLimitRequests != 200 {
		t.Errorf("RateLimitRequests = %d, want 200", m.config.RateLimitRequests)
	}
	if m.config.RateLimitWindow != time.Minute*2 {
		t.Errorf("RateLimitWindow = %v, want 2m", m.config.RateLimitWindow)
	}
}

// TestNewChiMiddlewareFromAPIConfig_ZeroKeepsDefaults verifies that unset
// rate limit values fall back to defaults instead of zeroing the limiter.
func TestNewChiMiddlewareFromAPIConfig_ZeroKeepsDefaults(t *testing.T) {
	m := NewChiMiddlewareFromAPIConfig(config.APIConfig{})

	if m.config.RateLimitRequests != 100 {
		t.Errorf("RateLimitRequests = %d, want default 100", m.config.RateLimitRequests)
	}
	if m.config.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v, want default 1m", m.config.RateLimitWindow)
	}
}

// =====================================================
// CORS Middleware Tests
// =====================================================

func TestChiMiddleware_CORS_WildcardOrigin(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Api-Key"},
		CORSMaxAge:         86400,
	})

	handlerCalled := false
	handler := m.CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !handlerCalled {
		t.Error("Handler should be called")
	}
	if allowOrigin := w.Header().Get("Access-Control-Allow-Origin"); allowOrigin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", allowOrigin)
	}
}

func TestChiMiddleware_CORS_SpecificOrigin(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://allowed.com"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Api-Key"},
		CORSMaxAge:         86400,
	})

	handler := m.CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// go-chi/cors reflects the specific origin back
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://allowed.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if allowOrigin := w.Header().Get("Access-Control-Allow-Origin"); allowOrigin != "https://allowed.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://allowed.com", allowOrigin)
	}
}

func TestChiMiddleware_CORS_Preflight(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://allowed.com"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Api-Key"},
		CORSMaxAge:         86400,
	})

	handlerCalled := false
	handler := m.CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://allowed.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Api-Key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if handlerCalled {
		t.Error("Preflight should be answered by the middleware, not the handler")
	}
	if allowOrigin := w.Header().Get("Access-Control-Allow-Origin"); allowOrigin != "https://allowed.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://allowed.com", allowOrigin)
	}
}

// =====================================================
// Rate Limiting Tests
// =====================================================

func TestChiMiddleware_RateLimit_Disabled(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		RateLimitRequests: 1,
		RateLimitWindow:   time.Minute,
		RateLimitDisabled: true,
	})

	handler := m.RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Far beyond the configured budget; all must pass when disabled.
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestChiMiddleware_RateLimitCustom_Exceeded(t *testing.T) {
	m := NewChiMiddleware(DefaultChiMiddlewareConfig())

	handler := m.RateLimitCustom(RateLimitConfig{Requests: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	// httptest requests share a RemoteAddr, so they land in one bucket.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assertStatusCode(t, w.Code, http.StatusTooManyRequests, "TestChiMiddleware_RateLimitCustom_Exceeded")
	response := decodeAPIResponse(t, w, "TestChiMiddleware_RateLimitCustom_Exceeded")
	assertErrorCode(t, response, "RATE_LIMIT_EXCEEDED", "TestChiMiddleware_RateLimitCustom_Exceeded")
}

func TestChiMiddleware_RateLimit_SetsHeaders(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	})

	handler := m.RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("Expected X-RateLimit-Limit header on limited routes")
	}
}

func TestRateLimitPresets(t *testing.T) {
	if RateLimitHealth.Requests <= RateLimitAPI.Requests {
		t.Error("Health rate limit should be more permissive than the API default")
	}
	if RateLimitWrite.Requests >= RateLimitAPI.Requests {
		t.Error("Write rate limit should be stricter than the API default")
	}
}

// =====================================================
// API Key Authentication Tests
// =====================================================

func TestAPIKeyAuth(t *testing.T) {
	const key = "secret-key-123"

	protected := APIKeyAuth(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name         string
		header       string
		query        string
		expectedCode int
	}{
		{"valid header key", key, "", http.StatusOK},
		{"valid query key", "", key, http.StatusOK},
		{"wrong header key", "wrong", "", http.StatusUnauthorized},
		{"wrong query key", "", "wrong", http.StatusUnauthorized},
		{"missing key", "", "", http.StatusUnauthorized},
		{"header wins over query", key, "wrong", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/v1/users"
			if tt.query != "" {
				target += "?apikey=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-Api-Key", tt.header)
			}

			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)

			if w.Code != tt.expectedCode {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedCode)
			}
			if tt.expectedCode == http.StatusUnauthorized {
				response := decodeAPIResponse(t, w, tt.name)
				assertErrorCode(t, response, "UNAUTHORIZED", tt.name)
			}
		})
	}
}

func TestAPIKeyAuth_EmptyKeyDisablesCheck(t *testing.T) {
	open := APIKeyAuth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()
	open.ServeHTTP(w, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestAPIKeyAuth_EmptyKeyDisablesCheck")
}

// =====================================================
// Security Headers Tests
// =====================================================

func TestAPISecurityHeaders(t *testing.T) {
	handler := APISecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Errorf("Referrer-Policy = %q, want strict-origin-when-cross-origin", got)
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS should not be set on plain HTTP, got %q", got)
	}
}

func TestAPISecurityHeaders_HSTSBehindProxy(t *testing.T) {
	handler := APISecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("Expected HSTS header behind a TLS-terminating proxy")
	}
}
