// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/notify"
)

// createNotifier posts a notifier definition and returns its new id.
func createNotifier(t *testing.T, handler *Handler, body string) int64 {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifiers", strings.NewReader(body))
	w := executeRequest(handler.NotifierCreate, req)

	assertStatusCode(t, w.Code, http.StatusCreated, "createNotifier")
	response := decodeAPIResponse(t, w, "createNotifier")
	assertResponseSuccess(t, response, "createNotifier")

	data := assertMapData(t, response, "createNotifier")
	id, ok := data["id"].(float64)
	if !ok || id < 1 {
		t.Fatalf("created notifier id = %v, want >= 1", data["id"])
	}
	return int64(id)
}

func webhookNotifierBody(name, url string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"channel_type": "webhook",
		"enabled": true,
		"triggers": {"on_play": true, "on_stop": true},
		"config": {"url": %q}
	}`, name, url)
}

// =====================================================
// Notifier CRUD
// =====================================================

// TestNotifiers_Empty tests listing with no configured notifiers
func TestNotifiers_Empty(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifiers", nil)
	w := executeRequest(handler.Notifiers, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifiers_Empty")
	response := decodeAPIResponse(t, w, "TestNotifiers_Empty")
	assertResponseSuccess(t, response, "TestNotifiers_Empty")

	// An empty list serializes as [], never null.
	list, ok := response.Data.([]interface{})
	if !ok {
		t.Fatalf("data is %T, want array", response.Data)
	}
	if len(list) != 0 {
		t.Errorf("list length = %d, want 0", len(list))
	}
}

// TestNotifierCreate tests creating and reading back a webhook notifier
func TestNotifierCreate(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	id := createNotifier(t, handler, webhookNotifierBody("Discord Hook", "http://example.com/hook"))

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/notifiers/1", nil), "id", fmt.Sprint(id))
	w := executeRequest(handler.NotifierByID, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifierCreate read back")
	response := decodeAPIResponse(t, w, "TestNotifierCreate read back")
	data := assertMapData(t, response, "TestNotifierCreate read back")

	if data["name"] != "Discord Hook" {
		t.Errorf("name = %v, want Discord Hook", data["name"])
	}
	if data["channel_type"] != "webhook" {
		t.Errorf("channel_type = %v, want webhook", data["channel_type"])
	}
	triggers, _ := data["triggers"].(map[string]interface{})
	if enabled, _ := triggers["on_play"].(bool); !enabled {
		t.Errorf("triggers.on_play = %v, want true", triggers["on_play"])
	}

	// The list now contains exactly the created notifier.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifiers", nil)
	w = executeRequest(handler.Notifiers, req)
	response = decodeAPIResponse(t, w, "TestNotifierCreate list")
	list, _ := response.Data.([]interface{})
	if len(list) != 1 {
		t.Errorf("list length = %d, want 1", len(list))
	}
}

// TestNotifierCreate_Invalid tests validation failure paths
func TestNotifierCreate_Invalid(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	tests := []struct {
		name         string
		body         string
		expectedCode string
	}{
		{"malformed json", `{"name": `, "INVALID_JSON"},
		{"missing name", `{"channel_type": "webhook", "config": {"url": "http://example.com"}}`, "VALIDATION_ERROR"},
		{"unknown channel", `{"name": "x", "channel_type": "slack", "config": {}}`, "VALIDATION_ERROR"},
		{"unknown trigger", `{"name": "x", "channel_type": "webhook", "triggers": {"on_explode": true}, "config": {"url": "http://example.com"}}`, "VALIDATION_ERROR"},
		{"webhook without url", `{"name": "x", "channel_type": "webhook", "config": {}}`, "VALIDATION_ERROR"},
		{"bad webhook method", `{"name": "x", "channel_type": "webhook", "config": {"url": "http://example.com", "method": "PATCH"}}`, "VALIDATION_ERROR"},
		{"bad condition operator", `{"name": "x", "channel_type": "webhook", "conditions": [{"field": "user", "operator": "resembles", "values": ["alice"]}], "config": {"url": "http://example.com"}}`, "VALIDATION_ERROR"},
		{"email without smtp host", `{"name": "x", "channel_type": "email", "config": {"from": "a@example.com", "to": ["b@example.com"]}}`, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifiers", strings.NewReader(tt.body))
			w := executeRequest(handler.NotifierCreate, req)

			assertStatusCode(t, w.Code, http.StatusBadRequest, tt.name)
			response := decodeAPIResponse(t, w, tt.name)
			assertErrorCode(t, response, tt.expectedCode, tt.name)
		})
	}
}

// TestNotifierByID_Errors tests id parsing and missing rows
func TestNotifierByID_Errors(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/notifiers/999", nil), "id", "999")
	w := executeRequest(handler.NotifierByID, req)
	assertStatusCode(t, w.Code, http.StatusNotFound, "TestNotifierByID_Errors unknown id")
	assertErrorCode(t, decodeAPIResponse(t, w, "TestNotifierByID_Errors unknown id"), "NOT_FOUND", "TestNotifierByID_Errors unknown id")

	for _, bad := range []string{"abc", "0", "-3"} {
		req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/notifiers/"+bad, nil), "id", bad)
		w = executeRequest(handler.NotifierByID, req)
		assertStatusCode(t, w.Code, http.StatusBadRequest, "TestNotifierByID_Errors id "+bad)
		assertErrorCode(t, decodeAPIResponse(t, w, "TestNotifierByID_Errors id "+bad), "VALIDATION_ERROR", "TestNotifierByID_Errors id "+bad)
	}
}

// TestNotifierUpdate tests replacing a stored notifier
func TestNotifierUpdate(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	id := createNotifier(t, handler, webhookNotifierBody("Before", "http://example.com/hook"))

	body := webhookNotifierBody("After", "http://example.com/hook2")
	req := withURLParam(httptest.NewRequest(http.MethodPut, "/api/v1/notifiers/1", strings.NewReader(body)), "id", fmt.Sprint(id))
	w := executeRequest(handler.NotifierUpdate, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifierUpdate")
	response := decodeAPIResponse(t, w, "TestNotifierUpdate")
	data := assertMapData(t, response, "TestNotifierUpdate")
	if data["name"] != "After" {
		t.Errorf("name = %v, want After", data["name"])
	}

	// The stored row changed too.
	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/notifiers/1", nil), "id", fmt.Sprint(id))
	w = executeRequest(handler.NotifierByID, req)
	data = assertMapData(t, decodeAPIResponse(t, w, "TestNotifierUpdate read back"), "TestNotifierUpdate read back")
	if data["name"] != "After" {
		t.Errorf("stored name = %v, want After", data["name"])
	}

	// Updating a missing notifier is a 404.
	req = withURLParam(httptest.NewRequest(http.MethodPut, "/api/v1/notifiers/999", strings.NewReader(body)), "id", "999")
	w = executeRequest(handler.NotifierUpdate, req)
	assertStatusCode(t, w.Code, http.StatusNotFound, "TestNotifierUpdate missing")
	assertErrorCode(t, decodeAPIResponse(t, w, "TestNotifierUpdate missing"), "NOT_FOUND", "TestNotifierUpdate missing")
}

// TestNotifierDelete tests removing a notifier
func TestNotifierDelete(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	id := createNotifier(t, handler, webhookNotifierBody("Doomed", "http://example.com/hook"))

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/notifiers/1", nil), "id", fmt.Sprint(id))
	w := executeRequest(handler.NotifierDelete, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifierDelete")
	response := decodeAPIResponse(t, w, "TestNotifierDelete")
	data := assertMapData(t, response, "TestNotifierDelete")
	if deleted, _ := data["deleted"].(float64); int64(deleted) != id {
		t.Errorf("deleted = %v, want %d", data["deleted"], id)
	}

	// Deleting again is a 404.
	req = withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/notifiers/1", nil), "id", fmt.Sprint(id))
	w = executeRequest(handler.NotifierDelete, req)
	assertStatusCode(t, w.Code, http.StatusNotFound, "TestNotifierDelete again")
}

// =====================================================
// POST /notifiers/{id}/test
// =====================================================

// TestNotifierTest_Webhook tests a test delivery against a live endpoint
func TestNotifierTest_Webhook(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	handler.SetDispatcher(notify.NewDispatcher(db, config.NotificationsConfig{Enabled: true}, nil))

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("webhook method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("webhook Content-Type = %q, want application/json", ct)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	id := createNotifier(t, handler, webhookNotifierBody("Live Hook", server.URL))

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifiers/1/test", nil), "id", fmt.Sprint(id))
	w := executeRequest(handler.NotifierTest, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifierTest_Webhook")
	response := decodeAPIResponse(t, w, "TestNotifierTest_Webhook")
	assertResponseSuccess(t, response, "TestNotifierTest_Webhook")

	data := assertMapData(t, response, "TestNotifierTest_Webhook")
	if success, _ := data["success"].(bool); !success {
		t.Errorf("success = %v, want true", data["success"])
	}
	if code, _ := data["response_code"].(float64); code != http.StatusOK {
		t.Errorf("response_code = %v, want 200", data["response_code"])
	}
	if hits.Load() != 1 {
		t.Errorf("webhook hits = %d, want 1", hits.Load())
	}

	// The delivery attempt lands in the notification log.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	w = executeRequest(handler.NotifyLog, req)
	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifierTest_Webhook log")
	response = decodeAPIResponse(t, w, "TestNotifierTest_Webhook log")
	entries, _ := response.Data.([]interface{})
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	entry, _ := entries[0].(map[string]interface{})
	if entry["trigger"] != "test" {
		t.Errorf("log trigger = %v, want test", entry["trigger"])
	}
	if success, _ := entry["success"].(bool); !success {
		t.Errorf("log success = %v, want true", entry["success"])
	}
}

// TestNotifierTest_FailedDelivery tests that a failed send still returns 200
func TestNotifierTest_FailedDelivery(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	handler.SetDispatcher(notify.NewDispatcher(db, config.NotificationsConfig{Enabled: true}, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	id := createNotifier(t, handler, webhookNotifierBody("Broken Hook", server.URL))

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifiers/1/test", nil), "id", fmt.Sprint(id))
	w := executeRequest(handler.NotifierTest, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifierTest_FailedDelivery")
	response := decodeAPIResponse(t, w, "TestNotifierTest_FailedDelivery")
	data := assertMapData(t, response, "TestNotifierTest_FailedDelivery")

	if success, _ := data["success"].(bool); success {
		t.Error("success = true, want false for a 500 endpoint")
	}
	if data["error_code"] != notify.ErrorCodeServerError {
		t.Errorf("error_code = %v, want %s", data["error_code"], notify.ErrorCodeServerError)
	}
	if transient, _ := data["is_transient"].(bool); !transient {
		t.Error("is_transient = false, want true for a server error")
	}
}

// TestNotifierTest_NoDispatcher tests the missing-dispatcher guard
func TestNotifierTest_NoDispatcher(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifiers/1/test", nil), "id", "1")
	w := executeRequest(handler.NotifierTest, req)

	assertStatusCode(t, w.Code, http.StatusServiceUnavailable, "TestNotifierTest_NoDispatcher")
	response := decodeAPIResponse(t, w, "TestNotifierTest_NoDispatcher")
	assertErrorCode(t, response, "SERVICE_ERROR", "TestNotifierTest_NoDispatcher")
}

// TestNotifierTest_UnknownNotifier tests testing a missing notifier
func TestNotifierTest_UnknownNotifier(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)
	handler.SetDispatcher(notify.NewDispatcher(db, config.NotificationsConfig{Enabled: true}, nil))

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifiers/42/test", nil), "id", "42")
	w := executeRequest(handler.NotifierTest, req)

	assertStatusCode(t, w.Code, http.StatusNotFound, "TestNotifierTest_UnknownNotifier")
	response := decodeAPIResponse(t, w, "TestNotifierTest_UnknownNotifier")
	assertErrorCode(t, response, "NOT_FOUND", "TestNotifierTest_UnknownNotifier")
}

// =====================================================
// GET /notifications
// =====================================================

// TestNotifyLog_Empty tests the log endpoint with no deliveries
func TestNotifyLog_Empty(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	w := executeRequest(handler.NotifyLog, req)

	assertStatusCode(t, w.Code, http.StatusOK, "TestNotifyLog_Empty")
	response := decodeAPIResponse(t, w, "TestNotifyLog_Empty")
	assertResponseSuccess(t, response, "TestNotifyLog_Empty")

	entries, ok := response.Data.([]interface{})
	if !ok {
		t.Fatalf("data is %T, want array", response.Data)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

// TestNotifyLog_InvalidLimit tests limit validation
func TestNotifyLog_InvalidLimit(t *testing.T) {
	db := setupTestDB(t)
	handler := newTestHandler(t, db)

	for _, bad := range []string{"0", "-1", "5000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit="+bad, nil)
		w := executeRequest(handler.NotifyLog, req)

		assertStatusCode(t, w.Code, http.StatusBadRequest, "TestNotifyLog_InvalidLimit "+bad)
		response := decodeAPIResponse(t, w, "TestNotifyLog_InvalidLimit "+bad)
		assertErrorCode(t, response, "VALIDATION_ERROR", "TestNotifyLog_InvalidLimit "+bad)
	}
}
