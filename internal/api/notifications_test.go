package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"subwatch/internal/models"
)

func pollPendingPush(t *testing.T, srv *testServer, key string) []models.Notification {
	t.Helper()
	w := srv.request(http.MethodGet, "/api/v1/notifications?status=pending&channel=push", key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal notifications: %v", err)
	}
	return resp.Notifications
}

func TestHandleNotificationTest_Push(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "push"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	// Push deliveries queue as pending rows the extension polls for.
	pending := pollPendingPush(t, srv, srv.userKey)
	if len(pending) != 1 {
		t.Fatalf("got %d pending notifications, want 1", len(pending))
	}
	if pending[0].Kind != models.KindTest {
		t.Errorf("kind = %q, want %q", pending[0].Kind, models.KindTest)
	}
	if pending[0].Status != models.NotificationPending {
		t.Errorf("status = %q, want %q", pending[0].Status, models.NotificationPending)
	}
}

func TestHandleNotificationTest_UnconfiguredChannel(t *testing.T) {
	srv := setupTestServer(t)

	// The test harness only wires the push channel.
	w := srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "email"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := decodeError(t, w); !strings.Contains(got, "test notification failed") {
		t.Errorf("error = %q, want a delivery failure", got)
	}
}

func TestHandleNotificationTest_UnknownChannel(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "pigeon"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeError(t, w); got != "unknown channel" {
		t.Errorf("error = %q, want %q", got, "unknown channel")
	}
}

func TestHandleNotifications_Ack(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "push"})
	if w.Code != http.StatusOK {
		t.Fatalf("test send status = %d, want %d", w.Code, http.StatusOK)
	}

	pending := pollPendingPush(t, srv, srv.userKey)
	if len(pending) != 1 {
		t.Fatalf("got %d pending notifications, want 1", len(pending))
	}
	id := pending[0].ID

	w = srv.request(http.MethodPost, "/api/v1/notifications/"+itoa(id)+"/ack", srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ack status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	if remaining := pollPendingPush(t, srv, srv.userKey); len(remaining) != 0 {
		t.Errorf("got %d pending notifications after ack, want 0", len(remaining))
	}

	// Acking twice reads as missing.
	w = srv.request(http.MethodPost, "/api/v1/notifications/"+itoa(id)+"/ack", srv.userKey, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second ack status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := decodeError(t, w); got != "notification not found" {
		t.Errorf("error = %q, want %q", got, "notification not found")
	}
}

func TestHandleNotifications_AckForeignRow(t *testing.T) {
	srv := setupTestServer(t)

	srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "push"})
	pending := pollPendingPush(t, srv, srv.userKey)
	if len(pending) != 1 {
		t.Fatalf("got %d pending notifications, want 1", len(pending))
	}

	// Another account cannot ack someone else's notification.
	w := srv.request(http.MethodPost, "/api/v1/notifications/"+itoa(pending[0].ID)+"/ack", srv.adminKey, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleNotifications_BadAckPath(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "unknown action",
			path:       "/api/v1/notifications/1/dismiss",
			wantStatus: http.StatusNotFound,
			wantError:  "not found",
		},
		{
			name:       "bad id",
			path:       "/api/v1/notifications/abc/ack",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid notification id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.request(http.MethodPost, tt.path, srv.userKey, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeError(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestHandleNotifications_ListFilters(t *testing.T) {
	srv := setupTestServer(t)

	srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "push"})
	srv.request(http.MethodPost, "/api/v1/notifications/test", srv.userKey,
		TestNotificationRequest{Channel: "push"})

	w := srv.request(http.MethodGet, "/api/v1/notifications", srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal notifications: %v", err)
	}
	if len(resp.Notifications) != 2 {
		t.Errorf("got %d notifications, want 2", len(resp.Notifications))
	}

	// Another user's log is empty.
	w = srv.request(http.MethodGet, "/api/v1/notifications", srv.adminKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal notifications: %v", err)
	}
	if len(resp.Notifications) != 0 {
		t.Errorf("got %d notifications for other user, want 0", len(resp.Notifications))
	}
}
