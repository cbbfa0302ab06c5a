package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"subwatch/internal/models"
)

func TestHandleKeys_CreateAndList(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/keys", srv.userKey, KeyRequest{Label: "ci"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusCreated, w.Body.String())
	}

	var created KeyCreatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !strings.HasPrefix(created.Secret, "sw_") {
		t.Errorf("secret = %q, want sw_ prefix", created.Secret)
	}
	if created.Key.Label != "ci" {
		t.Errorf("label = %q, want %q", created.Key.Label, "ci")
	}
	if !strings.Contains(created.Secret, created.Key.Prefix) {
		t.Errorf("prefix %q not part of secret", created.Key.Prefix)
	}

	// The fresh secret authenticates.
	w = srv.request(http.MethodGet, "/api/v1/subscriptions", created.Secret, nil)
	if w.Code != http.StatusOK {
		t.Errorf("new key auth status = %d, want %d", w.Code, http.StatusOK)
	}

	w = srv.request(http.MethodGet, "/api/v1/keys", srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}
	var list struct {
		Keys []models.APIKey `json:"keys"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to unmarshal key list: %v", err)
	}
	// The seeded key plus the one just created.
	if len(list.Keys) != 2 {
		t.Errorf("got %d keys, want 2", len(list.Keys))
	}
	if strings.Contains(w.Body.String(), "key_hash") {
		t.Error("key hash leaked into the JSON response")
	}
}

func TestHandleKeys_Revoke(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/keys", srv.userKey, KeyRequest{Label: "short-lived"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", w.Code, http.StatusCreated)
	}
	var created KeyCreatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	w = srv.request(http.MethodDelete, "/api/v1/keys/"+itoa(created.Key.ID), srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	// The revoked secret no longer authenticates.
	w = srv.request(http.MethodGet, "/api/v1/subscriptions", created.Secret, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("revoked key auth status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// Revoked keys stay in the list for the audit trail.
	w = srv.request(http.MethodGet, "/api/v1/keys", srv.userKey, nil)
	var list struct {
		Keys []models.APIKey `json:"keys"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to unmarshal key list: %v", err)
	}
	var found *models.APIKey
	for i := range list.Keys {
		if list.Keys[i].ID == created.Key.ID {
			found = &list.Keys[i]
		}
	}
	if found == nil {
		t.Fatal("revoked key missing from list")
	}
	if found.RevokedAt == nil {
		t.Error("revoked_at not set")
	}
}

func TestHandleKeys_RevokeErrors(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "bad id",
			path:       "/api/v1/keys/abc",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid key id",
		},
		{
			name:       "unknown id",
			path:       "/api/v1/keys/99999",
			wantStatus: http.StatusNotFound,
			wantError:  "api key not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.request(http.MethodDelete, tt.path, srv.userKey, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeError(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestHandleKeys_CannotRevokeForeignKey(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/keys", srv.userKey, KeyRequest{Label: "mine"})
	var created KeyCreatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	// Another account revoking this key id reads as missing.
	w = srv.request(http.MethodDelete, "/api/v1/keys/"+itoa(created.Key.ID), srv.adminKey, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
