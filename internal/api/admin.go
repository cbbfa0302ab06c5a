package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subwatch/internal/database"
	"subwatch/internal/events"
	"subwatch/internal/models"
	"subwatch/shared/audit"
)

// AdminCreateUserRequest is the request body for POST /api/admin/users.
type AdminCreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"` // member (default) or admin
}

// AdminCreateUserResponse returns the new account with its first API key.
// The key secret appears here exactly once.
type AdminCreateUserResponse struct {
	User   *models.User   `json:"user"`
	Key    *models.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

// BlockUserRequest is the request body for POST /api/admin/users/{id}/block.
type BlockUserRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleAdminUsers lists or creates accounts. GET|POST /api/admin/users
func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.accounts.ListUsers(r.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("failed to list users")
			writeError(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		if users == nil {
			users = make([]models.User, 0)
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})

	case http.MethodPost:
		s.createUser(w, r)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createUser(w http.ResponseWriter, r *http.Request) {
	var req AdminCreateUserRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	role := models.RoleMember
	if req.Role != "" {
		role = models.Role(req.Role)
		if role != models.RoleMember && role != models.RoleAdmin {
			writeError(w, http.StatusBadRequest, "role must be member or admin")
			return
		}
	}

	user, err := s.db.CreateUser(r.Context(), email, strings.TrimSpace(req.Name))
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "user with this email already exists")
			return
		}
		s.log.Error().Err(err).Str("email", email).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	if role == models.RoleAdmin {
		if err := s.accounts.SetRole(r.Context(), user.ID, role); err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to set role")
			writeError(w, http.StatusInternalServerError, "failed to create user")
			return
		}
		user.Role = role
	}

	key, secret, err := s.db.CreateAPIKey(r.Context(), user.ID, "default")
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to issue first api key")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	// Welcome delivery must not hold up the response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.SendWelcome(ctx, user.ID); err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("welcome notification failed")
		}
	}()

	s.log.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Str("role", string(user.Role)).
		Msg("user created")

	writeJSON(w, http.StatusCreated, AdminCreateUserResponse{User: user, Key: key, Secret: secret})
}

// handleAdminUserByID serves one account and its block/unblock actions.
// GET|DELETE /api/admin/users/{id}
// POST /api/admin/users/{id}/block | /api/admin/users/{id}/unblock
func (s *HTTPServer) handleAdminUserByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/admin/users/"
	idPart, action, _ := strings.Cut(r.URL.Path[len(prefix):], "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.getUser(w, r, id)
		case http.MethodDelete:
			s.deleteUser(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "block":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.blockUser(w, r, id)
	case "unblock":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.unblockUser(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) getUser(w http.ResponseWriter, r *http.Request, id int64) {
	user, err := s.accounts.GetUser(r.Context(), id)
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) blockUser(w http.ResponseWriter, r *http.Request, id int64) {
	// The reason is optional, so an empty body is accepted.
	var req BlockUserRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	actor := userFrom(r.Context())
	if err := s.accounts.BlockUser(r.Context(), id, strings.TrimSpace(req.Reason), actor.ID); err != nil {
		s.writeAccountError(w, err)
		return
	}

	s.publish(events.UserBlocked, id, 0, strings.TrimSpace(req.Reason))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) unblockUser(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.accounts.UnblockUser(r.Context(), id); err != nil {
		s.writeAccountError(w, err)
		return
	}

	s.publish(events.UserUnblocked, id, 0, "")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) deleteUser(w http.ResponseWriter, r *http.Request, id int64) {
	actor := userFrom(r.Context())
	if err := s.accounts.DeleteUser(r.Context(), id, actor.ID); err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeAccountError maps account administration failures onto statuses:
// missing users are 404, guard violations read back as 400.
func (s *HTTPServer) writeAccountError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// handleAdminStats returns service-wide counters. ?since_days=N bounds the
// reminder and notification counts (default 30).
// GET /api/admin/stats
func (s *HTTPServer) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days := 30
	if v := r.URL.Query().Get("since_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid since_days; expected a positive integer")
			return
		}
		days = parsed
	}

	stats, err := s.db.GetAdminStats(r.Context(), time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to collect stats")
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAdminExport streams an xlsx workbook of the whole database.
// GET /api/admin/export
func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Build the workbook in memory first so errors can still become a
	// clean JSON response.
	var buf bytes.Buffer
	if err := s.exporter.WriteWorkbook(r.Context(), &buf); err != nil {
		s.log.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	s.log.Info().
		Str("admin", userFrom(r.Context()).Email).
		Int("bytes", buf.Len()).
		Msg("admin export generated")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.Filename(time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleAdminRemindersRun triggers the daily reminder pass immediately.
// POST /api/admin/reminders/run
func (s *HTTPServer) handleAdminRemindersRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "reminders are disabled")
		return
	}

	go s.scheduler.RunNow(context.Background())

	s.log.Info().
		Str("admin", userFrom(r.Context()).Email).
		Msg("manual reminder run requested")
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}
