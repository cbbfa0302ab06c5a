package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"subwatch/internal/models"
)

// notificationLogLimit caps how much history one poll returns.
const notificationLogLimit = 50

// TestNotificationRequest names the channel to probe.
type TestNotificationRequest struct {
	Channel string `json:"channel"`
}

// handleNotifications returns the user's notification log. With
// ?status=pending&channel=push it serves the extension poll feed.
// GET /api/v1/notifications
func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user := userFrom(r.Context())

	status := r.URL.Query().Get("status")
	channel := r.URL.Query().Get("channel")

	var (
		rows []models.Notification
		err  error
	)
	if status == string(models.NotificationPending) && channel == string(models.ChannelPush) {
		rows, err = s.db.PendingPushNotifications(r.Context(), user.ID)
	} else {
		rows, err = s.db.ListNotifications(r.Context(), user.ID, notificationLogLimit)
		rows = filterNotifications(rows, status, channel)
	}
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list notifications")
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	if rows == nil {
		rows = make([]models.Notification, 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": rows})
}

// handleNotificationTest sends a test message through one channel so the
// user can verify their setup. POST /api/v1/notifications/test
func (s *HTTPServer) handleNotificationTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TestNotificationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	channel, ok := models.ParseChannel(req.Channel)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	user := userFrom(r.Context())
	if err := s.notifier.SendTest(r.Context(), user.ID, channel); err != nil {
		s.log.Warn().Err(err).
			Int64("user_id", user.ID).
			Str("channel", string(channel)).
			Msg("test notification failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("test notification failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": channel})
}

// handleNotificationAck marks one polled notification as delivered.
// POST /api/v1/notifications/{id}/ack
func (s *HTTPServer) handleNotificationAck(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/notifications/"
	idPart, action, _ := strings.Cut(r.URL.Path[len(prefix):], "/")
	if action != "ack" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	user := userFrom(r.Context())
	affected, err := s.db.AckNotifications(r.Context(), user.ID, []int64{id})
	if err != nil {
		s.log.Error().Err(err).Int64("notification_id", id).Msg("failed to ack notification")
		writeError(w, http.StatusInternalServerError, "failed to ack notification")
		return
	}
	if affected == 0 {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func filterNotifications(rows []models.Notification, status, channel string) []models.Notification {
	if status == "" && channel == "" {
		return rows
	}
	out := make([]models.Notification, 0, len(rows))
	for _, n := range rows {
		if status != "" && string(n.Status) != status {
			continue
		}
		if channel != "" && string(n.Channel) != channel {
			continue
		}
		out = append(out, n)
	}
	return out
}
