package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"subwatch/internal/events"
	"subwatch/internal/models"
)

// SettingsRequest is the request body for PUT /api/v1/settings. It replaces
// the whole settings document.
type SettingsRequest struct {
	RemindersEnabled bool   `json:"reminders_enabled"`
	ReminderOffsets  []int  `json:"reminder_offsets"` // days before renewal, e.g. [7,3,1]
	EmailEnabled     bool   `json:"email_enabled"`
	WhatsAppEnabled  bool   `json:"whatsapp_enabled"`
	TelegramEnabled  bool   `json:"telegram_enabled"`
	CalendarEnabled  bool   `json:"calendar_enabled"`
	PushEnabled      bool   `json:"push_enabled"`
	TelegramChatID   int64  `json:"telegram_chat_id,omitempty"`
	WhatsAppNumber   string `json:"whatsapp_number,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
}

// CredentialRequest carries the raw secret for one channel, e.g. a Google
// OAuth token JSON or a WhatsApp access token.
type CredentialRequest struct {
	Credential string `json:"credential"`
}

// handleSettings reads or replaces notification preferences.
// GET|PUT /api/v1/settings
func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		settings, err := s.db.GetUserSettings(r.Context(), user.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to get settings")
			writeError(w, http.StatusInternalServerError, "failed to get settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var req SettingsRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		settings, err := req.toSettings(user.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.db.UpsertUserSettings(r.Context(), settings); err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to save settings")
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}

		s.publish(events.SettingsUpdated, user.ID, 0, "api")
		s.log.Info().Int64("user_id", user.ID).Msg("settings updated")

		// Read back so the client sees normalized offsets and timestamps.
		saved, err := s.db.GetUserSettings(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get settings")
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (req *SettingsRequest) toSettings(userID int64) (*models.UserSettings, error) {
	for _, offset := range req.ReminderOffsets {
		if offset < 0 {
			return nil, fmt.Errorf("reminder_offsets must be non-negative")
		}
		if offset > 365 {
			return nil, fmt.Errorf("reminder_offsets must be 365 days or less")
		}
	}

	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone; expected an IANA name like Europe/Berlin")
		}
	}

	if req.TelegramEnabled && req.TelegramChatID == 0 {
		return nil, fmt.Errorf("telegram_chat_id is required when telegram is enabled")
	}
	if req.WhatsAppEnabled && req.WhatsAppNumber == "" {
		return nil, fmt.Errorf("whatsapp_number is required when whatsapp is enabled")
	}

	// Normalize to the stored form: deduped, descending, defaults on empty.
	offsets := models.ParseOffsets(models.FormatOffsets(req.ReminderOffsets))

	return &models.UserSettings{
		UserID:           userID,
		RemindersEnabled: req.RemindersEnabled,
		ReminderOffsets:  offsets,
		EmailEnabled:     req.EmailEnabled,
		WhatsAppEnabled:  req.WhatsAppEnabled,
		TelegramEnabled:  req.TelegramEnabled,
		CalendarEnabled:  req.CalendarEnabled,
		PushEnabled:      req.PushEnabled,
		TelegramChatID:   req.TelegramChatID,
		WhatsAppNumber:   req.WhatsAppNumber,
		Timezone:         req.Timezone,
	}, nil
}

// handleCredentials stores or removes an encrypted channel credential.
// PUT|DELETE /api/v1/settings/credentials/{channel}
func (s *HTTPServer) handleCredentials(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/settings/credentials/"
	channel, ok := models.ParseChannel(r.URL.Path[len(prefix):])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}
	if channel == models.ChannelPush {
		writeError(w, http.StatusBadRequest, "channel push does not take credentials")
		return
	}
	user := userFrom(r.Context())

	switch r.Method {
	case http.MethodPut:
		var req CredentialRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Credential == "" {
			writeError(w, http.StatusBadRequest, "credential is required")
			return
		}

		sealed, err := s.box.Seal(req.Credential)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to seal credential")
			writeError(w, http.StatusInternalServerError, "failed to store credential")
			return
		}
		if err := s.db.SaveChannelCredential(r.Context(), user.ID, channel, sealed); err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to store credential")
			writeError(w, http.StatusInternalServerError, "failed to store credential")
			return
		}

		s.log.Info().
			Int64("user_id", user.ID).
			Str("channel", string(channel)).
			Msg("channel credential stored")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": channel})

	case http.MethodDelete:
		if err := s.db.DeleteChannelCredential(r.Context(), user.ID, channel); err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to delete credential")
			writeError(w, http.StatusInternalServerError, "failed to delete credential")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": channel})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
