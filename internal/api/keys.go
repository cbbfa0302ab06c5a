package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"subwatch/internal/database"
	"subwatch/internal/events"
	"subwatch/internal/models"
)

// KeyRequest is the request body for POST /api/v1/keys.
type KeyRequest struct {
	Label string `json:"label,omitempty"`
}

// KeyCreatedResponse returns the new key. The secret appears here exactly
// once; only its hash is stored.
type KeyCreatedResponse struct {
	Key    *models.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

// handleKeys lists or issues API keys for the calling account.
// GET|POST /api/v1/keys
func (s *HTTPServer) handleKeys(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		keys, err := s.db.ListAPIKeys(r.Context(), user.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list api keys")
			writeError(w, http.StatusInternalServerError, "failed to list keys")
			return
		}
		if keys == nil {
			keys = make([]models.APIKey, 0)
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys})

	case http.MethodPost:
		var req KeyRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		key, secret, err := s.db.CreateAPIKey(r.Context(), user.ID, strings.TrimSpace(req.Label))
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to create api key")
			writeError(w, http.StatusInternalServerError, "failed to create key")
			return
		}

		s.publish(events.APIKeyCreated, user.ID, 0, key.Prefix)
		s.log.Info().
			Int64("user_id", user.ID).
			Str("prefix", key.Prefix).
			Msg("api key created")
		writeJSON(w, http.StatusCreated, KeyCreatedResponse{Key: key, Secret: secret})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleKeyByID revokes an API key. Revoking the key used for the current
// request is allowed; the next request with it gets 401.
// DELETE /api/v1/keys/{id}
func (s *HTTPServer) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/keys/"
	id, err := strconv.ParseInt(r.URL.Path[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	user := userFrom(r.Context())
	if err := s.db.RevokeAPIKey(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "api key not found")
			return
		}
		s.log.Error().Err(err).Int64("key_id", id).Msg("failed to revoke api key")
		writeError(w, http.StatusInternalServerError, "failed to revoke key")
		return
	}

	s.publish(events.APIKeyRevoked, user.ID, 0, "")
	s.log.Info().
		Int64("user_id", user.ID).
		Int64("key_id", id).
		Msg("api key revoked")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
