package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"subwatch/internal/database"
	"subwatch/internal/events"
	"subwatch/internal/metrics"
	"subwatch/internal/models"
)

// SyncSnapshot is one client-side subscription in a sync exchange. The
// client_ref is the extension's stable identity for the row.
type SyncSnapshot struct {
	ClientRef       string     `json:"client_ref"`
	Name            string     `json:"name"`
	Category        string     `json:"category,omitempty"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	BillingCycle    string     `json:"billing_cycle"`
	NextBillingDate string     `json:"next_billing_date"` // Format: YYYY-MM-DD
	Website         string     `json:"website,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	IsActive        *bool      `json:"is_active,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"` // drives last-write-wins
}

// SyncRequest is the request body for POST /api/v1/sync.
type SyncRequest struct {
	ClientID      string         `json:"client_id"`
	Subscriptions []SyncSnapshot `json:"subscriptions"`
	// ChangesOnly asks for only the rows modified since this client's
	// previous sync instead of the full server set.
	ChangesOnly bool `json:"changes_only,omitempty"`
}

// SyncResponse returns the server-side state after the exchange.
type SyncResponse struct {
	Subscriptions []models.Subscription `json:"subscriptions"`
	Applied       int                   `json:"applied"`
	SyncedAt      time.Time             `json:"synced_at"`
}

// handleSync is the extension's push/pull exchange: upsert the client's
// snapshots last-write-wins by (user, client_ref), then return the server
// set. Try-once semantics, no conflict resolution beyond timestamps.
// POST /api/v1/sync
func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SyncRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	user := userFrom(r.Context())
	clientID := strings.TrimSpace(req.ClientID)

	lastSynced, err := s.db.GetSyncState(r.Context(), user.ID, clientID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to load sync state")
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	applied := 0
	for i := range req.Subscriptions {
		sub, err := req.Subscriptions[i].toSubscription(user.ID)
		if err != nil {
			metrics.IncSyncExchange("rejected")
			writeError(w, http.StatusBadRequest, fmt.Sprintf("subscriptions[%d]: %v", i, err))
			return
		}
		if err := s.db.UpsertSubscriptionByClientRef(r.Context(), sub); err != nil {
			s.log.Error().Err(err).
				Int64("user_id", user.ID).
				Str("client_ref", sub.ClientRef).
				Msg("failed to upsert synced subscription")
			metrics.IncSyncExchange("error")
			writeError(w, http.StatusInternalServerError, "sync failed")
			return
		}
		applied++
	}

	// The pull half returns active and paused rows alike so the extension
	// can reconcile both.
	var serverSubs []models.Subscription
	if req.ChangesOnly {
		serverSubs, err = s.db.ListSubscriptionsChangedSince(r.Context(), user.ID, lastSynced)
	} else {
		serverSubs, err = s.db.ListSubscriptions(r.Context(), user.ID, database.SubscriptionFilter{})
	}
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list subscriptions for sync")
		metrics.IncSyncExchange("error")
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	syncedAt := time.Now().UTC()
	if err := s.db.SetSyncState(r.Context(), user.ID, clientID, syncedAt); err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to record sync state")
		metrics.IncSyncExchange("error")
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	s.publish(events.SyncCompleted, user.ID, 0, clientID)
	metrics.IncSyncExchange("ok")
	s.log.Info().
		Int64("user_id", user.ID).
		Str("client_id", clientID).
		Int("applied", applied).
		Int("returned", len(serverSubs)).
		Msg("sync exchange completed")

	if serverSubs == nil {
		serverSubs = make([]models.Subscription, 0)
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Subscriptions: serverSubs,
		Applied:       applied,
		SyncedAt:      syncedAt,
	})
}

func (snap *SyncSnapshot) toSubscription(userID int64) (*models.Subscription, error) {
	if strings.TrimSpace(snap.ClientRef) == "" {
		return nil, fmt.Errorf("client_ref is required")
	}
	if strings.TrimSpace(snap.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}

	amount, err := parseAmount(snap.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := parseCurrency(snap.Currency)
	if err != nil {
		return nil, err
	}
	cycle, err := parseCycle(snap.BillingCycle)
	if err != nil {
		return nil, err
	}
	date, err := parseBillingDate(snap.NextBillingDate)
	if err != nil {
		return nil, err
	}

	active := true
	if snap.IsActive != nil {
		active = *snap.IsActive
	}

	sub := &models.Subscription{
		UserID:          userID,
		Name:            strings.TrimSpace(snap.Name),
		Category:        strings.TrimSpace(snap.Category),
		Amount:          amount,
		Currency:        currency,
		BillingCycle:    cycle,
		NextBillingDate: date,
		Website:         strings.TrimSpace(snap.Website),
		Notes:           snap.Notes,
		IsActive:        active,
		ClientRef:       strings.TrimSpace(snap.ClientRef),
	}
	if snap.UpdatedAt != nil {
		sub.UpdatedAt = snap.UpdatedAt.UTC()
	}
	return sub, nil
}
