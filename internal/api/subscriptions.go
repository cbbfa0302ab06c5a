package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"subwatch/internal/database"
	"subwatch/internal/events"
	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

// SubscriptionRequest is the request body for POST /api/v1/subscriptions.
type SubscriptionRequest struct {
	Name            string `json:"name"`
	Category        string `json:"category,omitempty"`
	Amount          string `json:"amount"`            // decimal string, e.g. "9.99"
	Currency        string `json:"currency"`          // ISO 4217, e.g. "USD"
	BillingCycle    string `json:"billing_cycle"`     // weekly|monthly|quarterly|yearly
	NextBillingDate string `json:"next_billing_date"` // Format: YYYY-MM-DD
	Website         string `json:"website,omitempty"`
	Notes           string `json:"notes,omitempty"`
	IsActive        *bool  `json:"is_active,omitempty"`
	ClientRef       string `json:"client_ref,omitempty"` // extension-side identity
}

// SubscriptionUpdateRequest is the request body for PUT. Omitted fields
// keep their stored values.
type SubscriptionUpdateRequest struct {
	Name            *string `json:"name,omitempty"`
	Category        *string `json:"category,omitempty"`
	Amount          *string `json:"amount,omitempty"`
	Currency        *string `json:"currency,omitempty"`
	BillingCycle    *string `json:"billing_cycle,omitempty"`
	NextBillingDate *string `json:"next_billing_date,omitempty"`
	Website         *string `json:"website,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

// ReminderResponse is the wire form of one reminder row.
type ReminderResponse struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscription_id"`
	OffsetDays     int        `json:"offset_days"`
	DueDate        string     `json:"due_date"` // Format: YYYY-MM-DD
	ScheduledAt    time.Time  `json:"scheduled_at"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	RetryCount     int        `json:"retry_count"`
	LastError      string     `json:"last_error,omitempty"`
}

// handleSubscriptions lists or creates subscriptions.
// GET|POST /api/v1/subscriptions
func (s *HTTPServer) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSubscriptions(w, r)
	case http.MethodPost:
		s.createSubscription(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listSubscriptions supports ?category=, ?active=true|false and
// ?upcoming_within_days=N.
func (s *HTTPServer) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	filter := database.SubscriptionFilter{Category: r.URL.Query().Get("category")}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active filter; expected true or false")
			return
		}
		filter.Active = &active
	}

	var (
		subs []models.Subscription
		err  error
	)
	if v := r.URL.Query().Get("upcoming_within_days"); v != "" {
		days, convErr := strconv.Atoi(v)
		if convErr != nil || days < 0 {
			writeError(w, http.StatusBadRequest, "invalid upcoming_within_days; expected a non-negative integer")
			return
		}
		subs, err = s.db.ListUpcomingRenewals(r.Context(), user.ID, time.Now().UTC(), days)
		if err == nil && filter.Category != "" {
			subs = filterByCategory(subs, filter.Category)
		}
	} else {
		subs, err = s.db.ListSubscriptions(r.Context(), user.ID, filter)
	}
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list subscriptions")
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	if subs == nil {
		subs = make([]models.Subscription, 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *HTTPServer) createSubscription(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req SubscriptionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sub, err := req.toSubscription(user.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.CreateSubscription(r.Context(), sub); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "subscription with this client_ref already exists")
			return
		}
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to create subscription")
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	s.publish(events.SubscriptionCreated, user.ID, sub.ID, "api")
	s.log.Info().
		Int64("user_id", user.ID).
		Int64("subscription_id", sub.ID).
		Str("name", sub.Name).
		Msg("subscription created")

	writeJSON(w, http.StatusCreated, sub)
}

// handleSubscriptionByID serves one subscription and its reminders.
// GET|PUT|DELETE /api/v1/subscriptions/{id}
// GET /api/v1/subscriptions/{id}/reminders
func (s *HTTPServer) handleSubscriptionByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/subscriptions/"
	rest := r.URL.Path[len(prefix):]

	idPart, subPath, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	switch {
	case subPath == "":
		switch r.Method {
		case http.MethodGet:
			s.getSubscription(w, r, id)
		case http.MethodPut:
			s.updateSubscription(w, r, id)
		case http.MethodDelete:
			s.deleteSubscription(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case subPath == "reminders":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.listSubscriptionReminders(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) getSubscription(w http.ResponseWriter, r *http.Request, id int64) {
	user := userFrom(r.Context())

	sub, err := s.db.GetSubscription(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		s.log.Error().Err(err).Int64("subscription_id", id).Msg("failed to get subscription")
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *HTTPServer) updateSubscription(w http.ResponseWriter, r *http.Request, id int64) {
	user := userFrom(r.Context())

	var req SubscriptionUpdateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sub, err := s.db.GetSubscription(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}

	if err := req.apply(sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.UpdateSubscription(r.Context(), sub); err != nil {
		s.log.Error().Err(err).Int64("subscription_id", id).Msg("failed to update subscription")
		writeError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	s.publish(events.SubscriptionUpdated, user.ID, sub.ID, "api")
	writeJSON(w, http.StatusOK, sub)
}

func (s *HTTPServer) deleteSubscription(w http.ResponseWriter, r *http.Request, id int64) {
	user := userFrom(r.Context())

	if err := s.db.DeleteSubscription(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		s.log.Error().Err(err).Int64("subscription_id", id).Msg("failed to delete subscription")
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	s.publish(events.SubscriptionDeleted, user.ID, id, "api")
	s.log.Info().
		Int64("user_id", user.ID).
		Int64("subscription_id", id).
		Msg("subscription deleted")

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) listSubscriptionReminders(w http.ResponseWriter, r *http.Request, id int64) {
	user := userFrom(r.Context())

	// Ownership check first so foreign subscriptions read as missing.
	if _, err := s.db.GetSubscription(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}

	rows, err := s.db.ReminderStore().FindReminders(r.Context(), reminders.ReminderFilter{
		UserID:         &user.ID,
		SubscriptionID: &id,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("subscription_id", id).Msg("failed to list reminders")
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}

	out := make([]ReminderResponse, 0, len(rows))
	for _, rem := range rows {
		out = append(out, ReminderResponse{
			ID:             rem.ID,
			SubscriptionID: rem.SubscriptionID,
			OffsetDays:     rem.OffsetDays,
			DueDate:        rem.DueDate.Format("2006-01-02"),
			ScheduledAt:    rem.ScheduledAt,
			Status:         string(rem.Status),
			SentAt:         rem.SentAt,
			RetryCount:     rem.RetryCount,
			LastError:      rem.LastError,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": out})
}

func (req *SubscriptionRequest) toSubscription(userID int64) (*models.Subscription, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := parseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	cycle, err := parseCycle(req.BillingCycle)
	if err != nil {
		return nil, err
	}
	date, err := parseBillingDate(req.NextBillingDate)
	if err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return &models.Subscription{
		UserID:          userID,
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.TrimSpace(req.Category),
		Amount:          amount,
		Currency:        currency,
		BillingCycle:    cycle,
		NextBillingDate: date,
		Website:         strings.TrimSpace(req.Website),
		Notes:           req.Notes,
		IsActive:        active,
		ClientRef:       strings.TrimSpace(req.ClientRef),
	}, nil
}

// apply copies the provided fields onto sub, validating each.
func (req *SubscriptionUpdateRequest) apply(sub *models.Subscription) error {
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return fmt.Errorf("name cannot be empty")
		}
		sub.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		sub.Category = strings.TrimSpace(*req.Category)
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			return err
		}
		sub.Amount = amount
	}
	if req.Currency != nil {
		currency, err := parseCurrency(*req.Currency)
		if err != nil {
			return err
		}
		sub.Currency = currency
	}
	if req.BillingCycle != nil {
		cycle, err := parseCycle(*req.BillingCycle)
		if err != nil {
			return err
		}
		sub.BillingCycle = cycle
	}
	if req.NextBillingDate != nil {
		date, err := parseBillingDate(*req.NextBillingDate)
		if err != nil {
			return err
		}
		sub.NextBillingDate = date
	}
	if req.Website != nil {
		sub.Website = strings.TrimSpace(*req.Website)
	}
	if req.Notes != nil {
		sub.Notes = *req.Notes
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount; expected a decimal like 9.99")
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseCurrency(s string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(s))
	if len(currency) != 3 {
		return "", fmt.Errorf("invalid currency; expected a 3-letter ISO code")
	}
	for _, c := range currency {
		if c < 'A' || c > 'Z' {
			return "", fmt.Errorf("invalid currency; expected a 3-letter ISO code")
		}
	}
	return currency, nil
}

func parseCycle(s string) (models.BillingCycle, error) {
	cycle, err := models.ParseBillingCycle(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid billing_cycle; expected weekly, monthly, quarterly or yearly")
	}
	return cycle, nil
}

func parseBillingDate(s string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid next_billing_date format; expected YYYY-MM-DD")
	}
	return date.UTC(), nil
}

func filterByCategory(subs []models.Subscription, category string) []models.Subscription {
	out := make([]models.Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Category == category {
			out = append(out, sub)
		}
	}
	return out
}
