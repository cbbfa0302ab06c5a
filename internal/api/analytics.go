package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"subwatch/internal/cache"
	"subwatch/internal/database"
	"subwatch/internal/models"
)

// analyticsUpcomingDays is the window for the upcoming-renewals block.
const analyticsUpcomingDays = 30

// UpcomingRenewal is one renewal inside the analytics window.
type UpcomingRenewal struct {
	SubscriptionID  int64           `json:"subscription_id"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	NextBillingDate string          `json:"next_billing_date"` // Format: YYYY-MM-DD
	DaysUntil       int             `json:"days_until"`
}

// SpendingResponse is the response for GET /api/v1/analytics/spending.
type SpendingResponse struct {
	MonthlyTotal decimal.Decimal            `json:"monthly_total"`
	YearlyTotal  decimal.Decimal            `json:"yearly_total"`
	ByCategory   map[string]decimal.Decimal `json:"by_category"`
	ActiveCount  int                        `json:"active_count"`
	Upcoming     []UpcomingRenewal          `json:"upcoming_renewals"`
	ComputedAt   time.Time                  `json:"computed_at"`
}

// handleSpending aggregates what the user pays, normalized per month and
// per year. Served from cache until a subscription write invalidates it.
// GET /api/v1/analytics/spending
func (s *HTTPServer) handleSpending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user := userFrom(r.Context())

	cacheKey := cache.UserKey(user.ID, "analytics:spending")
	var cached SpendingResponse
	if s.cache.Get(r.Context(), cacheKey, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	active := true
	subs, err := s.db.ListSubscriptions(r.Context(), user.ID, database.SubscriptionFilter{Active: &active})
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to compute spending")
		writeError(w, http.StatusInternalServerError, "failed to compute spending")
		return
	}

	resp := buildSpending(subs, time.Now().UTC())
	s.cache.Set(r.Context(), cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

// buildSpending sums active subscriptions. Amounts in different currencies
// are added as-is; there is no FX conversion server-side.
func buildSpending(subs []models.Subscription, now time.Time) SpendingResponse {
	resp := SpendingResponse{
		ByCategory: make(map[string]decimal.Decimal),
		Upcoming:   make([]UpcomingRenewal, 0),
		ComputedAt: now,
	}

	for _, sub := range subs {
		monthly := sub.MonthlyAmount()
		resp.MonthlyTotal = resp.MonthlyTotal.Add(monthly)
		resp.YearlyTotal = resp.YearlyTotal.Add(sub.YearlyAmount())

		category := sub.Category
		if category == "" {
			category = "other"
		}
		resp.ByCategory[category] = resp.ByCategory[category].Add(monthly)

		days := sub.DaysUntilRenewal(now)
		if days >= 0 && days <= analyticsUpcomingDays {
			resp.Upcoming = append(resp.Upcoming, UpcomingRenewal{
				SubscriptionID:  sub.ID,
				Name:            sub.Name,
				Amount:          sub.Amount,
				Currency:        sub.Currency,
				NextBillingDate: sub.NextBillingDate.Format("2006-01-02"),
				DaysUntil:       days,
			})
		}
	}

	resp.ActiveCount = len(subs)
	resp.MonthlyTotal = resp.MonthlyTotal.Round(2)
	resp.YearlyTotal = resp.YearlyTotal.Round(2)
	for category, total := range resp.ByCategory {
		resp.ByCategory[category] = total.Round(2)
	}
	return resp
}
