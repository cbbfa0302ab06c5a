package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestHandleSpending_Empty(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodGet, "/api/v1/analytics/spending", srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SpendingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.MonthlyTotal.IsZero() {
		t.Errorf("monthly_total = %s, want 0", resp.MonthlyTotal)
	}
	if resp.ActiveCount != 0 {
		t.Errorf("active_count = %d, want 0", resp.ActiveCount)
	}
	if len(resp.Upcoming) != 0 {
		t.Errorf("got %d upcoming renewals, want 0", len(resp.Upcoming))
	}
}

func TestHandleSpending_Totals(t *testing.T) {
	srv := setupTestServer(t)

	// 9.99/month streaming, renewing within the 30-day window.
	netflix := validSubscriptionBody()
	netflix["next_billing_date"] = time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	srv.createSubscription(t, netflix)

	// 120/year music: 10/month normalized, renewal far out.
	spotify := validSubscriptionBody()
	spotify["name"] = "Spotify"
	spotify["category"] = "music"
	spotify["amount"] = "120"
	spotify["billing_cycle"] = "yearly"
	spotify["next_billing_date"] = time.Now().UTC().AddDate(0, 6, 0).Format("2006-01-02")
	srv.createSubscription(t, spotify)

	// Inactive subscriptions do not count.
	gym := validSubscriptionBody()
	gym["name"] = "Old Gym"
	gym["amount"] = "50"
	gym["is_active"] = false
	srv.createSubscription(t, gym)

	w := srv.request(http.MethodGet, "/api/v1/analytics/spending", srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SpendingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if want := decimal.RequireFromString("19.99"); !resp.MonthlyTotal.Equal(want) {
		t.Errorf("monthly_total = %s, want %s", resp.MonthlyTotal, want)
	}
	if want := decimal.RequireFromString("239.88"); !resp.YearlyTotal.Equal(want) {
		t.Errorf("yearly_total = %s, want %s", resp.YearlyTotal, want)
	}
	if resp.ActiveCount != 2 {
		t.Errorf("active_count = %d, want 2", resp.ActiveCount)
	}

	if want := decimal.RequireFromString("9.99"); !resp.ByCategory["streaming"].Equal(want) {
		t.Errorf("by_category[streaming] = %s, want %s", resp.ByCategory["streaming"], want)
	}
	if want := decimal.RequireFromString("10"); !resp.ByCategory["music"].Equal(want) {
		t.Errorf("by_category[music] = %s, want %s", resp.ByCategory["music"], want)
	}

	if len(resp.Upcoming) != 1 {
		t.Fatalf("got %d upcoming renewals, want 1", len(resp.Upcoming))
	}
	if resp.Upcoming[0].Name != "Netflix" {
		t.Errorf("upcoming name = %q, want %q", resp.Upcoming[0].Name, "Netflix")
	}
}

func TestHandleSpending_UncategorizedBucket(t *testing.T) {
	srv := setupTestServer(t)

	body := validSubscriptionBody()
	delete(body, "category")
	srv.createSubscription(t, body)

	w := srv.request(http.MethodGet, "/api/v1/analytics/spending", srv.userKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SpendingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if _, ok := resp.ByCategory["other"]; !ok {
		t.Error("uncategorized subscription not bucketed under \"other\"")
	}
}

func TestHandleSpending_MethodNotAllowed(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.request(http.MethodPost, "/api/v1/analytics/spending", srv.userKey, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
