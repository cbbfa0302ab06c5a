package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// ParseBillingCycle validates a billing cycle string.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(s) {
	case CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return BillingCycle(s), nil
	default:
		return "", fmt.Errorf("invalid billing cycle: %q", s)
	}
}

// Subscription is a user-tracked recurring payment.
type Subscription struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Name            string          `json:"name"`
	Category        string          `json:"category,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	BillingCycle    BillingCycle    `json:"billing_cycle"`
	NextBillingDate time.Time       `json:"next_billing_date"`
	Website         string          `json:"website,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	IsActive        bool            `json:"is_active"`
	ClientRef       string          `json:"client_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NextAfter returns the billing date advanced by one cycle.
func (c BillingCycle) NextAfter(t time.Time) time.Time {
	switch c {
	case CycleWeekly:
		return t.AddDate(0, 0, 7)
	case CycleQuarterly:
		return t.AddDate(0, 3, 0)
	case CycleYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// AdvancePastDue rolls next_billing_date forward until it is on or after today.
// Returns the new date and the number of cycles skipped.
func (s *Subscription) AdvancePastDue(today time.Time) (time.Time, int) {
	next := s.NextBillingDate
	skipped := 0
	for next.Before(today) {
		next = s.BillingCycle.NextAfter(next)
		skipped++
	}
	return next, skipped
}

var (
	weeksPerYear     = decimal.NewFromInt(52)
	monthsPerQuarter = decimal.NewFromInt(3)
	monthsPerYear    = decimal.NewFromInt(12)
)

// MonthlyAmount normalizes the subscription cost to a per-month figure.
// Multiplication comes before division so exactly divisible amounts stay exact.
func (s *Subscription) MonthlyAmount() decimal.Decimal {
	switch s.BillingCycle {
	case CycleWeekly:
		return s.Amount.Mul(weeksPerYear).Div(monthsPerYear)
	case CycleQuarterly:
		return s.Amount.Div(monthsPerQuarter)
	case CycleYearly:
		return s.Amount.Div(monthsPerYear)
	default:
		return s.Amount
	}
}

// YearlyAmount normalizes the subscription cost to a per-year figure.
func (s *Subscription) YearlyAmount() decimal.Decimal {
	return s.MonthlyAmount().Mul(monthsPerYear)
}

// DaysUntilRenewal returns whole days between today and the next billing date.
// Both are truncated to dates; a renewal today returns 0, past-due is negative.
func (s *Subscription) DaysUntilRenewal(today time.Time) int {
	a := DateOnly(today)
	b := DateOnly(s.NextBillingDate)
	return int(b.Sub(a).Hours() / 24)
}

// DateOnly strips the clock from a time, keeping its location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
