package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestBillingCycle_NextAfter(t *testing.T) {
	start := date(2026, 1, 15)

	assert.Equal(t, date(2026, 1, 22), CycleWeekly.NextAfter(start))
	assert.Equal(t, date(2026, 2, 15), CycleMonthly.NextAfter(start))
	assert.Equal(t, date(2026, 4, 15), CycleQuarterly.NextAfter(start))
	assert.Equal(t, date(2027, 1, 15), CycleYearly.NextAfter(start))
}

func TestBillingCycle_NextAfter_MonthEnd(t *testing.T) {
	// Jan 31 + 1 month normalizes the way time.AddDate does.
	next := CycleMonthly.NextAfter(date(2026, 1, 31))
	assert.Equal(t, date(2026, 3, 3), next)
}

func TestParseBillingCycle(t *testing.T) {
	tests := []struct {
		in      string
		want    BillingCycle
		wantErr bool
	}{
		{"weekly", CycleWeekly, false},
		{"monthly", CycleMonthly, false},
		{"quarterly", CycleQuarterly, false},
		{"yearly", CycleYearly, false},
		{"daily", "", true},
		{"", "", true},
		{"Monthly", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBillingCycle(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestSubscription_AdvancePastDue(t *testing.T) {
	s := Subscription{
		BillingCycle:    CycleMonthly,
		NextBillingDate: date(2026, 1, 10),
	}

	today := date(2026, 3, 15)
	next, skipped := s.AdvancePastDue(today)
	assert.Equal(t, date(2026, 4, 10), next)
	assert.Equal(t, 3, skipped)

	// Already in the future: unchanged.
	s.NextBillingDate = date(2026, 4, 1)
	next, skipped = s.AdvancePastDue(today)
	assert.Equal(t, date(2026, 4, 1), next)
	assert.Equal(t, 0, skipped)

	// Due exactly today stays put.
	s.NextBillingDate = today
	next, skipped = s.AdvancePastDue(today)
	assert.Equal(t, today, next)
	assert.Equal(t, 0, skipped)
}

func TestSubscription_MonthlyAmount(t *testing.T) {
	tests := []struct {
		cycle  BillingCycle
		amount string
		want   string
	}{
		{CycleMonthly, "9.99", "9.99"},
		{CycleYearly, "120", "10"},
		{CycleQuarterly, "30", "10"},
		{CycleWeekly, "12", "52"}, // 12 * 52/12
	}

	for _, tt := range tests {
		s := Subscription{
			BillingCycle: tt.cycle,
			Amount:       decimal.RequireFromString(tt.amount),
		}
		want := decimal.RequireFromString(tt.want)
		assert.True(t, s.MonthlyAmount().Equal(want),
			"%s %s: got %s, want %s", tt.cycle, tt.amount, s.MonthlyAmount(), want)
	}
}

func TestSubscription_YearlyAmount(t *testing.T) {
	s := Subscription{
		BillingCycle: CycleMonthly,
		Amount:       decimal.RequireFromString("10"),
	}
	assert.True(t, s.YearlyAmount().Equal(decimal.RequireFromString("120")))
}

func TestSubscription_DaysUntilRenewal(t *testing.T) {
	s := Subscription{NextBillingDate: date(2026, 1, 20)}

	assert.Equal(t, 5, s.DaysUntilRenewal(date(2026, 1, 15)))
	assert.Equal(t, 0, s.DaysUntilRenewal(date(2026, 1, 20)))
	assert.Equal(t, -2, s.DaysUntilRenewal(date(2026, 1, 22)))

	// Clock time on "today" must not shift the result.
	noon := time.Date(2026, 1, 15, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, 5, s.DaysUntilRenewal(noon))
}

func TestParseOffsets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []int
	}{
		{"default order", "7,3,1", []int{7, 3, 1}},
		{"resorted descending", "1,14,3", []int{14, 3, 1}},
		{"duplicates collapsed", "7,7,3", []int{7, 3}},
		{"spaces tolerated", " 7 , 3 ", []int{7, 3}},
		{"negatives dropped", "-1,5", []int{5}},
		{"zero kept", "0,1", []int{1, 0}},
		{"garbage falls back", "a,b", DefaultReminderOffsets},
		{"empty falls back", "", DefaultReminderOffsets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOffsets(tt.in))
		})
	}
}

func TestFormatOffsets(t *testing.T) {
	assert.Equal(t, "7,3,1", FormatOffsets([]int{7, 3, 1}))
	assert.Equal(t, "", FormatOffsets(nil))

	// Round-trips through parse.
	assert.Equal(t, []int{14, 7, 1}, ParseOffsets(FormatOffsets([]int{14, 7, 1})))
}

func TestKeyHelpers(t *testing.T) {
	secret := NewKeySecret()
	assert.True(t, len(secret) == 3+32, "secret %q", secret)
	assert.Equal(t, "sw_", secret[:3])

	prefix := KeyPrefix(secret)
	assert.Equal(t, "sw_"+secret[3:11], prefix)
	assert.Len(t, HashKey(secret), 64)

	// Two secrets never collide on hash (sanity, not crypto proof).
	assert.NotEqual(t, HashKey(secret), HashKey(NewKeySecret()))
}
