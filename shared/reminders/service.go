package reminders

import (
	"context"
	"fmt"
	"time"
)

// Service generates reminder rows for subscriptions whose renewal is one of
// the user's configured day offsets away.
type Service struct {
	repo     Repository
	subs     SubscriptionStore
	settings SettingsStore
	logger   Logger
	metrics  *Metrics
}

// NewService creates a new reminder generation service. metrics may be nil.
func NewService(
	repo Repository,
	subs SubscriptionStore,
	settings SettingsStore,
	logger Logger,
	metrics *Metrics,
) *Service {
	return &Service{
		repo:     repo,
		subs:     subs,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
	}
}

// DueOffsets returns the offsets (in days) that fire today for a renewal on
// nextBilling. An offset d fires when today + d days == nextBilling, with
// both sides truncated to calendar dates. Negative and duplicate offsets are
// ignored; a nextBilling already in the past yields nothing.
func DueOffsets(nextBilling, today time.Time, offsets []int) []int {
	nb := dateUTC(nextBilling)
	td := dateUTC(today)
	if nb.Before(td) {
		return nil
	}
	days := int(nb.Sub(td).Hours() / 24)

	seen := make(map[int]bool)
	var due []int
	for _, d := range offsets {
		if d < 0 || seen[d] {
			continue
		}
		seen[d] = true
		if d == days {
			due = append(due, d)
		}
	}
	return due
}

// dateUTC re-anchors the calendar date of t at UTC midnight. Day arithmetic
// on the result is DST-proof.
func dateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GenerateDueReminders scans active subscriptions, rolls past-due billing
// dates forward, and inserts a pending reminder row for every offset that
// fires today. Insertion is idempotent, so running twice in one day creates
// nothing new. Returns the number of rows created.
func (s *Service) GenerateDueReminders(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.subs.GetActiveSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("get active subscriptions: %w", err)
	}

	created := 0
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return created, ctx.Err()
		default:
		}

		settings, err := s.settings.GetUserSettings(ctx, sub.GetUserID())
		if err != nil {
			s.logger.Error("failed to get user settings",
				"user_id", sub.GetUserID(),
				"error", err)
			settings = DefaultUserSettings(sub.GetUserID())
		}
		if !settings.RemindersEnabled {
			continue
		}

		offsets := settings.Offsets
		if len(offsets) == 0 {
			offsets = DefaultOffsets
		}

		nextBilling := sub.GetNextBillingDate()
		if dateUTC(nextBilling).Before(dateUTC(now)) {
			rolled, err := s.subs.RollForwardBilling(ctx, sub.GetID(), now)
			if err != nil {
				s.logger.Error("failed to roll forward billing date",
					"subscription_id", sub.GetID(),
					"error", err)
				continue
			}
			nextBilling = rolled
		}

		for _, d := range DueOffsets(nextBilling, now, offsets) {
			r := &Reminder{
				UserID:         sub.GetUserID(),
				SubscriptionID: sub.GetID(),
				OffsetDays:     d,
				DueDate:        dateUTC(nextBilling),
				ScheduledAt:    now,
				Status:         ReminderStatusPending,
			}
			inserted, err := s.repo.CreateReminder(ctx, r)
			if err != nil {
				s.logger.Error("failed to create reminder",
					"subscription_id", sub.GetID(),
					"offset_days", d,
					"error", err)
				continue
			}
			if inserted {
				created++
			}
		}
	}

	if count, err := s.repo.CountPendingReminders(ctx); err == nil {
		s.metrics.SetQueueSize(count)
	}

	if created > 0 {
		s.logger.Info("generated due reminders", "created", created)
	}
	return created, nil
}
