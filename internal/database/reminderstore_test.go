package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

type engineNopLogger struct{}

func (engineNopLogger) Info(string, ...interface{})  {}
func (engineNopLogger) Error(string, ...interface{}) {}
func (engineNopLogger) Debug(string, ...interface{}) {}

// captureNotifier records renewal reminders the engine hands it.
type captureNotifier struct {
	mu    sync.Mutex
	calls []int64 // subscription IDs
}

func (n *captureNotifier) SendRenewalReminder(_ context.Context, _ int64, sub reminders.Subscription, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, sub.GetID())
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func seedReminder(t *testing.T, store *ReminderStore, userID, subID int64, offset int, due time.Time) *reminders.Reminder {
	t.Helper()
	r := &reminders.Reminder{
		UserID:         userID,
		SubscriptionID: subID,
		OffsetDays:     offset,
		DueDate:        due,
		ScheduledAt:    time.Now().UTC().Add(-time.Minute),
		Status:         reminders.ReminderStatusPending,
	}
	inserted, err := store.CreateReminder(context.Background(), r)
	require.NoError(t, err)
	require.True(t, inserted)
	return r
}

func TestReminderStore_CreateIgnoresDuplicates(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	sub := createTestSubscription(t, db, user.ID, "Netflix", utcDate(2026, 9, 10))

	due := utcDate(2026, 9, 10)
	seedReminder(t, store, user.ID, sub.ID, 3, due)

	dup := &reminders.Reminder{
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		OffsetDays:     3,
		DueDate:        due,
		ScheduledAt:    time.Now().UTC(),
		Status:         reminders.ReminderStatusPending,
	}
	inserted, err := store.CreateReminder(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted, "same subscription, offset and due date")

	// A different offset for the same date is a separate reminder.
	other := &reminders.Reminder{
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		OffsetDays:     1,
		DueDate:        due,
		ScheduledAt:    time.Now().UTC(),
		Status:         reminders.ReminderStatusPending,
	}
	inserted, err = store.CreateReminder(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := store.CountPendingReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestReminderStore_AcquireRelease(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	sub := createTestSubscription(t, db, user.ID, "Netflix", utcDate(2026, 9, 10))
	r := seedReminder(t, store, user.ID, sub.ID, 3, utcDate(2026, 9, 10))

	acquired, err := store.TryAcquireReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Second acquire loses the race.
	acquired, err = store.TryAcquireReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, store.ReleaseReminder(ctx, r.ID))
	acquired, err = store.TryAcquireReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Terminal rows are not resurrected by a release.
	sentAt := time.Now().UTC()
	r.Status = reminders.ReminderStatusSent
	r.SentAt = &sentAt
	require.NoError(t, store.UpdateReminder(ctx, r))
	require.NoError(t, store.ReleaseReminder(ctx, r.ID))

	found, err := store.FindReminders(ctx, reminders.ReminderFilter{
		Status: []reminders.ReminderStatus{reminders.ReminderStatusSent},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, r.ID, found[0].ID)
	require.NotNil(t, found[0].SentAt)
	assert.WithinDuration(t, sentAt, *found[0].SentAt, time.Second)
}

func TestReminderStore_FindAndDelete(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	sub := createTestSubscription(t, db, user.ID, "Netflix", utcDate(2026, 9, 10))

	fresh := seedReminder(t, store, user.ID, sub.ID, 7, utcDate(2026, 9, 10))

	old := seedReminder(t, store, user.ID, sub.ID, 7, utcDate(2026, 7, 10))
	oldSentAt := time.Now().UTC().Add(-45 * 24 * time.Hour)
	old.Status = reminders.ReminderStatusSent
	old.SentAt = &oldSentAt
	require.NoError(t, store.UpdateReminder(ctx, old))

	// Filter by user.
	byUser, err := store.FindReminders(ctx, reminders.ReminderFilter{UserID: &user.ID})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	// Filter by subscription and status.
	pending, err := store.FindReminders(ctx, reminders.ReminderFilter{
		SubscriptionID: &sub.ID,
		Status:         []reminders.ReminderStatus{reminders.ReminderStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)

	// Cleanup filter: sent before a cutoff.
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	deleted, err := store.DeleteReminders(ctx, reminders.ReminderFilter{
		Status:     []reminders.ReminderStatus{reminders.ReminderStatusSent},
		SentBefore: &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.FindReminders(ctx, reminders.ReminderFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestReminderStore_CascadeOnSubscriptionDelete(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	sub := createTestSubscription(t, db, user.ID, "Netflix", utcDate(2026, 9, 10))
	seedReminder(t, store, user.ID, sub.ID, 3, utcDate(2026, 9, 10))

	require.NoError(t, db.DeleteSubscription(ctx, user.ID, sub.ID))

	count, err := store.CountPendingReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "reminders go with their subscription")
}

func TestReminderStore_ActiveSubscriptions(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com")
	blocked := createTestUser(t, db, "spam@example.com")
	require.NoError(t, db.BlockUser(ctx, blocked.ID, "abuse"))

	active := createTestSubscription(t, db, alice.ID, "Netflix", utcDate(2026, 9, 10))
	inactive := createTestSubscription(t, db, alice.ID, "Old Gym", utcDate(2026, 9, 12))
	require.NoError(t, db.SetSubscriptionActive(ctx, alice.ID, inactive.ID, false))
	blockedSub := createTestSubscription(t, db, blocked.ID, "Spotify", utcDate(2026, 9, 11))

	subs, err := store.GetActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, active.ID, subs[0].GetID())
	assert.Equal(t, "Netflix", subs[0].GetName())
	assert.Equal(t, "9.99", subs[0].GetAmount())

	// By ID: inactive, blocked-owner and missing all read as nil.
	got, err := store.GetSubscriptionByID(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = store.GetSubscriptionByID(ctx, inactive.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetSubscriptionByID(ctx, blockedSub.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetSubscriptionByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReminderStore_RollForwardBilling(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	sub := createTestSubscription(t, db, user.ID, "Netflix", utcDate(2026, 5, 10))

	today := utcDate(2026, 8, 25)
	next, err := store.RollForwardBilling(ctx, sub.ID, today)
	require.NoError(t, err)
	assert.True(t, next.Equal(utcDate(2026, 9, 10)), "monthly cycles skipped up to the next renewal, got %s", next)

	stored, err := db.GetSubscription(ctx, user.ID, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextBillingDate.Equal(utcDate(2026, 9, 10)))

	// Already in the future: unchanged.
	next, err = store.RollForwardBilling(ctx, sub.ID, today)
	require.NoError(t, err)
	assert.True(t, next.Equal(utcDate(2026, 9, 10)))

	_, err = store.RollForwardBilling(ctx, 9999, today)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReminderStore_SettingsAdapter(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")

	// Defaults for a user who never saved settings.
	settings, err := store.GetUserSettings(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, settings.RemindersEnabled)
	assert.Equal(t, reminders.DefaultOffsets, settings.Offsets)

	saved := models.DefaultUserSettings(user.ID)
	saved.RemindersEnabled = false
	saved.ReminderOffsets = []int{5}
	require.NoError(t, db.UpsertUserSettings(ctx, saved))

	settings, err = store.GetUserSettings(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, settings.RemindersEnabled)
	assert.Equal(t, []int{5}, settings.Offsets)
}

// The full engine running against the real store: generate, dispatch, repeat.
func TestReminderStore_EngineIntegration(t *testing.T) {
	db := newTestDB(t)
	store := db.ReminderStore()
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	today := models.DateOnly(time.Now().UTC())
	createTestSubscription(t, db, user.ID, "Netflix", today.AddDate(0, 0, 3))

	settings := models.DefaultUserSettings(user.ID)
	settings.ReminderOffsets = []int{3}
	require.NoError(t, db.UpsertUserSettings(ctx, settings))

	notifier := &captureNotifier{}
	svc := reminders.NewService(store, store, store, engineNopLogger{}, nil)
	sender := reminders.NewSender(notifier, store, reminders.SenderConfig{
		RateLimiter: reminders.RateLimiterConfig{Rate: 10000, Burst: 100},
		Retry:       reminders.RetryConfig{MaxRetries: 1, RetryDelays: []time.Duration{time.Millisecond}},
	}, engineNopLogger{}, nil)

	created, err := svc.GenerateDueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Re-running generates nothing new.
	created, err = svc.GenerateDueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, created)

	sched, err := reminders.NewScheduler(reminders.SchedulerConfig{
		Timezone:      "UTC",
		DailyHour:     9,
		CheckInterval: time.Minute,
	}, svc, sender, engineNopLogger{})
	require.NoError(t, err)

	sched.RunNow(ctx)
	assert.Equal(t, 1, notifier.count())

	pending, err := store.CountPendingReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	sent, err := store.FindReminders(ctx, reminders.ReminderFilter{
		Status: []reminders.ReminderStatus{reminders.ReminderStatusSent},
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.NotNil(t, sent[0].SentAt)
}
