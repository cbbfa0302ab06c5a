package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}

// MockRepository implements Repository for testing.
type MockRepository struct {
	mu        sync.Mutex
	reminders map[int64]*Reminder
	nextID    int64
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		reminders: make(map[int64]*Reminder),
		nextID:    1,
	}
}

func (m *MockRepository) CreateReminder(ctx context.Context, r *Reminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.reminders {
		if existing.SubscriptionID == r.SubscriptionID &&
			existing.OffsetDays == r.OffsetDays &&
			existing.DueDate.Equal(r.DueDate) {
			return false, nil
		}
	}

	cp := *r
	cp.ID = m.nextID
	m.nextID++
	m.reminders[cp.ID] = &cp
	r.ID = cp.ID
	return true, nil
}

func (m *MockRepository) UpdateReminder(ctx context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reminders[r.ID]; ok {
		cp := *r
		m.reminders[r.ID] = &cp
	}
	return nil
}

func (m *MockRepository) matches(r *Reminder, filter ReminderFilter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, s := range filter.Status {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ScheduledAtBefore != nil && r.ScheduledAt.After(*filter.ScheduledAtBefore) {
		return false
	}
	if filter.SentBefore != nil && (r.SentAt == nil || !r.SentAt.Before(*filter.SentBefore)) {
		return false
	}
	if filter.UpdatedBefore != nil && !r.UpdatedAt.Before(*filter.UpdatedBefore) {
		return false
	}
	if filter.UserID != nil && r.UserID != *filter.UserID {
		return false
	}
	if filter.SubscriptionID != nil && r.SubscriptionID != *filter.SubscriptionID {
		return false
	}
	return true
}

func (m *MockRepository) FindReminders(ctx context.Context, filter ReminderFilter) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Reminder
	for _, r := range m.reminders {
		if m.matches(r, filter) {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *MockRepository) TryAcquireReminder(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reminders[id]
	if !ok || r.Status != ReminderStatusPending {
		return false, nil
	}
	r.Status = ReminderStatusProcessing
	return true, nil
}

func (m *MockRepository) ReleaseReminder(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.reminders[id]; ok && r.Status == ReminderStatusProcessing {
		r.Status = ReminderStatusPending
	}
	return nil
}

func (m *MockRepository) DeleteReminders(ctx context.Context, filter ReminderFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for id, r := range m.reminders {
		if m.matches(r, filter) {
			delete(m.reminders, id)
			count++
		}
	}
	return count, nil
}

func (m *MockRepository) CountPendingReminders(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, r := range m.reminders {
		if r.Status == ReminderStatusPending {
			count++
		}
	}
	return count, nil
}

func (m *MockRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reminders)
}

func (m *MockRepository) Get(id int64) *Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reminders[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// mockSub implements Subscription.
type mockSub struct {
	id          int64
	userID      int64
	name        string
	amount      string
	currency    string
	nextBilling time.Time
	active      bool
}

func (s *mockSub) GetID() int64                  { return s.id }
func (s *mockSub) GetUserID() int64              { return s.userID }
func (s *mockSub) GetName() string               { return s.name }
func (s *mockSub) GetAmount() string             { return s.amount }
func (s *mockSub) GetCurrency() string           { return s.currency }
func (s *mockSub) GetNextBillingDate() time.Time { return s.nextBilling }

// MockSubscriptionStore implements SubscriptionStore for testing.
type MockSubscriptionStore struct {
	mu   sync.Mutex
	subs map[int64]*mockSub
}

func NewMockSubscriptionStore(subs ...*mockSub) *MockSubscriptionStore {
	m := &MockSubscriptionStore{subs: make(map[int64]*mockSub)}
	for _, s := range subs {
		m.subs[s.id] = s
	}
	return m
}

func (m *MockSubscriptionStore) GetActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Subscription
	for _, s := range m.subs {
		if s.active {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MockSubscriptionStore) GetSubscriptionByID(ctx context.Context, id int64) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[id]
	if !ok || !s.active {
		return nil, nil
	}
	return s, nil
}

func (m *MockSubscriptionStore) RollForwardBilling(ctx context.Context, id int64, today time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[id]
	if !ok {
		return time.Time{}, errors.New("subscription not found")
	}
	next := s.nextBilling
	for next.Before(dateUTC(today)) {
		next = next.AddDate(0, 1, 0)
	}
	s.nextBilling = next
	return next, nil
}

// MockSettingsStore implements SettingsStore for testing.
type MockSettingsStore struct {
	settings map[int64]*UserSettings
	failFor  map[int64]bool
}

func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{
		settings: make(map[int64]*UserSettings),
		failFor:  make(map[int64]bool),
	}
}

func (m *MockSettingsStore) GetUserSettings(ctx context.Context, userID int64) (*UserSettings, error) {
	if m.failFor[userID] {
		return nil, errors.New("settings unavailable")
	}
	if s, ok := m.settings[userID]; ok {
		return s, nil
	}
	return DefaultUserSettings(userID), nil
}

type sendCall struct {
	userID int64
	subID  int64
	offset int
}

// MockNotifier implements Notifier for testing.
type MockNotifier struct {
	mu    sync.Mutex
	calls []sendCall
	// errs are consumed one per call; nil entries mean success.
	errs []error
}

func (m *MockNotifier) SendRenewalReminder(ctx context.Context, userID int64, sub Subscription, daysBefore int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, sendCall{userID: userID, subID: sub.GetID(), offset: daysBefore})
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	return nil
}

func (m *MockNotifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func TestDueOffsets(t *testing.T) {
	today := day(2026, 6, 15)

	tests := []struct {
		name    string
		billing time.Time
		offsets []int
		want    []int
	}{
		{"week before", day(2026, 6, 22), []int{7, 3, 1}, []int{7}},
		{"three days before", day(2026, 6, 18), []int{7, 3, 1}, []int{3}},
		{"day before", day(2026, 6, 16), []int{7, 3, 1}, []int{1}},
		{"renews today needs offset zero", day(2026, 6, 15), []int{7, 3, 1}, nil},
		{"offset zero fires on the day", day(2026, 6, 15), []int{0}, []int{0}},
		{"nothing due", day(2026, 6, 20), []int{7, 3, 1}, nil},
		{"past billing yields nothing", day(2026, 6, 10), []int{7, 3, 1, 0}, nil},
		{"duplicates collapse", day(2026, 6, 22), []int{7, 7, 7}, []int{7}},
		{"negatives ignored", day(2026, 6, 16), []int{-1, 1}, []int{1}},
		{"empty offsets", day(2026, 6, 22), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DueOffsets(tt.billing, today, tt.offsets)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDueOffsets_ClockAndZoneInvariance(t *testing.T) {
	billing := day(2026, 3, 8)

	// Late evening local time must not shift the day arithmetic.
	auckland := time.FixedZone("NZDT", 13*60*60)
	today := time.Date(2026, 3, 1, 23, 45, 0, 0, auckland)

	assert.Equal(t, []int{7}, DueOffsets(billing, today, []int{7, 3, 1}))

	// Same around a DST transition in a negative-offset zone.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	springForward := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)
	assert.Equal(t, []int{1}, DueOffsets(billing, springForward, []int{1}))
}

func TestGenerateDueReminders(t *testing.T) {
	today := day(2026, 6, 15)
	ctx := context.Background()

	subs := NewMockSubscriptionStore(
		&mockSub{id: 1, userID: 10, name: "Netflix", amount: "9.99", currency: "USD", nextBilling: day(2026, 6, 22), active: true},
		&mockSub{id: 2, userID: 20, name: "Spotify", amount: "4.99", currency: "USD", nextBilling: day(2026, 6, 22), active: true},
		&mockSub{id: 3, userID: 30, name: "Hulu", amount: "7.99", currency: "USD", nextBilling: day(2026, 6, 18), active: true},
		&mockSub{id: 4, userID: 40, name: "Stale", amount: "3.00", currency: "USD", nextBilling: day(2026, 6, 5), active: true},
		&mockSub{id: 5, userID: 50, name: "Inactive", amount: "1.00", currency: "USD", nextBilling: day(2026, 6, 22), active: false},
	)
	settings := NewMockSettingsStore()
	settings.settings[20] = &UserSettings{UserID: 20, RemindersEnabled: false}
	// user 30 has no row: defaults apply (7,3,1), 6/18 is 3 days out.

	repo := NewMockRepository()
	svc := NewService(repo, subs, settings, nopLogger{}, nil)

	created, err := svc.GenerateDueReminders(ctx, today)
	require.NoError(t, err)

	// Sub 1 fires offset 7, sub 3 fires offset 3. Sub 2's user disabled
	// reminders, sub 4 is past due, sub 5 is inactive.
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, repo.Count())

	// Past-due billing date was rolled forward by whole months.
	rolled, err := subs.GetSubscriptionByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, day(2026, 7, 5), rolled.GetNextBillingDate())

	// A second run on the same day creates nothing new.
	created, err = svc.GenerateDueReminders(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, repo.Count())
}

func TestGenerateDueReminders_SettingsErrorFallsBackToDefaults(t *testing.T) {
	today := day(2026, 6, 15)
	ctx := context.Background()

	subs := NewMockSubscriptionStore(
		&mockSub{id: 1, userID: 10, name: "Netflix", amount: "9.99", currency: "USD", nextBilling: day(2026, 6, 16), active: true},
	)
	settings := NewMockSettingsStore()
	settings.failFor[10] = true

	repo := NewMockRepository()
	svc := NewService(repo, subs, settings, nopLogger{}, nil)

	created, err := svc.GenerateDueReminders(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, created, "default offsets include 1 day before")
}

func TestTryAcquireReminder(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()

	r := &Reminder{
		UserID:         10,
		SubscriptionID: 1,
		OffsetDays:     7,
		DueDate:        day(2026, 6, 22),
		ScheduledAt:    time.Now(),
		Status:         ReminderStatusPending,
	}
	_, err := repo.CreateReminder(ctx, r)
	require.NoError(t, err)

	acquired, err := repo.TryAcquireReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, acquired, "first acquire should succeed")

	acquired, err = repo.TryAcquireReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, acquired, "second acquire should fail")
}

func fastSenderConfig() SenderConfig {
	return SenderConfig{
		RateLimiter: RateLimiterConfig{Rate: 10000, Burst: 10000, JitterMin: 0, JitterMax: 0},
		Retry: RetryConfig{
			MaxRetries:  2,
			RetryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		},
	}
}

func pendingReminder(t *testing.T, repo *MockRepository) *Reminder {
	t.Helper()
	r := &Reminder{
		UserID:         10,
		SubscriptionID: 1,
		OffsetDays:     3,
		DueDate:        day(2026, 6, 18),
		ScheduledAt:    time.Now().Add(-time.Minute),
		Status:         ReminderStatusPending,
	}
	_, err := repo.CreateReminder(context.Background(), r)
	require.NoError(t, err)
	return r
}

func TestSendWithRetry_Success(t *testing.T) {
	repo := NewMockRepository()
	notifier := &MockNotifier{}
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	r := pendingReminder(t, repo)
	sub := &mockSub{id: 1, userID: 10, name: "Netflix", nextBilling: day(2026, 6, 18)}

	err := sender.SendWithRetry(context.Background(), r, sub)
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.CallCount())

	stored := repo.Get(r.ID)
	require.NotNil(t, stored)
	assert.Equal(t, ReminderStatusSent, stored.Status)
	require.NotNil(t, stored.SentAt)
}

func TestSendWithRetry_TransientErrorsRetry(t *testing.T) {
	repo := NewMockRepository()
	notifier := &MockNotifier{errs: []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
		nil,
	}}
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	r := pendingReminder(t, repo)
	err := sender.SendWithRetry(context.Background(), r, &mockSub{id: 1, userID: 10})
	require.NoError(t, err)

	assert.Equal(t, 3, notifier.CallCount())
	stored := repo.Get(r.ID)
	assert.Equal(t, ReminderStatusSent, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
}

func TestSendWithRetry_PermanentErrorFailsImmediately(t *testing.T) {
	repo := NewMockRepository()
	notifier := &MockNotifier{errs: []error{
		&SendError{Code: 404, Message: "chat not found"},
	}}
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	r := pendingReminder(t, repo)
	err := sender.SendWithRetry(context.Background(), r, &mockSub{id: 1, userID: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.CallCount(), "permanent errors must not retry")
	stored := repo.Get(r.ID)
	assert.Equal(t, ReminderStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "404")
}

func TestSendWithRetry_TooManyRequestsRetries(t *testing.T) {
	repo := NewMockRepository()
	notifier := &MockNotifier{errs: []error{
		&SendError{Code: 429, Message: "slow down"},
		nil,
	}}
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	r := pendingReminder(t, repo)
	err := sender.SendWithRetry(context.Background(), r, &mockSub{id: 1, userID: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, notifier.CallCount())
	assert.Equal(t, ReminderStatusSent, repo.Get(r.ID).Status)
}

func TestSendWithRetry_ExhaustedRetriesFail(t *testing.T) {
	repo := NewMockRepository()
	notifier := &MockNotifier{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	r := pendingReminder(t, repo)
	err := sender.SendWithRetry(context.Background(), r, &mockSub{id: 1, userID: 10})
	require.NoError(t, err)

	assert.Equal(t, 3, notifier.CallCount(), "initial attempt plus two retries")
	stored := repo.Get(r.ID)
	assert.Equal(t, ReminderStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "max retries exceeded")
}

func TestScheduler_RunNow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tomorrow := dateUTC(now).AddDate(0, 0, 1)

	subs := NewMockSubscriptionStore(
		&mockSub{id: 1, userID: 10, name: "Netflix", amount: "9.99", currency: "USD", nextBilling: tomorrow, active: true},
	)
	settings := NewMockSettingsStore()
	settings.settings[10] = &UserSettings{UserID: 10, RemindersEnabled: true, Offsets: []int{1}}

	repo := NewMockRepository()
	notifier := &MockNotifier{}
	svc := NewService(repo, subs, settings, nopLogger{}, nil)
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	// Seed an old sent reminder that cleanup should remove.
	oldSentAt := now.Add(-40 * 24 * time.Hour)
	old := &Reminder{
		UserID:         10,
		SubscriptionID: 99,
		OffsetDays:     7,
		DueDate:        dateUTC(oldSentAt),
		ScheduledAt:    oldSentAt,
		SentAt:         &oldSentAt,
		Status:         ReminderStatusSent,
		UpdatedAt:      oldSentAt,
	}
	_, err := repo.CreateReminder(ctx, old)
	require.NoError(t, err)

	cfg := DefaultSchedulerConfig()
	sched, err := NewScheduler(cfg, svc, sender, nopLogger{})
	require.NoError(t, err)

	sched.RunNow(ctx)

	assert.Equal(t, 1, notifier.CallCount(), "the due reminder was dispatched")
	assert.Nil(t, repo.Get(old.ID), "old sent reminder was cleaned up")

	pending, err := repo.CountPendingReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestScheduler_DisabledUserCancelsPending(t *testing.T) {
	ctx := context.Background()

	subs := NewMockSubscriptionStore(
		&mockSub{id: 1, userID: 10, name: "Netflix", nextBilling: dateUTC(time.Now()).AddDate(0, 0, 3), active: true},
	)
	settings := NewMockSettingsStore()
	settings.settings[10] = &UserSettings{UserID: 10, RemindersEnabled: false}

	repo := NewMockRepository()
	notifier := &MockNotifier{}
	svc := NewService(repo, subs, settings, nopLogger{}, nil)
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	// A reminder created before the user switched reminders off.
	r := pendingReminder(t, repo)

	cfg := DefaultSchedulerConfig()
	cfg.CleanupEnabled = false
	sched, err := NewScheduler(cfg, svc, sender, nopLogger{})
	require.NoError(t, err)

	sched.RunNow(ctx)

	assert.Equal(t, 0, notifier.CallCount())
	assert.Equal(t, ReminderStatusCancelled, repo.Get(r.ID).Status)
}

func TestScheduler_GoneSubscriptionCancelsPending(t *testing.T) {
	ctx := context.Background()

	subs := NewMockSubscriptionStore() // no subscriptions at all
	settings := NewMockSettingsStore()
	repo := NewMockRepository()
	notifier := &MockNotifier{}
	svc := NewService(repo, subs, settings, nopLogger{}, nil)
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	r := pendingReminder(t, repo)

	cfg := DefaultSchedulerConfig()
	cfg.CleanupEnabled = false
	sched, err := NewScheduler(cfg, svc, sender, nopLogger{})
	require.NoError(t, err)

	sched.RunNow(ctx)

	assert.Equal(t, 0, notifier.CallCount())
	assert.Equal(t, ReminderStatusCancelled, repo.Get(r.ID).Status)
}

func TestScheduler_RescheduledSubscriptionCancelsStale(t *testing.T) {
	ctx := context.Background()
	nextBilling := dateUTC(time.Now()).AddDate(0, 0, 5)

	subs := NewMockSubscriptionStore(
		&mockSub{id: 1, userID: 10, name: "Netflix", nextBilling: nextBilling, active: true},
	)
	settings := NewMockSettingsStore()
	settings.settings[10] = &UserSettings{UserID: 10, RemindersEnabled: true, Offsets: []int{1}}

	repo := NewMockRepository()
	notifier := &MockNotifier{}
	svc := NewService(repo, subs, settings, nopLogger{}, nil)
	sender := NewSender(notifier, repo, fastSenderConfig(), nopLogger{}, nil)

	// Generated before the user pushed the billing date back two days.
	stale := &Reminder{
		UserID:         10,
		SubscriptionID: 1,
		OffsetDays:     3,
		DueDate:        nextBilling.AddDate(0, 0, -2),
		ScheduledAt:    time.Now().Add(-time.Minute),
		Status:         ReminderStatusPending,
	}
	_, err := repo.CreateReminder(ctx, stale)
	require.NoError(t, err)

	cfg := DefaultSchedulerConfig()
	cfg.CleanupEnabled = false
	sched, err := NewScheduler(cfg, svc, sender, nopLogger{})
	require.NoError(t, err)

	sched.RunNow(ctx)

	assert.Equal(t, 0, notifier.CallCount())
	assert.Equal(t, ReminderStatusCancelled, repo.Get(stale.ID).Status)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 100, Burst: 2, JitterMin: 0, JitterMax: 0})

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire(), "burst exhausted")

	// Wait refills at 100/s, so this returns quickly.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rl.Wait(ctx))
}

func TestRateLimiter_WaitHonorsCancellation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1, JitterMin: 0, JitterMax: 0})
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseDailyTime(t *testing.T) {
	h, m, err := ParseDailyTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseDailyTime("9am")
	assert.Error(t, err)
}

func TestSendErrorClassification(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
	}{
		{400, true},
		{403, true},
		{404, true},
		{429, false},
		{500, false},
		{503, false},
	}

	for _, tt := range tests {
		se := &SendError{Code: tt.code, Message: "x"}
		assert.Equal(t, tt.permanent, se.Permanent(), fmt.Sprintf("code %d", tt.code))

		wrapped := fmt.Errorf("channel: %w", se)
		got, ok := AsSendError(wrapped)
		require.True(t, ok)
		assert.Equal(t, tt.code, got.Code)
	}
}
