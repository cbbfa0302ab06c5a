package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SchedulerConfig holds configuration for the reminder scheduler.
type SchedulerConfig struct {
	// Timezone for scheduling (e.g., "Europe/Moscow").
	Timezone string
	// DailyHour is the hour (0-23) when the daily run starts.
	DailyHour int
	// DailyMinute is the minute (0-59) when the daily run starts.
	DailyMinute int
	// CheckInterval is how often to check if it's time to run.
	CheckInterval time.Duration
	// CleanupEnabled enables automatic cleanup of old reminders.
	CleanupEnabled bool
	// SentRetention is how long sent reminders are kept.
	SentRetention time.Duration
	// FailedRetention is how long failed reminders are kept.
	FailedRetention time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:        "UTC",
		DailyHour:       9,
		DailyMinute:     0,
		CheckInterval:   1 * time.Minute,
		CleanupEnabled:  true,
		SentRetention:   30 * 24 * time.Hour,
		FailedRetention: 3 * 24 * time.Hour,
	}
}

// ParseDailyTime parses "HH:MM" into hour and minute.
func ParseDailyTime(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse daily time: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

// Scheduler runs reminder generation, dispatch and cleanup once a day.
type Scheduler struct {
	config      SchedulerConfig
	service     *Service
	sender      *Sender
	location    *time.Location
	logger      Logger
	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
	running     bool
	stopCh      chan struct{}
}

// NewScheduler creates a new reminder scheduler.
func NewScheduler(
	config SchedulerConfig,
	service *Service,
	sender *Sender,
	logger Logger,
) (*Scheduler, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, err
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}

	return &Scheduler{
		config:   config,
		service:  service,
		sender:   sender,
		location: loc,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("reminder scheduler started",
		"timezone", s.config.Timezone,
		"daily_time", s.formatTime())

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// checkAndRun checks if it's time to run and executes if needed.
func (s *Scheduler) checkAndRun(ctx context.Context) {
	now := time.Now().In(s.location)
	today := now.Format("2006-01-02")

	s.mu.Lock()
	alreadyRan := s.lastRunDate == today
	s.mu.Unlock()

	if alreadyRan {
		return
	}

	if now.Hour() != s.config.DailyHour || now.Minute() != s.config.DailyMinute {
		return
	}

	s.logger.Info("starting daily reminder run",
		"date", today,
		"time", now.Format("15:04:05"))

	s.mu.Lock()
	s.lastRunDate = today
	s.mu.Unlock()

	s.runDaily(ctx)
}

// runDaily generates due reminders, dispatches everything pending, and
// cleans up old rows.
func (s *Scheduler) runDaily(ctx context.Context) {
	now := time.Now().In(s.location)

	if _, err := s.service.GenerateDueReminders(ctx, now); err != nil {
		s.logger.Error("failed to generate due reminders", "error", err)
	}

	s.dispatchPending(ctx)

	if s.config.CleanupEnabled {
		s.cleanupOldReminders(ctx)
	}
}

// dispatchPending sends every pending reminder whose scheduled time has passed.
func (s *Scheduler) dispatchPending(ctx context.Context) {
	start := time.Now()
	stats := struct {
		total     int
		sent      int
		skipped   int
		cancelled int
		failed    int
	}{}

	now := time.Now()
	filter := ReminderFilter{
		ScheduledAtBefore: &now,
		Status:            []ReminderStatus{ReminderStatusPending},
	}

	pending, err := s.service.repo.FindReminders(ctx, filter)
	if err != nil {
		s.logger.Error("failed to fetch pending reminders", "error", err)
		return
	}

	stats.total = len(pending)
	if stats.total == 0 {
		return
	}
	s.logger.Info("found pending reminders", "count", stats.total)

	for i := range pending {
		done := stats.sent + stats.skipped + stats.cancelled + stats.failed
		select {
		case <-ctx.Done():
			s.logger.Info("reminder dispatch interrupted",
				"processed", done,
				"remaining", stats.total-done)
			return
		default:
		}

		r := &pending[i]
		switch outcome, err := s.processReminder(ctx, r); {
		case err != nil || outcome == ReminderStatusFailed:
			stats.failed++
		case outcome == ReminderStatusCancelled:
			stats.cancelled++
		case outcome == ReminderStatusProcessing:
			stats.skipped++
		default:
			stats.sent++
		}
	}

	s.logger.Info("pending reminders dispatched",
		"total", stats.total,
		"sent", stats.sent,
		"skipped", stats.skipped,
		"cancelled", stats.cancelled,
		"failed", stats.failed,
		"duration", time.Since(start))
}

// processReminder acquires and sends a single reminder. The returned status
// reflects what happened to the row.
func (s *Scheduler) processReminder(ctx context.Context, r *Reminder) (ReminderStatus, error) {
	acquired, err := s.service.repo.TryAcquireReminder(ctx, r.ID)
	if err != nil {
		s.logger.Error("failed to acquire reminder", "id", r.ID, "error", err)
		return r.Status, err
	}
	if !acquired {
		s.logger.Debug("reminder already being processed", "id", r.ID)
		return ReminderStatusProcessing, nil
	}
	defer s.service.repo.ReleaseReminder(ctx, r.ID)

	settings, err := s.service.settings.GetUserSettings(ctx, r.UserID)
	if err != nil {
		s.logger.Error("failed to get user settings", "user_id", r.UserID, "error", err)
		return r.Status, err
	}
	if !settings.RemindersEnabled {
		s.logger.Debug("reminders disabled for user", "user_id", r.UserID)
		return s.cancel(ctx, r)
	}

	sub, err := s.service.subs.GetSubscriptionByID(ctx, r.SubscriptionID)
	if err != nil {
		s.logger.Error("failed to get subscription",
			"subscription_id", r.SubscriptionID, "error", err)
		return r.Status, err
	}
	if sub == nil {
		s.logger.Info("subscription gone, cancelling reminder",
			"subscription_id", r.SubscriptionID, "reminder_id", r.ID)
		return s.cancel(ctx, r)
	}

	// The billing date moved after this reminder was generated. The next
	// generation pass creates fresh rows for the new date.
	if !dateUTC(sub.GetNextBillingDate()).Equal(dateUTC(r.DueDate)) {
		s.logger.Info("billing date changed, cancelling stale reminder",
			"reminder_id", r.ID,
			"due_date", r.DueDate.Format("2006-01-02"),
			"next_billing_date", sub.GetNextBillingDate().Format("2006-01-02"))
		return s.cancel(ctx, r)
	}

	if err := s.sender.SendWithRetry(ctx, r, sub); err != nil {
		return r.Status, err
	}
	return r.Status, nil
}

func (s *Scheduler) cancel(ctx context.Context, r *Reminder) (ReminderStatus, error) {
	r.Status = ReminderStatusCancelled
	r.UpdatedAt = time.Now()
	if err := s.service.repo.UpdateReminder(ctx, r); err != nil {
		return r.Status, err
	}
	return ReminderStatusCancelled, nil
}

// cleanupOldReminders removes old sent/failed reminders.
func (s *Scheduler) cleanupOldReminders(ctx context.Context) {
	sentCutoff := time.Now().Add(-s.config.SentRetention)
	sentFilter := ReminderFilter{
		Status:     []ReminderStatus{ReminderStatusSent},
		SentBefore: &sentCutoff,
	}

	deleted, err := s.service.repo.DeleteReminders(ctx, sentFilter)
	if err != nil {
		s.logger.Error("failed to cleanup sent reminders", "error", err)
	} else if deleted > 0 {
		s.service.metrics.IncCleanedUp(deleted)
		s.logger.Info("cleaned up old sent reminders", "deleted", deleted)
	}

	failedCutoff := time.Now().Add(-s.config.FailedRetention)
	failedFilter := ReminderFilter{
		Status:        []ReminderStatus{ReminderStatusFailed},
		UpdatedBefore: &failedCutoff,
	}

	deleted, err = s.service.repo.DeleteReminders(ctx, failedFilter)
	if err != nil {
		s.logger.Error("failed to cleanup failed reminders", "error", err)
	} else if deleted > 0 {
		s.service.metrics.IncCleanedUp(deleted)
		s.logger.Info("cleaned up old failed reminders", "deleted", deleted)
	}
}

// RunNow forces an immediate run of generation, dispatch and cleanup.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.logger.Info("manual reminder run triggered")
	s.runDaily(ctx)
}

// formatTime returns the scheduled time as a string.
func (s *Scheduler) formatTime() string {
	return time.Date(2000, 1, 1, s.config.DailyHour, s.config.DailyMinute, 0, 0, time.UTC).Format("15:04")
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
