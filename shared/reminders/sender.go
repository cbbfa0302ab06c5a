package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

// SendError is a delivery error carrying an HTTP-like status code, so the
// sender can tell permanent rejections from transient failures.
type SendError struct {
	Code       int
	Message    string
	RetryAfter int // seconds to wait before retrying (for 429 errors)
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error %d: %s", e.Code, e.Message)
}

// Permanent reports whether retrying cannot help (4xx except 429).
func (e *SendError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != 429
}

// AsSendError checks if the error is a SendError.
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Sender delivers reminders with rate limiting and retry logic.
type Sender struct {
	notifier    Notifier
	repo        Repository
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	logger      Logger
	metrics     *Metrics
}

// SenderConfig holds configuration for the sender.
type SenderConfig struct {
	RateLimiter RateLimiterConfig
	Retry       RetryConfig
}

// DefaultSenderConfig returns the default configuration.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		RateLimiter: DefaultRateLimiterConfig(),
		Retry:       DefaultRetryConfig(),
	}
}

// NewSender creates a new reminder sender. metrics may be nil.
func NewSender(
	notifier Notifier,
	repo Repository,
	config SenderConfig,
	logger Logger,
	metrics *Metrics,
) *Sender {
	if len(config.Retry.RetryDelays) == 0 {
		config.Retry = DefaultRetryConfig()
	}
	return &Sender{
		notifier:    notifier,
		repo:        repo,
		rateLimiter: NewRateLimiter(config.RateLimiter),
		retryConfig: config.Retry,
		logger:      logger,
		metrics:     metrics,
	}
}

// SendWithRetry sends a reminder with retry logic and rate limiting.
func (s *Sender) SendWithRetry(ctx context.Context, r *Reminder, sub Subscription) error {
	if !s.rateLimiter.TryAcquire() {
		s.metrics.IncRateLimitWaits()
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	var lastErr error
	maxRetries := s.retryConfig.MaxRetries
	delays := s.retryConfig.RetryDelays

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := s.notifier.SendRenewalReminder(ctx, r.UserID, sub, r.OffsetDays)
		if err == nil {
			s.metrics.ObserveSendDuration(time.Since(start).Seconds())
			s.metrics.IncSent("sent", r.OffsetDays)
			return s.markAsSent(ctx, r)
		}

		lastErr = err

		if se, ok := AsSendError(err); ok {
			if se.Code == 429 {
				waitTime := time.Duration(se.RetryAfter) * time.Second
				if waitTime == 0 && attempt < len(delays) {
					waitTime = delays[attempt]
				}
				s.logger.Info("rate limited by channel, waiting",
					"retry_after", waitTime,
					"attempt", attempt,
					"reminder_id", r.ID)

				select {
				case <-time.After(waitTime):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			if se.Permanent() {
				s.logger.Error("channel rejected reminder",
					"code", se.Code,
					"reminder_id", r.ID,
					"error", err)
				s.metrics.IncSent("failed", r.OffsetDays)
				return s.markAsFailed(ctx, r, err.Error())
			}
		}

		// Transient error: retry with backoff.
		if attempt < maxRetries {
			delay := delays[min(attempt, len(delays)-1)]
			s.logger.Info("retrying reminder send",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay", delay,
				"error", err)

			r.RetryCount++
			s.metrics.IncRetries()

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	s.logger.Error("max retries exceeded for reminder",
		"reminder_id", r.ID,
		"user_id", r.UserID,
		"error", lastErr)

	s.metrics.IncSent("failed", r.OffsetDays)
	return s.markAsFailed(ctx, r, fmt.Sprintf("max retries exceeded: %v", lastErr))
}

// markAsSent marks a reminder as successfully sent.
func (s *Sender) markAsSent(ctx context.Context, r *Reminder) error {
	now := time.Now()
	r.Status = ReminderStatusSent
	r.SentAt = &now
	r.UpdatedAt = now

	if err := s.repo.UpdateReminder(ctx, r); err != nil {
		s.logger.Error("failed to mark reminder as sent",
			"reminder_id", r.ID,
			"error", err)
		return err
	}

	s.logger.Info("reminder sent",
		"reminder_id", r.ID,
		"user_id", r.UserID,
		"subscription_id", r.SubscriptionID,
		"offset_days", r.OffsetDays)

	return nil
}

// markAsFailed marks a reminder as failed.
func (s *Sender) markAsFailed(ctx context.Context, r *Reminder, reason string) error {
	r.Status = ReminderStatusFailed
	r.LastError = reason
	r.UpdatedAt = time.Now()

	if err := s.repo.UpdateReminder(ctx, r); err != nil {
		s.logger.Error("failed to mark reminder as failed",
			"reminder_id", r.ID,
			"error", err)
		return err
	}

	s.logger.Info("reminder marked as failed",
		"reminder_id", r.ID,
		"user_id", r.UserID,
		"reason", reason)

	return nil
}
