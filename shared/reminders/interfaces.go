package reminders

import (
	"context"
	"time"
)

// ReminderStatus defines the lifecycle state of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending    ReminderStatus = "pending"
	ReminderStatusProcessing ReminderStatus = "processing"
	ReminderStatusSent       ReminderStatus = "sent"
	ReminderStatusFailed     ReminderStatus = "failed"
	ReminderStatusCancelled  ReminderStatus = "cancelled"
)

// Reminder represents one renewal reminder for one configured day offset.
type Reminder struct {
	ID             int64
	UserID         int64
	SubscriptionID int64
	OffsetDays     int
	DueDate        time.Time // the billing date this reminder is about
	ScheduledAt    time.Time
	SentAt         *time.Time
	Status         ReminderStatus
	RetryCount     int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReminderFilter defines criteria for querying reminders.
type ReminderFilter struct {
	Status            []ReminderStatus
	ScheduledAtBefore *time.Time
	SentBefore        *time.Time
	UpdatedBefore     *time.Time
	UserID            *int64
	SubscriptionID    *int64
}

// Repository provides access to reminder storage.
type Repository interface {
	// CreateReminder inserts a reminder. Duplicates on
	// (subscription_id, offset_days, due_date) are ignored; the bool
	// reports whether a row was actually inserted.
	CreateReminder(ctx context.Context, r *Reminder) (bool, error)

	// UpdateReminder updates an existing reminder.
	UpdateReminder(ctx context.Context, r *Reminder) error

	// FindReminders returns reminders matching the filter.
	FindReminders(ctx context.Context, filter ReminderFilter) ([]Reminder, error)

	// TryAcquireReminder atomically moves a pending reminder to processing.
	// Returns false if it is no longer pending.
	TryAcquireReminder(ctx context.Context, id int64) (bool, error)

	// ReleaseReminder returns a reminder stuck in processing to pending.
	// No-op when the status has already moved on.
	ReleaseReminder(ctx context.Context, id int64) error

	// DeleteReminders deletes reminders matching the filter.
	DeleteReminders(ctx context.Context, filter ReminderFilter) (int64, error)

	// CountPendingReminders returns the count of pending reminders.
	CountPendingReminders(ctx context.Context) (int64, error)
}

// Subscription is the renewal a reminder is about.
type Subscription interface {
	GetID() int64
	GetUserID() int64
	GetName() string
	GetAmount() string
	GetCurrency() string
	GetNextBillingDate() time.Time
}

// SubscriptionStore provides access to subscriptions for the reminder engine.
type SubscriptionStore interface {
	// GetActiveSubscriptions returns active subscriptions of non-blocked users.
	GetActiveSubscriptions(ctx context.Context) ([]Subscription, error)

	// GetSubscriptionByID returns one active subscription, or nil when it is
	// missing, inactive, or its owner is blocked.
	GetSubscriptionByID(ctx context.Context, id int64) (Subscription, error)

	// RollForwardBilling advances a past-due next_billing_date by whole
	// billing cycles until it is on or after today, returning the new date.
	RollForwardBilling(ctx context.Context, id int64, today time.Time) (time.Time, error)
}

// SettingsStore provides per-user reminder preferences.
type SettingsStore interface {
	// GetUserSettings returns reminder settings for a user.
	// If no settings exist, returns defaults (enabled, offsets 7,3,1).
	GetUserSettings(ctx context.Context, userID int64) (*UserSettings, error)
}

// UserSettings holds the engine-relevant slice of a user's preferences.
type UserSettings struct {
	UserID           int64
	RemindersEnabled bool
	Offsets          []int
}

// DefaultOffsets fire a week, three days and one day before renewal.
var DefaultOffsets = []int{7, 3, 1}

// DefaultUserSettings returns default settings for a user.
func DefaultUserSettings(userID int64) *UserSettings {
	return &UserSettings{
		UserID:           userID,
		RemindersEnabled: true,
		Offsets:          append([]int(nil), DefaultOffsets...),
	}
}

// Notifier fans a renewal reminder out to the user's enabled channels.
type Notifier interface {
	SendRenewalReminder(ctx context.Context, userID int64, sub Subscription, daysBefore int) error
}

// Logger interface for logging.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}
