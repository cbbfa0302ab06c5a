package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

// ReminderStore adapts the database to the reminder engine's storage
// interfaces (reminders.Repository, SubscriptionStore, SettingsStore).
type ReminderStore struct {
	db *DB
}

func (db *DB) ReminderStore() *ReminderStore {
	return &ReminderStore{db: db}
}

// CreateReminder inserts a reminder row. A duplicate of
// (subscription_id, offset_days, due_date) is silently skipped.
func (s *ReminderStore) CreateReminder(ctx context.Context, r *reminders.Reminder) (bool, error) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (user_id, subscription_id, offset_days, due_date,
			scheduled_at, sent_at, status, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subscription_id, offset_days, due_date) DO NOTHING`,
		r.UserID, r.SubscriptionID, r.OffsetDays, r.DueDate.UTC(),
		r.ScheduledAt.UTC(), utcPtr(r.SentAt), string(r.Status), r.RetryCount, r.LastError,
		r.CreatedAt.UTC(), r.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create reminder: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	r.ID, err = result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get reminder id: %w", err)
	}
	return true, nil
}

// UpdateReminder persists the mutable fields of a reminder.
func (s *ReminderStore) UpdateReminder(ctx context.Context, r *reminders.Reminder) error {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET status = ?, retry_count = ?, last_error = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		string(r.Status), r.RetryCount, r.LastError, utcPtr(r.SentAt), r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	return requireAffected(result, "reminder", r.ID)
}

// FindReminders returns reminders matching the filter, oldest schedule first.
func (s *ReminderStore) FindReminders(ctx context.Context, filter reminders.ReminderFilter) ([]reminders.Reminder, error) {
	where, args := buildReminderWhere(filter)
	query := `
		SELECT id, user_id, subscription_id, offset_days, due_date, scheduled_at,
		       sent_at, status, retry_count, last_error, created_at, updated_at
		FROM reminders` + where + ` ORDER BY scheduled_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find reminders: %w", err)
	}
	defer rows.Close()

	var found []reminders.Reminder
	for rows.Next() {
		var r reminders.Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.SubscriptionID, &r.OffsetDays,
			&r.DueDate, &r.ScheduledAt, &r.SentAt, &r.Status, &r.RetryCount,
			&r.LastError, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		found = append(found, r)
	}
	return found, rows.Err()
}

// TryAcquireReminder atomically moves a pending reminder to processing.
func (s *ReminderStore) TryAcquireReminder(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(reminders.ReminderStatusProcessing), time.Now().UTC(),
		id, string(reminders.ReminderStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to acquire reminder: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseReminder returns a processing reminder to pending. No-op when the
// sender already moved it to a terminal status.
func (s *ReminderStore) ReleaseReminder(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(reminders.ReminderStatusPending), time.Now().UTC(),
		id, string(reminders.ReminderStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to release reminder: %w", err)
	}
	return nil
}

// DeleteReminders removes reminders matching the filter.
func (s *ReminderStore) DeleteReminders(ctx context.Context, filter reminders.ReminderFilter) (int64, error) {
	where, args := buildReminderWhere(filter)
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reminders: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// CountPendingReminders returns the number of reminders waiting to be sent.
func (s *ReminderStore) CountPendingReminders(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE status = ?`,
		string(reminders.ReminderStatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reminders: %w", err)
	}
	return count, nil
}

// utcPtr normalizes an optional timestamp to UTC. Timestamps are stored as
// text, so mixed zones would break range comparisons.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func buildReminderWhere(filter reminders.ReminderFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ScheduledAtBefore != nil {
		conds = append(conds, "scheduled_at <= ?")
		args = append(args, filter.ScheduledAtBefore.UTC())
	}
	if filter.SentBefore != nil {
		conds = append(conds, "sent_at IS NOT NULL AND sent_at <= ?")
		args = append(args, filter.SentBefore.UTC())
	}
	if filter.UpdatedBefore != nil {
		conds = append(conds, "updated_at <= ?")
		args = append(args, filter.UpdatedBefore.UTC())
	}
	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.SubscriptionID != nil {
		conds = append(conds, "subscription_id = ?")
		args = append(args, *filter.SubscriptionID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// renewalSub exposes a subscription row to the reminder engine.
type renewalSub struct {
	sub models.Subscription
}

func (r renewalSub) GetID() int64                  { return r.sub.ID }
func (r renewalSub) GetUserID() int64              { return r.sub.UserID }
func (r renewalSub) GetName() string               { return r.sub.Name }
func (r renewalSub) GetAmount() string             { return r.sub.Amount.String() }
func (r renewalSub) GetCurrency() string           { return r.sub.Currency }
func (r renewalSub) GetNextBillingDate() time.Time { return r.sub.NextBillingDate }

// GetActiveSubscriptions returns active subscriptions of non-blocked users.
func (s *ReminderStore) GetActiveSubscriptions(ctx context.Context) ([]reminders.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.name, s.category, s.amount, s.currency, s.billing_cycle,
		       s.next_billing_date, s.website, s.notes, s.is_active, s.client_ref,
		       s.created_at, s.updated_at
		FROM subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.is_active = 1 AND u.is_blocked = 0
		ORDER BY s.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()

	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, err
	}

	out := make([]reminders.Subscription, len(subs))
	for i := range subs {
		out[i] = renewalSub{sub: subs[i]}
	}
	return out, nil
}

// GetSubscriptionByID returns one subscription for the engine, or nil when
// it is missing, inactive, or its owner is blocked.
func (s *ReminderStore) GetSubscriptionByID(ctx context.Context, id int64) (reminders.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, s.name, s.category, s.amount, s.currency, s.billing_cycle,
		       s.next_billing_date, s.website, s.notes, s.is_active, s.client_ref,
		       s.created_at, s.updated_at
		FROM subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.is_active = 1 AND u.is_blocked = 0`, id)

	sub, err := scanSubscription(row)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return renewalSub{sub: *sub}, nil
}

// RollForwardBilling advances a past-due next_billing_date by whole billing
// cycles until it lands on or after today.
func (s *ReminderStore) RollForwardBilling(ctx context.Context, id int64, today time.Time) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sub models.Subscription
	err = tx.QueryRowContext(ctx, `
		SELECT id, billing_cycle, next_billing_date FROM subscriptions WHERE id = ?`,
		id).Scan(&sub.ID, &sub.BillingCycle, &sub.NextBillingDate)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get subscription: %w", err)
	}

	next, skipped := sub.AdvancePastDue(models.DateOnly(today.UTC()))
	if skipped == 0 {
		return sub.NextBillingDate, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions SET next_billing_date = ?, updated_at = ?
		WHERE id = ?`, next.UTC(), time.Now().UTC(), id)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to roll billing date forward: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit: %w", err)
	}

	s.db.logger.Debug().
		Int64("subscription_id", id).
		Int("cycles_skipped", skipped).
		Time("next_billing_date", next).
		Msg("Rolled past-due billing date forward")
	return next, nil
}

// GetUserSettings returns the engine-relevant slice of a user's settings.
// Users without a saved row get the defaults.
func (s *ReminderStore) GetUserSettings(ctx context.Context, userID int64) (*reminders.UserSettings, error) {
	full, err := s.db.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &reminders.UserSettings{
		UserID:           full.UserID,
		RemindersEnabled: full.RemindersEnabled,
		Offsets:          full.ReminderOffsets,
	}, nil
}
