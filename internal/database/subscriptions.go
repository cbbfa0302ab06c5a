package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subwatch/internal/models"
)

const subscriptionColumns = `id, user_id, name, category, amount, currency, billing_cycle,
	next_billing_date, website, notes, is_active, client_ref, created_at, updated_at`

// SubscriptionFilter narrows ListSubscriptions results.
type SubscriptionFilter struct {
	Category string
	Active   *bool
}

// CreateSubscription inserts a subscription and fills in ID and timestamps.
func (db *DB) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.NextBillingDate = models.DateOnly(sub.NextBillingDate)

	result, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, name, category, amount, currency, billing_cycle,
			next_billing_date, website, notes, is_active, client_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, sub.Name, sub.Category, sub.Amount, sub.Currency, string(sub.BillingCycle),
		sub.NextBillingDate, sub.Website, sub.Notes, sub.IsActive, sub.ClientRef,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("subscription with client_ref %q: %w", sub.ClientRef, ErrDuplicate)
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	sub.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get subscription id: %w", err)
	}
	return nil
}

// GetSubscription returns one subscription scoped to its owner.
func (db *DB) GetSubscription(ctx context.Context, userID, id int64) (*models.Subscription, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	return scanSubscription(row)
}

// ListSubscriptions returns the user's subscriptions, soonest renewal first.
func (db *DB) ListSubscriptions(ctx context.Context, userID int64, filter SubscriptionFilter) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Active != nil {
		query += ` AND is_active = ?`
		args = append(args, *filter.Active)
	}
	query += ` ORDER BY next_billing_date ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListUpcomingRenewals returns active subscriptions renewing within the
// window [today, today+days], soonest first.
func (db *DB) ListUpcomingRenewals(ctx context.Context, userID int64, today time.Time, days int) ([]models.Subscription, error) {
	from := models.DateOnly(today)
	until := from.AddDate(0, 0, days)

	rows, err := db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ? AND is_active = 1 AND next_billing_date >= ? AND next_billing_date <= ?
		ORDER BY next_billing_date ASC, id ASC`, userID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming renewals: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// UpdateSubscription overwrites all mutable fields of a subscription owned
// by sub.UserID.
func (db *DB) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	sub.NextBillingDate = models.DateOnly(sub.NextBillingDate)

	result, err := db.ExecContext(ctx, `
		UPDATE subscriptions
		SET name = ?, category = ?, amount = ?, currency = ?, billing_cycle = ?,
			next_billing_date = ?, website = ?, notes = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		sub.Name, sub.Category, sub.Amount, sub.Currency, string(sub.BillingCycle),
		sub.NextBillingDate, sub.Website, sub.Notes, sub.IsActive, sub.UpdatedAt,
		sub.ID, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return requireAffected(result, "subscription", sub.ID)
}

// DeleteSubscription removes a subscription and, via cascade, its reminders.
func (db *DB) DeleteSubscription(ctx context.Context, userID, id int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return requireAffected(result, "subscription", id)
}

// SetSubscriptionActive archives or restores a subscription without
// touching any other field.
func (db *DB) SetSubscriptionActive(ctx context.Context, userID, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `
		UPDATE subscriptions SET is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		active, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set subscription active: %w", err)
	}
	return requireAffected(result, "subscription", id)
}

// UpsertSubscriptionByClientRef creates or updates the subscription
// identified by (user_id, client_ref). Last write wins: an incoming copy
// older than the stored row is discarded. On return sub holds the stored
// row, whichever side won.
func (db *DB) UpsertSubscriptionByClientRef(ctx context.Context, sub *models.Subscription) error {
	if sub.ClientRef == "" {
		return fmt.Errorf("client_ref is required for upsert")
	}
	now := time.Now().UTC()
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}
	sub.NextBillingDate = models.DateOnly(sub.NextBillingDate)

	_, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, name, category, amount, currency, billing_cycle,
			next_billing_date, website, notes, is_active, client_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, client_ref) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			amount = excluded.amount,
			currency = excluded.currency,
			billing_cycle = excluded.billing_cycle,
			next_billing_date = excluded.next_billing_date,
			website = excluded.website,
			notes = excluded.notes,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= subscriptions.updated_at`,
		sub.UserID, sub.Name, sub.Category, sub.Amount, sub.Currency, string(sub.BillingCycle),
		sub.NextBillingDate, sub.Website, sub.Notes, sub.IsActive, sub.ClientRef,
		now, sub.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	// LastInsertId is unreliable on upsert, read the row back.
	row := db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE user_id = ? AND client_ref = ?`,
		sub.UserID, sub.ClientRef)
	stored, err := scanSubscription(row)
	if err != nil {
		return fmt.Errorf("failed to read back upserted subscription: %w", err)
	}
	*sub = *stored
	return nil
}

// CountActiveSubscriptions counts active subscriptions across all users.
func (db *DB) CountActiveSubscriptions(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Category, &s.Amount, &s.Currency,
		&s.BillingCycle, &s.NextBillingDate, &s.Website, &s.Notes, &s.IsActive,
		&s.ClientRef, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

func collectSubscriptions(rows *sql.Rows) ([]models.Subscription, error) {
	var subs []models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Category, &s.Amount, &s.Currency,
			&s.BillingCycle, &s.NextBillingDate, &s.Website, &s.Notes, &s.IsActive,
			&s.ClientRef, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
