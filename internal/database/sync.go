package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subwatch/internal/models"
)

// GetSyncState returns when the given client last synced. A client that has
// never synced gets the zero time.
func (db *DB) GetSyncState(ctx context.Context, userID int64, clientID string) (time.Time, error) {
	var last time.Time
	err := db.QueryRowContext(ctx, `
		SELECT last_synced_at FROM sync_state
		WHERE user_id = ? AND client_id = ?`, userID, clientID).Scan(&last)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get sync state: %w", err)
	}
	return last, nil
}

// SetSyncState records a completed sync for the client.
func (db *DB) SetSyncState(ctx context.Context, userID int64, clientID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, client_id, last_synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, client_id) DO UPDATE SET
			last_synced_at = excluded.last_synced_at`,
		userID, clientID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}
	return nil
}

// ListSubscriptionsChangedSince returns the user's subscriptions modified
// after the given time. Used for the pull half of a sync exchange.
func (db *DB) ListSubscriptionsChangedSince(ctx context.Context, userID int64, since time.Time) ([]models.Subscription, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ? AND updated_at > ?
		ORDER BY updated_at ASC, id ASC`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list changed subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}
