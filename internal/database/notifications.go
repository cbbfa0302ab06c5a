package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"subwatch/internal/models"
)

const notificationColumns = `id, user_id, subscription_id, channel, kind, title,
	message, status, error, created_at, sent_at`

// CreateNotification records an outgoing notification. Push notifications
// start out pending and are delivered when the extension polls; other
// channels log their final status.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, subscription_id, channel, kind, title,
			message, status, error, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, n.SubscriptionID, string(n.Channel), string(n.Kind), n.Title,
		n.Message, string(n.Status), n.Error, n.CreatedAt.UTC(), utcPtr(n.SentAt))
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	n.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification id: %w", err)
	}
	return nil
}

// ListNotifications returns the user's most recent notifications.
func (db *DB) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

// PendingPushNotifications returns undelivered push notifications for the
// extension poll, oldest first.
func (db *DB) PendingPushNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = ? AND channel = ? AND status = ?
		ORDER BY created_at ASC, id ASC`,
		userID, string(models.ChannelPush), string(models.NotificationPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending push notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

// AckNotifications marks the given push notifications as delivered. IDs not
// owned by the user are ignored. Returns how many rows changed.
func (db *DB) AckNotifications(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+4)
	args = append(args, string(models.NotificationSent), time.Now().UTC(), userID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, string(models.NotificationPending))

	result, err := db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, sent_at = ?
		WHERE user_id = ? AND id IN (`+strings.Join(placeholders, ", ")+`)
		AND status = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to ack notifications: %w", err)
	}

	acked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return acked, nil
}

// MarkNotificationSent stamps a notification as delivered.
func (db *DB) MarkNotificationSent(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, sent_at = ?, error = '' WHERE id = ?`,
		string(models.NotificationSent), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return requireAffected(result, "notification", id)
}

// MarkNotificationFailed stamps a notification as failed with the error text.
func (db *DB) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, error = ? WHERE id = ?`,
		string(models.NotificationFailed), reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return requireAffected(result, "notification", id)
}

// CountNotificationsByChannel aggregates sent notifications per channel
// since the given time. Used by the admin stats endpoint.
func (db *DB) CountNotificationsByChannel(ctx context.Context, since time.Time) (map[models.Channel]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT channel, COUNT(*) FROM notifications
		WHERE status = ? AND created_at >= ?
		GROUP BY channel`,
		string(models.NotificationSent), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Channel]int)
	for rows.Next() {
		var channel string
		var count int
		if err := rows.Scan(&channel, &count); err != nil {
			return nil, fmt.Errorf("failed to scan notification count: %w", err)
		}
		counts[models.Channel(channel)] = count
	}
	return counts, rows.Err()
}

// PurgeOldNotifications deletes notification log rows older than the cutoff.
func (db *DB) PurgeOldNotifications(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func collectNotifications(rows *sql.Rows) ([]models.Notification, error) {
	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.SubscriptionID, &n.Channel, &n.Kind,
			&n.Title, &n.Message, &n.Status, &n.Error, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
