package database

import (
	"context"
	"fmt"
	"time"

	"subwatch/internal/models"
)

// AdminStats is the aggregate snapshot served by the admin panel.
type AdminStats struct {
	TotalUsers             int                    `json:"total_users"`
	BlockedUsers           int                    `json:"blocked_users"`
	TotalSubscriptions     int                    `json:"total_subscriptions"`
	ActiveSubscriptions    int                    `json:"active_subscriptions"`
	PendingReminders       int                    `json:"pending_reminders"`
	RemindersSent          int                    `json:"reminders_sent"`
	NotificationsByChannel map[models.Channel]int `json:"notifications_by_channel"`
	Since                  time.Time              `json:"since"`
}

// GetAdminStats collects counters across all users. Reminder and
// notification counts are limited to the window starting at since.
func (db *DB) GetAdminStats(ctx context.Context, since time.Time) (*AdminStats, error) {
	stats := &AdminStats{Since: since.UTC()}

	counts := []struct {
		query string
		args  []interface{}
		dest  *int
	}{
		{`SELECT COUNT(*) FROM users`, nil, &stats.TotalUsers},
		{`SELECT COUNT(*) FROM users WHERE is_blocked = 1`, nil, &stats.BlockedUsers},
		{`SELECT COUNT(*) FROM subscriptions`, nil, &stats.TotalSubscriptions},
		{`SELECT COUNT(*) FROM subscriptions WHERE is_active = 1`, nil, &stats.ActiveSubscriptions},
		{`SELECT COUNT(*) FROM reminders WHERE status = 'pending'`, nil, &stats.PendingReminders},
		{`SELECT COUNT(*) FROM reminders WHERE status = 'sent' AND sent_at >= ?`,
			[]interface{}{since.UTC()}, &stats.RemindersSent},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to collect admin stats: %w", err)
		}
	}

	byChannel, err := db.CountNotificationsByChannel(ctx, since)
	if err != nil {
		return nil, err
	}
	stats.NotificationsByChannel = byChannel
	return stats, nil
}
