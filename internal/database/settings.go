package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subwatch/internal/models"
)

// GetUserSettings returns the user's notification settings, falling back to
// defaults when the user has never saved any.
func (db *DB) GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, reminders_enabled, reminder_offsets,
		       email_enabled, whatsapp_enabled, telegram_enabled, calendar_enabled, push_enabled,
		       telegram_chat_id, whatsapp_number, timezone, created_at, updated_at
		FROM user_settings WHERE user_id = ?`, userID)

	var s models.UserSettings
	var offsets string
	err := row.Scan(&s.ID, &s.UserID, &s.RemindersEnabled, &offsets,
		&s.EmailEnabled, &s.WhatsAppEnabled, &s.TelegramEnabled, &s.CalendarEnabled, &s.PushEnabled,
		&s.TelegramChatID, &s.WhatsAppNumber, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.DefaultUserSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}

	s.ReminderOffsets = models.ParseOffsets(offsets)
	return &s, nil
}

// UpsertUserSettings saves the user's notification settings, creating the
// row on first save.
func (db *DB) UpsertUserSettings(ctx context.Context, s *models.UserSettings) error {
	now := time.Now().UTC()
	s.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, reminders_enabled, reminder_offsets,
			email_enabled, whatsapp_enabled, telegram_enabled, calendar_enabled, push_enabled,
			telegram_chat_id, whatsapp_number, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reminders_enabled = excluded.reminders_enabled,
			reminder_offsets = excluded.reminder_offsets,
			email_enabled = excluded.email_enabled,
			whatsapp_enabled = excluded.whatsapp_enabled,
			telegram_enabled = excluded.telegram_enabled,
			calendar_enabled = excluded.calendar_enabled,
			push_enabled = excluded.push_enabled,
			telegram_chat_id = excluded.telegram_chat_id,
			whatsapp_number = excluded.whatsapp_number,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		s.UserID, s.RemindersEnabled, models.FormatOffsets(s.ReminderOffsets),
		s.EmailEnabled, s.WhatsAppEnabled, s.TelegramEnabled, s.CalendarEnabled, s.PushEnabled,
		s.TelegramChatID, s.WhatsAppNumber, s.Timezone, now, now)
	if err != nil {
		return fmt.Errorf("failed to save user settings: %w", err)
	}
	return nil
}
