package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subwatch/internal/models"
)

// SaveChannelCredential stores an encrypted per-channel credential blob,
// replacing any previous one for the same channel. The payload is sealed
// by the caller; this layer never sees plaintext.
func (db *DB) SaveChannelCredential(ctx context.Context, userID int64, channel models.Channel, sealed string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO channel_credentials (user_id, channel, credential, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, channel) DO UPDATE SET
			credential = excluded.credential,
			updated_at = excluded.updated_at`,
		userID, string(channel), sealed, now, now)
	if err != nil {
		return fmt.Errorf("failed to save channel credential: %w", err)
	}
	return nil
}

// GetChannelCredential returns the sealed credential for a channel.
func (db *DB) GetChannelCredential(ctx context.Context, userID int64, channel models.Channel) (string, error) {
	var sealed string
	err := db.QueryRowContext(ctx, `
		SELECT credential FROM channel_credentials
		WHERE user_id = ? AND channel = ?`, userID, string(channel)).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("credential for channel %s: %w", channel, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get channel credential: %w", err)
	}
	return sealed, nil
}

// DeleteChannelCredential removes a stored credential, disconnecting the
// channel. Deleting a missing credential is a no-op.
func (db *DB) DeleteChannelCredential(ctx context.Context, userID int64, channel models.Channel) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM channel_credentials WHERE user_id = ? AND channel = ?`,
		userID, string(channel))
	if err != nil {
		return fmt.Errorf("failed to delete channel credential: %w", err)
	}
	return nil
}
