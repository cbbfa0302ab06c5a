package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subwatch/internal/models"
)

// CreateAPIKey issues a new key for the user and returns the record together
// with the plaintext secret. The secret is not recoverable afterwards.
func (db *DB) CreateAPIKey(ctx context.Context, userID int64, label string) (*models.APIKey, string, error) {
	secret := models.NewKeySecret()
	now := time.Now().UTC()

	key := &models.APIKey{
		UserID:    userID,
		Prefix:    models.KeyPrefix(secret),
		KeyHash:   models.HashKey(secret),
		Label:     label,
		CreatedAt: now,
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO api_keys (user_id, prefix, key_hash, label, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key.UserID, key.Prefix, key.KeyHash, key.Label, key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}

	key.ID, err = result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get api key id: %w", err)
	}
	return key, secret, nil
}

// ListAPIKeys returns all keys for a user, including revoked ones.
func (db *DB) ListAPIKeys(ctx context.Context, userID int64) ([]models.APIKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, prefix, key_hash, label, last_used_at, revoked_at, created_at
		FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Prefix, &k.KeyHash, &k.Label,
			&k.LastUsedAt, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes a key belonging to the given user. Revoking an
// already revoked key is a no-op.
func (db *DB) RevokeAPIKey(ctx context.Context, userID, keyID int64) error {
	result, err := db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = ?
		WHERE id = ? AND user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), keyID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish "no such key" from "already revoked".
		var revoked sql.NullTime
		err := db.QueryRowContext(ctx,
			`SELECT revoked_at FROM api_keys WHERE id = ? AND user_id = ?`,
			keyID, userID).Scan(&revoked)
		if err == sql.ErrNoRows {
			return fmt.Errorf("api key %d: %w", keyID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check api key: %w", err)
		}
	}
	return nil
}

// GetUserByKeyHash resolves an API key hash to its owner. Revoked keys do
// not resolve. Blocked users still resolve so the caller can report 403
// instead of 401.
func (db *DB) GetUserByKeyHash(ctx context.Context, keyHash string) (*models.User, *models.APIKey, error) {
	row := db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.is_blocked, u.blocked_reason, u.created_at, u.updated_at,
		       k.id, k.user_id, k.prefix, k.key_hash, k.label, k.last_used_at, k.revoked_at, k.created_at
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = ? AND k.revoked_at IS NULL`, keyHash)

	var u models.User
	var k models.APIKey
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsBlocked, &u.BlockedReason,
		&u.CreatedAt, &u.UpdatedAt,
		&k.ID, &k.UserID, &k.Prefix, &k.KeyHash, &k.Label, &k.LastUsedAt,
		&k.RevokedAt, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return &u, &k, nil
}

// TouchAPIKey records when a key was last used.
func (db *DB) TouchAPIKey(ctx context.Context, keyID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
