package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subwatch/internal/models"
)

// CreateUser inserts a new user. Email must be unique.
func (db *DB) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
		INSERT INTO users (email, name, role, created_at, updated_at)
		VALUES (?, ?, 'member', ?, ?)`,
		email, name, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      models.RoleMember,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, email, name, role, is_blocked, blocked_reason, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, email, name, role, is_blocked, blocked_reason, created_at, updated_at
		FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// ListUsers returns all users, newest first.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, email, name, role, is_blocked, blocked_reason, created_at, updated_at
		FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsBlocked,
			&u.BlockedReason, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// BlockUser marks a user as blocked. Blocked users keep their data but
// lose API access and stop receiving reminders.
func (db *DB) BlockUser(ctx context.Context, id int64, reason string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE users SET is_blocked = 1, blocked_reason = ?, updated_at = ?
		WHERE id = ?`, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return requireAffected(result, "user", id)
}

func (db *DB) UnblockUser(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `
		UPDATE users SET is_blocked = 0, blocked_reason = '', updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return requireAffected(result, "user", id)
}

func (db *DB) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	result, err := db.ExecContext(ctx, `
		UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}
	return requireAffected(result, "user", id)
}

// DeleteUser removes a user and, via cascade, their subscriptions, keys,
// settings, reminders and notifications.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, "user", id)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsBlocked,
		&u.BlockedReason, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// requireAffected turns a zero-row UPDATE or DELETE into ErrNotFound.
func requireAffected(result sql.Result, entity string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}
