// Package access implements account administration: blocking, roles and
// removal of user accounts.
package access

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"subwatch/internal/models"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	BlockUser(ctx context.Context, id int64, reason string) error
	UnblockUser(ctx context.Context, id int64) error
	SetUserRole(ctx context.Context, id int64, role models.Role) error
	DeleteUser(ctx context.Context, id int64) error
}

// Service enforces the rules around account administration.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a new account administration service.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// GetUser returns a single account.
func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// BlockUser blocks an account. Admin accounts must be demoted before they
// can be blocked, and admins cannot block themselves.
func (s *Service) BlockUser(ctx context.Context, userID int64, reason string, actorID int64) error {
	if userID == actorID {
		return fmt.Errorf("cannot block own account")
	}

	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.IsAdmin() {
		return fmt.Errorf("user %d is an admin", userID)
	}

	if err := s.store.BlockUser(ctx, userID, reason); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("blocked_by", actorID).
		Str("reason", reason).
		Msg("user blocked")

	return nil
}

// UnblockUser lifts a block.
func (s *Service) UnblockUser(ctx context.Context, userID int64) error {
	if err := s.store.UnblockUser(ctx, userID); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Msg("user unblocked")

	return nil
}

// SetRole changes an account's role.
func (s *Service) SetRole(ctx context.Context, userID int64, role models.Role) error {
	if role != models.RoleMember && role != models.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}

	if err := s.store.SetUserRole(ctx, userID, role); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Str("role", string(role)).
		Msg("user role changed")

	return nil
}

// DeleteUser removes an account and everything it owns. Admins cannot
// delete themselves or other admins; demote first.
func (s *Service) DeleteUser(ctx context.Context, userID, actorID int64) error {
	if userID == actorID {
		return fmt.Errorf("cannot delete own account")
	}

	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.IsAdmin() {
		return fmt.Errorf("user %d is an admin", userID)
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("deleted_by", actorID).
		Str("email", target.Email).
		Msg("user deleted")

	return nil
}

// RequireActive rejects blocked accounts.
func (s *Service) RequireActive(user *models.User) error {
	if user.IsBlocked {
		reason := "account is blocked"
		if user.BlockedReason != "" {
			reason = fmt.Sprintf("account is blocked: %s", user.BlockedReason)
		}
		return &AccessDeniedError{Reason: reason}
	}
	return nil
}

// RequireAdmin rejects accounts without the admin role.
func (s *Service) RequireAdmin(user *models.User) error {
	if !user.IsAdmin() {
		return &AccessDeniedError{Reason: "admin access required"}
	}
	return nil
}

// AccessDeniedError is returned when an account may not perform an action.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	_, ok := err.(*AccessDeniedError)
	return ok
}
