package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

// UserService holds administrative operations on accounts.
type UserService struct {
	Store    store.Store
	Sessions *SessionGovernor
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	return user, mapStoreErr(err)
}

// SetStatus changes an account's lifecycle status. LOCKED is reserved for
// the failed-attempt guard. Suspending or deactivating an account ends all
// of its sessions.
func (s *UserService) SetStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	if !status.Valid() {
		return invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	if status == domain.UserLocked {
		return invalid("status", "LOCKED is set by failed sign-in attempts only")
	}

	if err := s.Store.Users().UpdateStatus(ctx, userID, status); err != nil {
		return mapStoreErr(err)
	}
	slogx.FromContext(ctx).Info("user status changed", slog.String("user_id", userID), slog.String("status", string(status)))

	switch status {
	case domain.UserActive:
		return mapStoreErr(s.Store.Users().ClearFailures(ctx, userID))
	case domain.UserSuspended, domain.UserInactive:
		if _, err := s.Sessions.RevokeAll(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
