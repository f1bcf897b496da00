package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/store"
)

// PasswordHasher is implemented by cryptox.Argon2Hasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
}

// Profiles builds the authorization profile carried in access tokens.
type Profiles struct {
	Store store.Store
	RBAC  *RBACResolver
}

// BuildProfile resolves role names and flattened permissions for user.
func (p *Profiles) BuildProfile(ctx context.Context, user domain.User) (domain.Profile, error) {
	roles, err := p.RBAC.RoleNames(ctx, user)
	if err != nil {
		return domain.Profile{}, err
	}
	perms, err := p.RBAC.Permissions(ctx, user)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		UserID:        user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Roles:         roles,
		Permissions:   perms,
		Status:        user.Status,
		EmailVerified: user.EmailVerified,
		MFAEnabled:    user.MFAEnabled(),
	}, nil
}

// SessionProfile reloads the user for a refresh. A temporary lock does not
// end existing sessions; every other non-active status does.
func (p *Profiles) SessionProfile(ctx context.Context, userID string) (domain.Profile, error) {
	user, err := p.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Profile{}, ErrTokenInvalid
		}
		return domain.Profile{}, err
	}
	switch user.Status {
	case domain.UserActive, domain.UserLocked:
	default:
		return domain.Profile{}, ErrAccountDisabled
	}
	return p.BuildProfile(ctx, user)
}

// canSignIn gates fresh sign-ins. Locks are handled by AccountGuard before
// this is consulted.
func canSignIn(status domain.UserStatus) bool {
	return status == domain.UserActive
}
