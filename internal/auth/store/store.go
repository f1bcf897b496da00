package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories to keep concerns tidy and testable, and so a
// transaction-scoped Store can refuse to open nested transactions.
type Store interface {
	Users() Users
	Roles() Roles
	Permissions() Permissions
	Tokens() Tokens
	MFASessions() MFASessions
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByProvider resolves an external identity.
	GetUserByProvider(ctx context.Context, provider, providerID string) (domain.User, error)

	// CreateUser inserts the user and its role assignments and direct grants.
	// Returns ErrAlreadyExists on a duplicate email or provider identity.
	CreateUser(ctx context.Context, u domain.User) error

	UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) error

	// RecordFailure increments the failed-attempt counter and, when the new
	// value reaches threshold, sets status LOCKED with locked_until=lockUntil,
	// all in one statement. It returns the updated user.
	RecordFailure(ctx context.Context, userID string, threshold int, lockUntil time.Time) (domain.User, error)

	// ClearFailures zeroes the counter, clears locked_until and moves a LOCKED
	// account back to ACTIVE. Other statuses are left untouched.
	ClearFailures(ctx context.Context, userID string) error

	// SetRoles replaces the user's role assignments.
	SetRoles(ctx context.Context, userID string, roleIDs []string) error

	// SetPermissions replaces the user's direct permission grants.
	SetPermissions(ctx context.Context, userID string, names []string) error

	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateMFASecret stores a pending TOTP secret.
	UpdateMFASecret(ctx context.Context, userID string, secret string) error

	// EnableMFA sets mfa_enabled_at to at.
	EnableMFA(ctx context.Context, userID string, at time.Time) error

	// DisableMFA clears mfa_enabled_at and mfa_secret.
	DisableMFA(ctx context.Context, userID string) error

	CountUsersWithRole(ctx context.Context, roleID string) (int, error)
}

type Roles interface {
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// GetRoleByName matches case-insensitively.
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListRoles returns every role ordered by name.
	ListRoles(ctx context.Context) ([]domain.Role, error)

	// ListChildren returns the roles whose parent is parentID.
	ListChildren(ctx context.Context, parentID string) ([]domain.Role, error)

	// CreateRole returns ErrAlreadyExists on a duplicate name.
	CreateRole(ctx context.Context, r domain.Role) error

	// UpdateRole rewrites name and description.
	UpdateRole(ctx context.Context, r domain.Role) error

	// SetParent points the role at parentID, or clears the parent when nil.
	SetParent(ctx context.Context, roleID string, parentID *string) error

	// SetRolePermissions replaces the role's permission associations.
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error

	DeleteRole(ctx context.Context, roleID string) error
}

type Permissions interface {
	GetPermissionByID(ctx context.Context, id string) (domain.Permission, error)

	// GetPermissionByPair looks up the unique (resource, action) pair.
	GetPermissionByPair(ctx context.Context, resource, action string) (domain.Permission, error)

	ListPermissions(ctx context.Context) ([]domain.Permission, error)

	// ListPermissionsByIDs ignores ids that do not exist.
	ListPermissionsByIDs(ctx context.Context, ids []string) ([]domain.Permission, error)

	// CreatePermission returns ErrAlreadyExists on a duplicate pair.
	CreatePermission(ctx context.Context, p domain.Permission) error

	// DeletePermission also removes the permission from every role.
	DeletePermission(ctx context.Context, id string) error
}

type Tokens interface {
	// CreateToken returns ErrAlreadyExists when the jti is already recorded.
	CreateToken(ctx context.Context, t domain.TokenRecord) error

	GetToken(ctx context.Context, jti string) (domain.TokenRecord, error)

	// RevokeToken flips a non-revoked record to revoked. It returns
	// ErrNotFound when no such live row exists, which makes it the single
	// winner check for concurrent rotations of the same token.
	RevokeToken(ctx context.Context, jti string, at time.Time) error

	// RevokeUserTokens revokes every non-revoked record of kind for the user
	// and returns how many rows changed.
	RevokeUserTokens(ctx context.Context, userID string, kind domain.TokenKind, at time.Time) (int, error)

	// ListActiveSessions returns non-revoked, unexpired REFRESH records for
	// the user, oldest first.
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.TokenRecord, error)

	// DeleteExpiredTokens removes records whose expiry is before now.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

type MFASessions interface {
	CreateMFASession(ctx context.Context, session domain.MFASession) error

	// GetMFASession returns the session only if it has not expired at now.
	GetMFASession(ctx context.Context, id string, now time.Time) (domain.MFASession, error)

	// IncrementMFASessionAttempts returns the session with the new count.
	IncrementMFASessionAttempts(ctx context.Context, id string) (domain.MFASession, error)

	DeleteMFASession(ctx context.Context, id string) error

	DeleteExpiredMFASessions(ctx context.Context, now time.Time) (int, error)
}

type BackupCodes interface {
	// CreateBackupCode stores the fingerprint of a backup code.
	CreateBackupCode(ctx context.Context, userID string, codeHash string) error

	// ConsumeBackupCode deletes a matching code and reports whether one existed.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash string) (bool, error)

	DeleteAllBackupCodes(ctx context.Context, userID string) error

	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}
