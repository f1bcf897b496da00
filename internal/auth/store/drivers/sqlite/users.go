package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, first_name, last_name, picture, password_hash, status,
	failed_attempts, locked_until, email_verified, mfa_enabled_at, mfa_secret,
	provider, provider_id, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var (
		u            domain.User
		status       string
		passwordHash sql.NullString
		lockedUntil  sql.NullTime
		mfaEnabledAt sql.NullTime
		mfaSecret    sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Picture, &passwordHash, &status,
		&u.FailedAttempts, &lockedUntil, &u.EmailVerified, &mfaEnabledAt, &mfaSecret,
		&u.Provider, &u.ProviderID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Status = domain.UserStatus(status)
	u.PasswordHash = mapNullStringPtr(passwordHash)
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.MFAEnabledAt = mapNullTimePtr(mfaEnabledAt)
	u.MFASecret = mapNullStringPtr(mfaSecret)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// getUser loads one user row then its role assignments and direct grants.
func (r *usersRepo) getUser(ctx context.Context, where string, args ...any) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, args...))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	if err := r.loadGrants(ctx, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *usersRepo) loadGrants(ctx context.Context, u *domain.User) error {
	roleIDs, err := queryStrings(ctx, r.db,
		`SELECT role_id FROM user_roles WHERE user_id = ? ORDER BY role_id`, u.ID)
	if err != nil {
		return err
	}
	perms, err := queryStrings(ctx, r.db,
		`SELECT name FROM user_permissions WHERE user_id = ? ORDER BY name`, u.ID)
	if err != nil {
		return err
	}
	u.RoleIDs = roleIDs
	u.Permissions = perms
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getUser(ctx, `email = ? COLLATE NOCASE`, strings.TrimSpace(email))
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider, providerID string) (domain.User, error) {
	return r.getUser(ctx, `provider = ? AND provider_id = ? AND provider <> ''`, provider, providerID)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	return atomically(ctx, r.db, func(q dbtx) error {
		_, err := q.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Email, u.FirstName, u.LastName, u.Picture, mapOptionalString(u.PasswordHash), string(u.Status),
			u.FailedAttempts, mapOptionalTime(u.LockedUntil), u.EmailVerified, mapOptionalTime(u.MFAEnabledAt),
			mapOptionalString(u.MFASecret), u.Provider, u.ProviderID, utc(u.CreatedAt), utc(u.UpdatedAt),
		)
		if err != nil {
			return mapConstraint(err)
		}
		if err := replaceUserRoles(ctx, q, u.ID, u.RoleIDs); err != nil {
			return err
		}
		return replaceUserPermissions(ctx, q, u.ID, u.Permissions)
	})
}

func (r *usersRepo) UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), userID))
}

func (r *usersRepo) RecordFailure(
	ctx context.Context,
	userID string,
	threshold int,
	lockUntil time.Time,
) (domain.User, error) {
	// The counter and the lock transition are decided by the same statement so
	// concurrent failures cannot both observe threshold-1. Every status gets
	// locked_until; only ACTIVE flips to LOCKED, so an administrator's status
	// survives the lock and its release.
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			failed_attempts = failed_attempts + 1,
			status = CASE WHEN failed_attempts + 1 >= ? AND status = 'ACTIVE' THEN 'LOCKED' ELSE status END,
			locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END,
			updated_at = ?
		WHERE id = ?`,
		threshold, threshold, utc(lockUntil), time.Now().UTC(), userID)
	if err := requireAffected(res, err); err != nil {
		return domain.User{}, err
	}
	return r.GetUserByID(ctx, userID)
}

func (r *usersRepo) ClearFailures(ctx context.Context, userID string) error {
	return requireAffected(r.db.ExecContext(ctx, `
		UPDATE users SET
			failed_attempts = 0,
			locked_until = NULL,
			status = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status END,
			updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID))
}

func (r *usersRepo) SetRoles(ctx context.Context, userID string, roleIDs []string) error {
	return atomically(ctx, r.db, func(q dbtx) error {
		if err := touchUser(ctx, q, userID); err != nil {
			return err
		}
		return replaceUserRoles(ctx, q, userID, roleIDs)
	})
}

func (r *usersRepo) SetPermissions(ctx context.Context, userID string, names []string) error {
	return atomically(ctx, r.db, func(q dbtx) error {
		if err := touchUser(ctx, q, userID); err != nil {
			return err
		}
		return replaceUserPermissions(ctx, q, userID, names)
	})
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID))
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID string, secret string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), userID))
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, at time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled_at = ?, updated_at = ? WHERE id = ? AND mfa_secret IS NOT NULL`,
		utc(at), time.Now().UTC(), userID))
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled_at = NULL, mfa_secret = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID))
}

func (r *usersRepo) CountUsersWithRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = ?`, roleID).Scan(&n)
	return n, err
}

func touchUser(ctx context.Context, q dbtx, userID string) error {
	return requireAffected(q.ExecContext(ctx,
		`UPDATE users SET updated_at = ? WHERE id = ?`, time.Now().UTC(), userID))
}

func replaceUserRoles(ctx context.Context, q dbtx, userID string, roleIDs []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, roleID); err != nil {
			return err
		}
	}
	return nil
}

func replaceUserPermissions(ctx context.Context, q dbtx, userID string, names []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM user_permissions WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_permissions (user_id, name) VALUES (?, ?)`, userID, name); err != nil {
			return err
		}
	}
	return nil
}

// queryStrings collects a single text column. Rows are closed before
// returning so the next query can reuse the connection.
func queryStrings(ctx context.Context, q dbtx, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
