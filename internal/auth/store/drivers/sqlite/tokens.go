package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

type tokensRepo struct {
	db dbtx
}

const tokenColumns = `jti, user_id, kind, expires_at, revoked, revoked_at, ip, user_agent, created_at`

func scanToken(row interface{ Scan(dest ...any) error }) (domain.TokenRecord, error) {
	var (
		t         domain.TokenRecord
		kind      string
		revokedAt sql.NullTime
	)
	if err := row.Scan(&t.JTI, &t.UserID, &kind, &t.ExpiresAt, &t.Revoked, &revokedAt,
		&t.IP, &t.UserAgent, &t.CreatedAt); err != nil {
		return domain.TokenRecord{}, err
	}
	t.Kind = domain.TokenKind(kind)
	t.RevokedAt = mapNullTimePtr(revokedAt)
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.TokenRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.JTI, t.UserID, string(t.Kind), utc(t.ExpiresAt), t.Revoked, mapOptionalTime(t.RevokedAt),
		t.IP, t.UserAgent, utc(t.CreatedAt))
	return mapConstraint(err)
}

func (r *tokensRepo) GetToken(ctx context.Context, jti string) (domain.TokenRecord, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE jti = ?`, jti))
	if err != nil {
		return domain.TokenRecord{}, mapNotFound(err)
	}
	return t, nil
}

func (r *tokensRepo) RevokeToken(ctx context.Context, jti string, at time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE tokens SET revoked = 1, revoked_at = ? WHERE jti = ? AND revoked = 0`,
		utc(at), jti))
}

func (r *tokensRepo) RevokeUserTokens(
	ctx context.Context,
	userID string,
	kind domain.TokenKind,
	at time.Time,
) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET revoked = 1, revoked_at = ? WHERE user_id = ? AND kind = ? AND revoked = 0`,
		utc(at), userID, string(kind))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *tokensRepo) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.TokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tokenColumns+` FROM tokens
		WHERE user_id = ? AND kind = 'REFRESH' AND revoked = 0 AND expires_at > ?
		ORDER BY created_at ASC, rowid ASC`,
		userID, utc(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TokenRecord
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
