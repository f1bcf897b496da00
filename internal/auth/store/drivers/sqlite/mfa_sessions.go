package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

type mfaSessionsRepo struct {
	db dbtx
}

const mfaSessionColumns = `id, user_id, attempts, ip, user_agent, expires_at, created_at`

func scanMFASession(row interface{ Scan(dest ...any) error }) (domain.MFASession, error) {
	var s domain.MFASession
	if err := row.Scan(&s.ID, &s.UserID, &s.Attempts, &s.IP, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return domain.MFASession{}, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (r *mfaSessionsRepo) CreateMFASession(ctx context.Context, session domain.MFASession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO mfa_sessions (`+mfaSessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Attempts, session.IP, session.UserAgent,
		utc(session.ExpiresAt), utc(session.CreatedAt))
	return mapConstraint(err)
}

func (r *mfaSessionsRepo) GetMFASession(ctx context.Context, id string, now time.Time) (domain.MFASession, error) {
	s, err := scanMFASession(r.db.QueryRowContext(ctx,
		`SELECT `+mfaSessionColumns+` FROM mfa_sessions WHERE id = ? AND expires_at > ?`, id, utc(now)))
	if err != nil {
		return domain.MFASession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *mfaSessionsRepo) IncrementMFASessionAttempts(ctx context.Context, id string) (domain.MFASession, error) {
	if err := requireAffected(r.db.ExecContext(ctx,
		`UPDATE mfa_sessions SET attempts = attempts + 1 WHERE id = ?`, id)); err != nil {
		return domain.MFASession{}, err
	}
	s, err := scanMFASession(r.db.QueryRowContext(ctx,
		`SELECT `+mfaSessionColumns+` FROM mfa_sessions WHERE id = ?`, id))
	if err != nil {
		return domain.MFASession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *mfaSessionsRepo) DeleteMFASession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_sessions WHERE id = ?`, id)
	return err
}

func (r *mfaSessionsRepo) DeleteExpiredMFASessions(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_sessions WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
