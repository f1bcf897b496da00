package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

const DefaultMaxSessions = 5

// SessionGovernor keeps each user at or below MaxSessions live refresh
// sessions by evicting the oldest one before a new session is written.
//
// Open serializes enforce-cap, issue and persist per user within this
// process. Two instances opening sessions for the same user at the same
// moment can still overshoot the cap by one until the next login.
type SessionGovernor struct {
	Store       store.Store
	Tokens      *TokenAuthority
	Metrics     *metrics.Collector
	MaxSessions int
	Now         func() time.Time

	locks userLocks
}

func (g *SessionGovernor) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *SessionGovernor) maxSessions() int {
	if g.MaxSessions > 0 {
		return g.MaxSessions
	}
	return DefaultMaxSessions
}

// EnforceCap makes room for one more session. When the user already holds
// maxSessions or more, the single oldest session is revoked. It never
// rejects and never evicts more than one session.
func (g *SessionGovernor) EnforceCap(ctx context.Context, userID string, maxSessions int) (bool, error) {
	if maxSessions <= 0 {
		return false, nil
	}

	sessions, err := g.Store.Tokens().ListActiveSessions(ctx, userID, g.now())
	if err != nil {
		return false, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) < maxSessions {
		return false, nil
	}

	oldest := sessions[0]
	if err := g.Tokens.RevokeJTI(ctx, oldest.JTI, oldest.ExpiresAt, metrics.ReasonEvicted); err != nil {
		return false, err
	}
	g.Metrics.SessionEvicted()
	slogx.FromContext(ctx).Info("session evicted",
		slog.String("user_id", userID),
		slog.String("jti", oldest.JTI),
		slog.Int("active", len(sessions)),
		slog.Int("max", maxSessions),
	)
	return true, nil
}

// Open starts a session: enforce the cap, issue a pair, persist the refresh
// record.
func (g *SessionGovernor) Open(ctx context.Context, profile domain.Profile, meta domain.ClientMeta) (domain.TokenPair, error) {
	unlock := g.locks.lock(profile.UserID)
	defer unlock()

	if _, err := g.EnforceCap(ctx, profile.UserID, g.maxSessions()); err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := g.Tokens.IssuePair(ctx, profile)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := g.Store.Tokens().CreateToken(ctx, g.Tokens.SessionRecord(profile.UserID, pair, meta)); err != nil {
		return domain.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return pair, nil
}

// ListSessions returns the user's live sessions, oldest first.
func (g *SessionGovernor) ListSessions(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	return g.Store.Tokens().ListActiveSessions(ctx, userID, g.now())
}

// RevokeSession ends one of the user's own sessions.
func (g *SessionGovernor) RevokeSession(ctx context.Context, userID, jti string) error {
	rec, err := g.Store.Tokens().GetToken(ctx, jti)
	if err != nil {
		return mapStoreErr(err)
	}
	if rec.UserID != userID || rec.Kind != domain.TokenRefresh {
		return ErrNotFound
	}
	return g.Tokens.RevokeJTI(ctx, rec.JTI, rec.ExpiresAt, metrics.ReasonRevoked)
}

// RevokeAll ends every session of the user and caches each revoked jti so
// access tokens minted from those sessions stop verifying immediately.
func (g *SessionGovernor) RevokeAll(ctx context.Context, userID string) (int, error) {
	unlock := g.locks.lock(userID)
	defer unlock()

	sessions, err := g.Store.Tokens().ListActiveSessions(ctx, userID, g.now())
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	n, err := g.Store.Tokens().RevokeUserTokens(ctx, userID, domain.TokenRefresh, g.now())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	for _, sess := range sessions {
		g.Tokens.remember(ctx, sess.JTI, sess.ExpiresAt)
	}
	g.Metrics.TokenRevoked(metrics.ReasonLogoutAll, n)

	slogx.FromContext(ctx).Info("all sessions revoked", slog.String("user_id", userID), slog.Int("count", n))
	return n, nil
}

// userLocks hands out one mutex per user id and drops it when unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	if u.locks == nil {
		u.locks = make(map[string]*userLock)
	}
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}
