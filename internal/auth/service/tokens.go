package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

const revokedKeyPrefix = "revoked:"

// ProfileSource reloads a user's authorization profile during rotation. It
// fails when the user may no longer hold a session.
type ProfileSource interface {
	SessionProfile(ctx context.Context, userID string) (domain.Profile, error)
}

// RefreshIdentity is what a verified refresh token proves.
type RefreshIdentity struct {
	UserID    string
	JTI       string
	Roles     []string
	ExpiresAt time.Time
}

// TokenAuthority issues, verifies, rotates and revokes signed tokens. The
// Revoked cache is an optimization in front of the token records; the store
// stays authoritative and every miss is reconciled against it.
type TokenAuthority struct {
	Signer     *jwtx.HS256
	Store      store.Store
	Revoked    cache.Cache
	Profiles   ProfileSource
	Metrics    *metrics.Collector
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (s *TokenAuthority) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TokenAuthority) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenAuthority) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// IssuePair signs a new access and refresh token for profile. The access
// token's sid is the refresh jti, binding it to that session. Persisting
// the refresh record is left to the caller.
func (s *TokenAuthority) IssuePair(ctx context.Context, profile domain.Profile) (domain.TokenPair, error) {
	now := s.now()
	issuer := s.Signer.Issuer()
	refreshJTI := jwtx.NewJTI()
	accessJTI := jwtx.NewJTI()

	access := jwtx.AccessClaims{
		RegisteredClaims: jwtx.Registered(issuer, profile.UserID, accessJTI, now, s.accessTTL()),
		Type:             jwtx.TypeAccess,
		SessionID:        refreshJTI,
		Email:            profile.Email,
		FirstName:        profile.FirstName,
		LastName:         profile.LastName,
		Roles:            profile.Roles,
		Permissions:      profile.Permissions,
		Status:           string(profile.Status),
		EmailVerified:    profile.EmailVerified,
		MFA:              profile.MFAEnabled,
	}
	accessToken, err := s.Signer.Sign(access)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh := jwtx.RefreshClaims{
		RegisteredClaims: jwtx.Registered(issuer, profile.UserID, refreshJTI, now, s.refreshTTL()),
		Type:             jwtx.TypeRefresh,
		Roles:            profile.Roles,
	}
	refreshToken, err := s.Signer.Sign(refresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.TokenIssued(jwtx.TypeAccess)
	s.Metrics.TokenIssued(jwtx.TypeRefresh)

	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        s.accessTTL(),
		RefreshExpiresIn: s.refreshTTL(),
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		IssuedAt:         now,
	}, nil
}

// SessionRecord is the REFRESH token record persisted for pair.
func (s *TokenAuthority) SessionRecord(userID string, pair domain.TokenPair, meta domain.ClientMeta) domain.TokenRecord {
	return domain.TokenRecord{
		JTI:       pair.RefreshJTI,
		UserID:    userID,
		Kind:      domain.TokenRefresh,
		ExpiresAt: pair.RefreshExpiresAt(),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: pair.IssuedAt,
	}
}

// VerifyAccess verifies an access token and returns the profile it carries.
func (s *TokenAuthority) VerifyAccess(ctx context.Context, token string) (domain.Profile, error) {
	claims, err := s.VerifyAccessClaims(ctx, token)
	if err != nil {
		return domain.Profile{}, err
	}
	return ProfileFromClaims(claims), nil
}

// VerifyAccessClaims checks, in order: the revocation cache for the token and
// its session, the signature and expiry, the token type, and finally the
// persisted records for the token and its session.
func (s *TokenAuthority) VerifyAccessClaims(ctx context.Context, token string) (*jwtx.AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var peek jwtx.AccessClaims
	if err := s.Signer.Peek(token, &peek); err != nil {
		return nil, ErrTokenInvalid
	}
	if err := s.checkCache(ctx, peek.ID, peek.SessionID); err != nil {
		return nil, err
	}

	var claims jwtx.AccessClaims
	if err := s.Signer.Verify(token, &claims); err != nil {
		return nil, mapVerifyErr(err)
	}
	if claims.Type != jwtx.TypeAccess || claims.ID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	expiresAt := jwtx.ExpiresAt(&claims)
	if err := s.reconcile(ctx, claims.ID, expiresAt); err != nil {
		return nil, err
	}
	if claims.SessionID != "" {
		if err := s.reconcile(ctx, claims.SessionID, expiresAt); err != nil {
			return nil, err
		}
	}
	return &claims, nil
}

// VerifyRefresh verifies a refresh token in the same order as VerifyAccess.
func (s *TokenAuthority) VerifyRefresh(ctx context.Context, token string) (RefreshIdentity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return RefreshIdentity{}, ErrMissingToken
	}

	var peek jwtx.RefreshClaims
	if err := s.Signer.Peek(token, &peek); err != nil {
		return RefreshIdentity{}, ErrTokenInvalid
	}
	if err := s.checkCache(ctx, peek.ID); err != nil {
		return RefreshIdentity{}, err
	}

	var claims jwtx.RefreshClaims
	if err := s.Signer.Verify(token, &claims); err != nil {
		return RefreshIdentity{}, mapVerifyErr(err)
	}
	if claims.Type != jwtx.TypeRefresh || claims.ID == "" || claims.Subject == "" {
		return RefreshIdentity{}, ErrTokenInvalid
	}

	expiresAt := jwtx.ExpiresAt(&claims)
	if err := s.reconcile(ctx, claims.ID, expiresAt); err != nil {
		return RefreshIdentity{}, err
	}

	return RefreshIdentity{
		UserID:    claims.Subject,
		JTI:       claims.ID,
		Roles:     claims.Roles,
		ExpiresAt: expiresAt,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The old token is revoked
// in the store before anything new is issued; when two callers rotate the
// same token only the one whose revoke flips the record proceeds. A failure
// after the revoke leaves the user signed out rather than with two sessions.
func (s *TokenAuthority) Rotate(
	ctx context.Context,
	oldRefresh string,
	meta domain.ClientMeta,
) (domain.TokenPair, domain.Profile, error) {
	l := slogx.FromContext(ctx)

	// 1. Verify the presented token
	id, err := s.VerifyRefresh(ctx, oldRefresh)
	if err != nil {
		return domain.TokenPair{}, domain.Profile{}, err
	}
	l = l.With(slog.String("user_id", id.UserID))

	// 2. Revoke it; only a live record can be flipped
	if err := s.Store.Tokens().RevokeToken(ctx, id.JTI, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.remember(ctx, id.JTI, id.ExpiresAt)
			l.Warn("refresh token reuse rejected", slog.String("jti", id.JTI))
			return domain.TokenPair{}, domain.Profile{}, ErrTokenRevoked
		}
		return domain.TokenPair{}, domain.Profile{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	s.remember(ctx, id.JTI, id.ExpiresAt)
	s.Metrics.TokenRevoked(metrics.ReasonRotated, 1)

	// 3. Reload the profile so role and status changes take effect
	profile, err := s.Profiles.SessionProfile(ctx, id.UserID)
	if err != nil {
		return domain.TokenPair{}, domain.Profile{}, err
	}

	// 4. Issue and persist the replacement session
	pair, err := s.IssuePair(ctx, profile)
	if err != nil {
		return domain.TokenPair{}, domain.Profile{}, err
	}
	if err := s.Store.Tokens().CreateToken(ctx, s.SessionRecord(id.UserID, pair, meta)); err != nil {
		l.Error("failed to persist rotated session, user must sign in again", slog.Any("error", err))
		return domain.TokenPair{}, domain.Profile{}, fmt.Errorf("persist refresh token: %w", err)
	}

	l.Info("refresh token rotated", slog.String("old_jti", id.JTI), slog.String("new_jti", pair.RefreshJTI))
	return pair, profile, nil
}

// Blacklist adds token's jti to the revocation cache for its remaining
// lifetime without verifying the signature.
func (s *TokenAuthority) Blacklist(ctx context.Context, token string) error {
	var claims jwt.RegisteredClaims
	if err := s.Signer.Peek(token, &claims); err != nil || claims.ID == "" {
		return ErrTokenInvalid
	}
	return s.addRevoked(ctx, claims.ID, jwtx.ExpiresAt(&claims))
}

// IsBlacklisted reports whether jti is in the revocation cache.
func (s *TokenAuthority) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return s.Revoked.Contains(ctx, revokedKeyPrefix+jti)
}

// RevokeJTI revokes a persisted refresh record and caches the revocation.
// Revoking an already revoked or unknown record is not an error.
func (s *TokenAuthority) RevokeJTI(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	err := s.Store.Tokens().RevokeToken(ctx, jti, s.now())
	switch {
	case err == nil:
		s.Metrics.TokenRevoked(reason, 1)
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("revoke token: %w", err)
	}
	s.remember(ctx, jti, expiresAt)
	return nil
}

// RevokeRefresh ends the session a refresh token belongs to. Expired or
// already revoked tokens are accepted so logout is idempotent.
func (s *TokenAuthority) RevokeRefresh(ctx context.Context, token string, reason string) (string, error) {
	id, err := s.VerifyRefresh(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrTokenExpired):
		return "", nil
	default:
		return "", err
	}
	return id.UserID, s.RevokeJTI(ctx, id.JTI, id.ExpiresAt, reason)
}

// RevokeAccess records a revoked ACCESS entry so the token is rejected by
// every instance before it expires. Only the signature and kind are checked:
// a token whose session is already gone still gets its own record.
func (s *TokenAuthority) RevokeAccess(ctx context.Context, token string, reason string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	var claims jwtx.AccessClaims
	if err := s.Signer.Verify(token, &claims); err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return nil
		}
		return ErrTokenInvalid
	}
	if claims.Type != jwtx.TypeAccess || claims.ID == "" {
		return ErrTokenInvalid
	}

	now := s.now()
	expiresAt := jwtx.ExpiresAt(&claims)
	err := s.Store.Tokens().CreateToken(ctx, domain.TokenRecord{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		Kind:      domain.TokenAccess,
		ExpiresAt: expiresAt,
		Revoked:   true,
		RevokedAt: &now,
		CreatedAt: now,
	})
	switch {
	case err == nil:
		s.Metrics.TokenRevoked(reason, 1)
	case errors.Is(err, store.ErrAlreadyExists):
	default:
		return fmt.Errorf("record revoked access token: %w", err)
	}
	s.remember(ctx, claims.ID, expiresAt)
	return nil
}

// checkCache fails with ErrTokenRevoked when any of the ids is cached.
func (s *TokenAuthority) checkCache(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		revoked, err := s.IsBlacklisted(ctx, id)
		if err != nil {
			// The store check below still runs, so a cache outage only costs latency.
			slogx.FromContext(ctx).Warn("revocation cache lookup failed", slog.Any("error", err))
			continue
		}
		if revoked {
			return ErrTokenRevoked
		}
	}
	return nil
}

// reconcile consults the persisted record for jti. A missing record is
// fine; a revoked one is cached and rejected.
func (s *TokenAuthority) reconcile(ctx context.Context, jti string, expiresAt time.Time) error {
	rec, err := s.Store.Tokens().GetToken(ctx, jti)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load token record: %w", err)
	}
	if rec.Revoked {
		if rec.ExpiresAt.After(expiresAt) {
			expiresAt = rec.ExpiresAt
		}
		s.remember(ctx, jti, expiresAt)
		return ErrTokenRevoked
	}
	return nil
}

func (s *TokenAuthority) addRevoked(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.Revoked.Add(ctx, revokedKeyPrefix+jti, "1", ttl)
}

// remember is addRevoked for callers where the store already holds the
// revocation; a cache failure is logged and dropped.
func (s *TokenAuthority) remember(ctx context.Context, jti string, expiresAt time.Time) {
	if err := s.addRevoked(ctx, jti, expiresAt); err != nil {
		slogx.FromContext(ctx).Warn("failed to cache revoked token", slog.String("jti", jti), slog.Any("error", err))
	}
}

func mapVerifyErr(err error) error {
	if errors.Is(err, jwtx.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

// ProfileFromClaims rebuilds the profile embedded in access claims.
func ProfileFromClaims(c *jwtx.AccessClaims) domain.Profile {
	return domain.Profile{
		UserID:        c.Subject,
		Email:         c.Email,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		Roles:         c.Roles,
		Permissions:   c.Permissions,
		Status:        domain.UserStatus(c.Status),
		EmailVerified: c.EmailVerified,
		MFAEnabled:    c.MFA,
	}
}
