package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIssuePairRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	profile := h.profile(t, u.ID)

	pair, err := h.tokens.IssuePair(ctx, profile)
	require.NoError(t, err)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, pair.ExpiresIn)
	require.NotEqual(t, pair.AccessJTI, pair.RefreshJTI)

	claims, err := h.tokens.VerifyAccessClaims(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, pair.RefreshJTI, claims.SessionID)
	require.Equal(t, []string{"user"}, claims.Roles)
	require.Equal(t, []string{"profile:read"}, claims.Permissions)
	require.Equal(t, "ada@example.com", claims.Email)

	got, err := h.tokens.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, profile, got)

	id, err := h.tokens.VerifyRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, id.UserID)
	require.Equal(t, pair.RefreshJTI, id.JTI)
	require.Equal(t, []string{"user"}, id.Roles)
}

func TestVerifyFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	pair, err := h.tokens.IssuePair(ctx, h.profile(t, u.ID))
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := h.tokens.VerifyAccess(ctx, "  ")
		require.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := h.tokens.VerifyAccess(ctx, "not-a-jwt")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("tampered signature", func(t *testing.T) {
		tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
		_, err := h.tokens.VerifyAccess(ctx, tampered)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := h.tokens.VerifyAccess(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrTokenInvalid)

		_, err = h.tokens.VerifyRefresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := jwtx.NewHS256("another-secret-that-is-long-enough!!", "warden-test", 0)
		require.NoError(t, err)
		forged := *h.tokens
		forged.Signer = other
		p, err := forged.IssuePair(ctx, h.profile(t, u.ID))
		require.NoError(t, err)

		_, err = h.tokens.VerifyAccess(ctx, p.AccessToken)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestVerifyDistinguishesExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	pair, err := h.tokens.IssuePair(ctx, h.profile(t, u.ID))
	require.NoError(t, err)

	h.clock.Advance(jwtx.DefaultAccessTokenTTL + time.Second)

	_, err = h.tokens.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)

	// The refresh token outlives the access token.
	_, err = h.tokens.VerifyRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRotateIsSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.register(t, "ada@example.com", "correct horse battery")
	old := h.signIn(t, "ada@example.com", "correct horse battery")

	next, profile, err := h.tokens.Rotate(ctx, old.RefreshToken, domain.ClientMeta{IP: "203.0.113.7"})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", profile.Email)
	require.NotEqual(t, old.RefreshJTI, next.RefreshJTI)

	_, _, err = h.tokens.Rotate(ctx, old.RefreshToken, domain.ClientMeta{})
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = h.tokens.VerifyRefresh(ctx, old.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Access tokens of the rotated-out session die with it.
	_, err = h.tokens.VerifyAccess(ctx, old.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = h.tokens.VerifyRefresh(ctx, next.RefreshToken)
	require.NoError(t, err)
	_, err = h.tokens.VerifyAccess(ctx, next.AccessToken)
	require.NoError(t, err)

	rec, err := h.store.Tokens().GetToken(ctx, old.RefreshJTI)
	require.NoError(t, err)
	require.True(t, rec.Revoked)
}

func TestConcurrentRotateHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.register(t, "ada@example.com", "correct horse battery")
	pair := h.signIn(t, "ada@example.com", "correct horse battery")

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := h.tokens.Rotate(ctx, pair.RefreshToken, domain.ClientMeta{})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
}

func TestRevocationReconciledAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.register(t, "ada@example.com", "correct horse battery")
	pair := h.signIn(t, "ada@example.com", "correct horse battery")

	_, _, err := h.tokens.Rotate(ctx, pair.RefreshToken, domain.ClientMeta{})
	require.NoError(t, err)

	// A second instance sharing the store but with its own empty cache.
	otherCache := cache.NewMemory()
	otherCache.Now = h.clock.Now
	other := *h.tokens
	other.Revoked = otherCache

	_, err = other.VerifyRefresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	cached, err := other.IsBlacklisted(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	require.True(t, cached)
}

func TestRevocationSharedThroughRedis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := *h.tokens
	a.Revoked = cache.NewRedis(client, "warden:")
	b := *h.tokens
	b.Revoked = cache.NewRedis(client, "warden:")

	u := h.register(t, "ada@example.com", "correct horse battery")
	pair, err := a.IssuePair(ctx, h.profile(t, u.ID))
	require.NoError(t, err)

	require.NoError(t, a.Blacklist(ctx, pair.AccessToken))

	blacklisted, err := b.IsBlacklisted(ctx, pair.AccessJTI)
	require.NoError(t, err)
	require.True(t, blacklisted)

	_, err = b.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Entries live for the token's remaining lifetime.
	ttl := mr.TTL("warden:" + revokedKeyPrefix + pair.AccessJTI)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, jwtx.DefaultAccessTokenTTL)
}

func TestBlacklist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	pair, err := h.tokens.IssuePair(ctx, h.profile(t, u.ID))
	require.NoError(t, err)

	ok, err := h.tokens.IsBlacklisted(ctx, pair.AccessJTI)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, h.tokens.Blacklist(ctx, pair.AccessToken))

	ok, err = h.tokens.IsBlacklisted(ctx, pair.AccessJTI)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.tokens.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	require.ErrorIs(t, h.tokens.Blacklist(ctx, "garbage"), ErrTokenInvalid)
}

func TestRotateRejectsDisabledUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	pair := h.signIn(t, "ada@example.com", "correct horse battery")

	require.NoError(t, h.store.Users().UpdateStatus(ctx, u.ID, domain.UserInactive))

	_, _, err := h.tokens.Rotate(ctx, pair.RefreshToken, domain.ClientMeta{})
	require.ErrorIs(t, err, ErrAccountDisabled)

	// The presented token was revoked before the profile check.
	_, err = h.tokens.VerifyRefresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRotateReflectsRoleChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	pair := h.signIn(t, "ada@example.com", "correct horse battery")

	require.NoError(t, h.rbac.AssignRoles(ctx, u.ID, []string{"admin"}))

	_, profile, err := h.tokens.Rotate(ctx, pair.RefreshToken, domain.ClientMeta{})
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, profile.Roles)
	require.Contains(t, profile.Permissions, "roles:write")
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.register(t, "ada@example.com", "correct horse battery")
	pair := h.signIn(t, "ada@example.com", "correct horse battery")

	require.NoError(t, h.login.Logout(ctx, pair.RefreshToken, pair.AccessToken))

	_, err := h.tokens.VerifyRefresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, err = h.tokens.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	rec, err := h.store.Tokens().GetToken(ctx, pair.AccessJTI)
	require.NoError(t, err)
	require.Equal(t, domain.TokenAccess, rec.Kind)
	require.True(t, rec.Revoked)

	// Logging out twice is harmless.
	require.NoError(t, h.login.Logout(ctx, pair.RefreshToken, pair.AccessToken))
	require.ErrorIs(t, h.login.Logout(ctx, "", ""), ErrMissingToken)
}
