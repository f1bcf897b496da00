package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestLoginRefreshLogout walks one session through its whole lifetime.
func TestLoginRefreshLogout(t *testing.T) {
	client := setupAuthContainer(t)
	ctx := t.Context()

	session := registerAndLogin(t, client, "ada@example.com")
	profile := session.Profile()
	require.Equal(t, "ada@example.com", profile.Email)
	require.Equal(t, []string{"user"}, profile.Roles)

	_, err := session.Validate(ctx)
	require.NoError(t, err)

	firstRefresh := session.RefreshToken()
	firstAccess := session.AccessToken()
	require.NoError(t, session.Refresh(ctx))
	require.NotEqual(t, firstRefresh, session.RefreshToken())

	// Replaying a rotated token fails and does not disturb the new session.
	_, err = client.Refresh(ctx, firstRefresh)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)
	_, err = client.Validate(ctx, firstAccess)
	require.Error(t, err)

	_, err = session.Validate(ctx)
	require.NoError(t, err)

	require.NoError(t, session.Logout(ctx))
	_, err = client.Validate(ctx, session.AccessToken())
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)
	_, err = client.Refresh(ctx, session.RefreshToken())
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)
}

// TestSessionCapAndLogoutAll checks the oldest session is evicted past the cap.
func TestSessionCapAndLogoutAll(t *testing.T) {
	client := setupAuthContainer(t, map[string]string{"AUTH_MAX_SESSIONS": "2"})
	ctx := t.Context()

	first := registerAndLogin(t, client, "ada@example.com")
	second, err := client.AuthenticateWithPassword(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	third, err := client.AuthenticateWithPassword(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)

	_, err = client.Validate(ctx, first.AccessToken())
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)

	sessions, err := third.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	n, err := third.LogoutAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = client.Validate(ctx, second.AccessToken())
	require.Error(t, err)
}

// TestInvalidCredentials verifies wrong passwords and unknown accounts look alike.
func TestInvalidCredentials(t *testing.T) {
	client := setupAuthContainer(t)
	ctx := t.Context()

	registerAndLogin(t, client, "ada@example.com")

	_, err := client.Login(ctx, "ada@example.com", "wrong password")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)

	_, err = client.Login(ctx, "nobody@example.com", "wrong password")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)

	_, err = client.Validate(ctx, "invalid-token-12345")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
}

// TestAccountLockout locks after five failures and reports when it lifts.
func TestAccountLockout(t *testing.T) {
	client := setupAuthContainer(t)
	ctx := t.Context()

	registerAndLogin(t, client, "ada@example.com")

	for range 5 {
		_, err := client.Login(ctx, "ada@example.com", "wrong password")
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	}

	_, err := client.Login(ctx, "ada@example.com", testPassword)
	apiErr := requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
	require.NotNil(t, apiErr.LockedUntil)
}
