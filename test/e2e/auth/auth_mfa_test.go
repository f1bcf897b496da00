package auth_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type mfaUser struct {
	Email       string
	Secret      string
	BackupCodes []string
	Session     *authsdk.Session
}

func generateTOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// createAndEnrollMFAUser registers an account and turns on TOTP for it.
func createAndEnrollMFAUser(t *testing.T, client *authsdk.Client, email string) mfaUser {
	t.Helper()
	ctx := t.Context()

	session := registerAndLogin(t, client, email)

	enroll, err := session.EnrollTOTP(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Secret)
	require.Contains(t, enroll.URL, "otpauth://totp/")

	codes, err := session.ConfirmTOTP(ctx, generateTOTP(t, enroll.Secret))
	require.NoError(t, err)
	require.Len(t, codes, 10)

	return mfaUser{Email: email, Secret: enroll.Secret, BackupCodes: codes, Session: session}
}

// challenge logs in and requires an MFA challenge.
func challenge(t *testing.T, client *authsdk.Client, email string) *authsdk.MFARequiredError {
	t.Helper()

	_, err := client.AuthenticateWithPassword(t.Context(), email, testPassword)
	var mfa *authsdk.MFARequiredError
	require.True(t, errors.As(err, &mfa), "expected MFA challenge, got %v", err)
	require.Contains(t, mfa.Methods, "totp")
	return mfa
}

// TestMFALogin covers TOTP and single-use backup codes.
func TestMFALogin(t *testing.T) {
	client := setupAuthContainer(t)
	ctx := t.Context()

	user := createAndEnrollMFAUser(t, client, "ada@example.com")

	session, err := client.AuthenticateWithMFA(ctx, challenge(t, client, user.Email), "totp", generateTOTP(t, user.Secret))
	require.NoError(t, err)
	require.True(t, session.Profile().MFAEnabled)

	_, err = client.AuthenticateWithMFA(ctx, challenge(t, client, user.Email), "backup_code", user.BackupCodes[0])
	require.NoError(t, err)

	_, err = client.AuthenticateWithMFA(ctx, challenge(t, client, user.Email), "backup_code", user.BackupCodes[0])
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidMFACode)

	remaining, err := session.RemainingBackupCodes(ctx)
	require.NoError(t, err)
	require.Equal(t, 9, remaining)
}

// TestMFARegenerateAndRemove rotates backup codes and then disables MFA.
func TestMFARegenerateAndRemove(t *testing.T) {
	client := setupAuthContainer(t)
	ctx := t.Context()

	user := createAndEnrollMFAUser(t, client, "ada@example.com")

	fresh, err := user.Session.RegenerateBackupCodes(ctx, generateTOTP(t, user.Secret))
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	_, err = client.AuthenticateWithMFA(ctx, challenge(t, client, user.Email), "backup_code", user.BackupCodes[0])
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidMFACode)

	_, err = client.AuthenticateWithMFA(ctx, challenge(t, client, user.Email), "backup_code", fresh[0])
	require.NoError(t, err)

	require.NoError(t, user.Session.RemoveMFA(ctx, generateTOTP(t, user.Secret)))

	session, err := client.AuthenticateWithPassword(ctx, user.Email, testPassword)
	require.NoError(t, err, "login should not be challenged after removal")
	require.False(t, session.Profile().MFAEnabled)
}

// TestMFAInvalidScenarios covers bad codes, bad challenges and the attempt cap.
func TestMFAInvalidScenarios(t *testing.T) {
	client := setupAuthContainer(t)
	ctx := t.Context()

	user := createAndEnrollMFAUser(t, client, "ada@example.com")

	_, err := client.VerifyMFA(ctx, "invalid-mfa-token", "totp", "000000")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	c := challenge(t, client, user.Email)
	for range 4 {
		_, err = client.VerifyMFA(ctx, c.MFAToken, "totp", "000000")
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidMFACode)
	}
	_, err = client.VerifyMFA(ctx, c.MFAToken, "totp", "000000")
	requireAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeTooManyAttempts)

	// The challenge is spent even for a correct code.
	_, err = client.VerifyMFA(ctx, c.MFAToken, "totp", generateTOTP(t, user.Secret))
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
}
