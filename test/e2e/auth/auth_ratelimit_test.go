package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitLogin verifies the strict limit (5 req/min) on login, keyed by
// client address and email.
func TestRateLimitLogin(t *testing.T) {
	client := authsdk.NewClient(startContainer(t))
	ctx := t.Context()

	for i := range 5 {
		_, err := client.Login(ctx, "mallory@example.com", "guess")
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
		t.Logf("attempt %d rejected as invalid credentials", i+1)
	}

	_, err := client.Login(ctx, "mallory@example.com", "guess")
	requireAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimitExceeded)

	// A different email has its own bucket.
	_, err = client.Login(ctx, "trent@example.com", "guess")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
}

// TestRateLimitHealthIsLenient verifies probes are not throttled at the strict rate.
func TestRateLimitHealthIsLenient(t *testing.T) {
	client := authsdk.NewClient(startContainer(t))

	for range 20 {
		_, err := client.Liveness(t.Context())
		require.NoError(t, err)
	}
}
