package authsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestLoginAndMFAChallenge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		switch req.Email {
		case "mfa@example.com":
			writeJSON(w, http.StatusOK, authsdk.LoginResponse{
				MFARequired: true,
				MFAToken:    "challenge",
				MFAMethods:  []string{"totp"},
			})
		case "locked@example.com":
			until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			(&authsdk.APIError{
				StatusCode:  http.StatusLocked,
				Code:        authsdk.ErrorCodeAccountLocked,
				LockedUntil: &until,
			}).WriteError(w)
		default:
			writeJSON(w, http.StatusOK, authsdk.LoginResponse{TokenResponse: tokens("a1", "r1")})
		}
	})
	mux.HandleFunc("POST /v1/auth/verify-mfa", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.VerifyMFARequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MFAToken != "challenge" {
			authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "").WriteError(w)
			return
		}
		writeJSON(w, http.StatusOK, tokens("a2", "r2"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := authsdk.NewClient(srv.URL + "/")

	session, err := client.AuthenticateWithPassword(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "a1", session.AccessToken())
	require.Equal(t, "u1", session.Profile().UserID)

	_, err = client.AuthenticateWithPassword(ctx, "mfa@example.com", "pw")
	var challenge *authsdk.MFARequiredError
	require.ErrorAs(t, err, &challenge)
	require.Equal(t, []string{"totp"}, challenge.Methods)

	session, err = client.AuthenticateWithMFA(ctx, challenge, "totp", "123456")
	require.NoError(t, err)
	require.Equal(t, "a2", session.AccessToken())

	_, err = client.Login(ctx, "locked@example.com", "pw")
	require.Equal(t, authsdk.ErrorCodeAccountLocked, authsdk.ErrorCode(err))
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusLocked, apiErr.StatusCode)
	require.NotNil(t, apiErr.LockedUntil)
}

func TestSessionRefreshesOnce(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "r-old" {
			authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked, "").WriteError(w)
			return
		}
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, tokens("a-new", "r-new"))
	})
	mux.HandleFunc("GET /v1/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a-new" {
			authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "").WriteError(w)
			return
		}
		writeJSON(w, http.StatusOK, authsdk.ValidateResponse{Valid: true, User: authsdk.Profile{UserID: "u1"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := authsdk.NewClient(srv.URL)
	session := client.NewSessionFromTokens("a-old", "r-old", 0)

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			_, err := session.Validate(context.Background())
			errs <- err
		}()
	}
	for range 8 {
		require.NoError(t, <-errs)
	}
	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, "r-new", session.RefreshToken())
}

func TestSessionChecksPermissionsLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, authsdk.ListRolesResponse{})
	}))
	t.Cleanup(srv.Close)

	client := authsdk.NewClient(srv.URL)
	session := newTestSession(t, client)

	_, err := session.ListRoles(context.Background())
	require.ErrorContains(t, err, "roles:read")
	require.Zero(t, calls.Load())

	client.CheckPermissions = false
	_, err = session.ListRoles(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestNonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := authsdk.NewClient(srv.URL).Liveness(context.Background())
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeServerError, apiErr.Code)
}

func tokens(access, refresh string) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    900,
		User:         &authsdk.Profile{UserID: "u1", Permissions: []string{"profile:read"}},
	}
}

// newTestSession logs in against a throwaway server so the session carries
// a profile with only profile:read.
func newTestSession(t *testing.T, client *authsdk.Client) *authsdk.Session {
	t.Helper()

	login := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, authsdk.LoginResponse{TokenResponse: tokens("a", "r")})
	}))
	defer login.Close()

	base := client.BaseURL
	client.BaseURL = login.URL
	defer func() { client.BaseURL = base }()

	session, err := client.AuthenticateWithPassword(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	return session
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
