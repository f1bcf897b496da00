package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/warden/pkg/httpx"
	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected")

type fakeVerifier map[string]*jwtx.AccessClaims

func (f fakeVerifier) VerifyAccessClaims(_ context.Context, token string) (*jwtx.AccessClaims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errRejected
}

func writeErr(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, httpx.ErrInsufficientPermission) {
		status = http.StatusForbidden
	}
	httpx.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAuthnAndPermissions(t *testing.T) {
	verifier := fakeVerifier{
		"admin-token": {
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u-admin"},
			Permissions:      []string{"roles:read", "roles:write"},
		},
		"user-token": {
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u-user"},
			Permissions:      []string{"profile:read"},
		},
	}

	var seen string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpx.UserID(r.Context())
		require.NotEmpty(t, httpx.AccessToken(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	h := httpx.Chain(final,
		httpx.AuthnMiddleware(verifier, writeErr),
		httpx.RequirePermissions(writeErr, "roles:write"),
	)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		user   string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer admin-token") }, http.StatusNoContent, "u-admin"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer admin-token") }, http.StatusNoContent, "u-admin"},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: httpx.AccessTokenCookie, Value: "admin-token"})
		}, http.StatusNoContent, "u-admin"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"basic scheme", func(r *http.Request) { r.SetBasicAuth("a", "b") }, http.StatusUnauthorized, ""},
		{"unknown token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
		{"lacks permission", func(r *http.Request) { r.Header.Set("Authorization", "Bearer user-token") }, http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.user, seen)
			if tt.status != http.StatusNoContent {
				require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequireAnyPermission(t *testing.T) {
	verifier := fakeVerifier{"t": {
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
		Permissions:      []string{"users:read"},
	}}
	send := func(perms ...string) int {
		h := httpx.Chain(okHandler,
			httpx.AuthnMiddleware(verifier, writeErr),
			httpx.RequireAnyPermission(writeErr, perms...),
		)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer t")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("users:write", "users:read"))
	require.Equal(t, http.StatusForbidden, send("users:write"))
}

func TestCookieConfig(t *testing.T) {
	cfg := httpx.CookieConfig{Secure: true, Domain: "example.com"}

	rec := httptest.NewRecorder()
	cfg.Set(rec, httpx.RefreshTokenCookie, "abc", 15*time.Minute)
	cfg.Clear(rec, httpx.AccessTokenCookie)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	set := cookies[0]
	require.Equal(t, "abc", set.Value)
	require.Equal(t, 900, set.MaxAge)
	require.True(t, set.HttpOnly)
	require.True(t, set.Secure)
	require.Equal(t, http.SameSiteStrictMode, set.SameSite)
	require.Equal(t, "/", set.Path)

	cleared := cookies[1]
	require.Equal(t, httpx.AccessTokenCookie, cleared.Name)
	require.Equal(t, -1, cleared.MaxAge)

	t.Run("lax", func(t *testing.T) {
		rec := httptest.NewRecorder()
		cfg.SetLax(rec, httpx.OAuthStateCookie, "state", 15*time.Minute)
		cfg.ClearLax(rec, httpx.OAuthStateCookie)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 2)
		require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
		require.True(t, cookies[0].HttpOnly)
		require.True(t, cookies[0].Secure)
		require.Equal(t, http.SameSiteLaxMode, cookies[1].SameSite)
		require.Equal(t, -1, cookies[1].MaxAge)
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Email string }

	decode := func(body string, allowEmpty bool) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return httpx.DecodeJSON(httptest.NewRecorder(), req, &v, allowEmpty)
	}

	require.NoError(t, decode(`{"email":"ada@example.com"}`, false))
	require.Equal(t, "ada@example.com", v.Email)
	require.NoError(t, decode("", true))
	require.ErrorIs(t, decode("", false), httpx.ErrBadRequestBody)
	require.ErrorIs(t, decode(`{} {}`, false), httpx.ErrBadRequestBody)
	require.ErrorIs(t, decode(`{`, false), httpx.ErrBadRequestBody)
}
