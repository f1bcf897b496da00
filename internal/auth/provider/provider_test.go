package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeIdP stands in for a provider's token and profile endpoints.
func fakeIdP(t *testing.T, profile map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("grant_type") != "authorization_code" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/v1/auth/oauth/callback/test",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/user",
		HTTPClient:   srv.Client(),
	}
}

func TestLoginURL(t *testing.T) {
	g := NewGoogle(Config{ClientID: "client-id", RedirectURL: "http://localhost/cb"})

	u, err := url.Parse(g.LoginURL("state-123", ""))
	require.NoError(t, err)

	q := u.Query()
	require.Equal(t, "accounts.google.com", u.Host)
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "state-123", q.Get("state"))
	require.Equal(t, "openid email profile", q.Get("scope"))

	u, err = url.Parse(g.LoginURL("state-123", "http://app.example.com/cb"))
	require.NoError(t, err)
	require.Equal(t, "http://app.example.com/cb", u.Query().Get("redirect_uri"))

	f := NewFacebook(Config{ClientID: "fb"})
	u, err = url.Parse(f.LoginURL("s", "http://localhost/cb"))
	require.NoError(t, err)
	require.Equal(t, "email,public_profile", u.Query().Get("scope"))
}

func TestGoogleFlow(t *testing.T) {
	srv := fakeIdP(t, map[string]any{
		"sub":         "google-sub-1",
		"email":       "ada@example.com",
		"given_name":  "Ada",
		"family_name": "Lovelace",
		"picture":     "https://example.com/ada.png",
	})
	g := NewGoogle(testConfig(srv))
	ctx := context.Background()

	token, err := g.ExchangeCode(ctx, "good-code", "")
	require.NoError(t, err)
	require.Equal(t, "provider-access-token", token)

	raw, err := g.FetchProfile(ctx, token)
	require.NoError(t, err)

	p, err := g.NormalizeProfile(raw)
	require.NoError(t, err)
	require.Equal(t, "google", p.Provider)
	require.Equal(t, "google-sub-1", p.ExternalID)
	require.Equal(t, "Ada", p.FirstName)
	require.Equal(t, "Lovelace", p.LastName)
	require.Equal(t, "https://example.com/ada.png", p.Picture)
}

func TestExchangeErrors(t *testing.T) {
	srv := fakeIdP(t, map[string]any{})
	g := NewGoogle(testConfig(srv))

	_, err := g.ExchangeCode(context.Background(), "bad-code", "")
	require.ErrorIs(t, err, ErrUpstream)

	_, err = g.FetchProfile(context.Background(), "wrong-token")
	require.ErrorIs(t, err, ErrUpstream)
}

func TestFacebookNormalize(t *testing.T) {
	f := NewFacebook(Config{})

	p, err := f.NormalizeProfile(RawProfile{
		"id":         json.Number("10203040"),
		"email":      "grace@example.com",
		"first_name": "Grace",
		"last_name":  "Hopper",
		"picture":    map[string]any{"data": map[string]any{"url": "https://example.com/g.png"}},
	})
	require.NoError(t, err)
	require.Equal(t, "10203040", p.ExternalID)
	require.Equal(t, "https://example.com/g.png", p.Picture)

	_, err = f.NormalizeProfile(RawProfile{"id": "1", "email": "x@example.com", "first_name": "X"})
	require.ErrorIs(t, err, ErrIncompleteProfile)
}

func TestGitHubFlow(t *testing.T) {
	srv := fakeIdP(t, map[string]any{
		"id":         583231,
		"login":      "octocat",
		"name":       "Mona  Lisa Octocat",
		"email":      nil,
		"avatar_url": "https://example.com/octo.png",
	})
	g := NewGitHub(testConfig(srv))
	ctx := context.Background()

	token, err := g.ExchangeCode(ctx, "good-code", "")
	require.NoError(t, err)

	raw, err := g.FetchProfile(ctx, token)
	require.NoError(t, err)

	p, err := g.NormalizeProfile(raw)
	require.NoError(t, err)
	require.Equal(t, "583231", p.ExternalID)
	require.Equal(t, "octo@example.com", p.Email)
	require.Equal(t, "Mona Lisa", p.FirstName)
	require.Equal(t, "Octocat", p.LastName)

	_, err = g.NormalizeProfile(RawProfile{"id": "1", "login": "octocat", "email": "o@example.com"})
	require.ErrorIs(t, err, ErrIncompleteProfile)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewGoogle(Config{}), NewGitHub(Config{}))

	p, err := r.Get("Google")
	require.NoError(t, err)
	require.Equal(t, "google", p.Name())

	_, err = r.Get("myspace")
	require.ErrorIs(t, err, ErrUnknownProvider)

	r.Register(NewFacebook(Config{}))
	require.Equal(t, []string{"facebook", "github", "google"}, r.Names())
}
