package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

// Config is the per-provider client registration. The URL fields default to
// the provider's public endpoints and exist to be overridden in tests.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

const maxResponseBytes = 1 << 20

// oauthClient carries the parts of the authorization-code flow that every
// provider shares.
type oauthClient struct {
	cfg Config
}

func newOAuthClient(cfg Config, authURL, tokenURL, userInfoURL string, scopes []string) oauthClient {
	if cfg.AuthURL == "" {
		cfg.AuthURL = authURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = tokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = userInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = scopes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return oauthClient{cfg: cfg}
}

func (c oauthClient) redirect(redirectURI string) string {
	if redirectURI != "" {
		return redirectURI
	}
	return c.cfg.RedirectURL
}

func (c oauthClient) loginURL(state, redirectURI, scopeSep string, extra url.Values) string {
	params := url.Values{
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.redirect(redirectURI)},
		"response_type": {"code"},
		"scope":         {strings.Join(c.cfg.Scopes, scopeSep)},
		"state":         {state},
	}
	for k, v := range extra {
		params[k] = v
	}
	return c.cfg.AuthURL + "?" + params.Encode()
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchange performs the authorization_code grant against the token endpoint.
func (c oauthClient) exchange(ctx context.Context, code, redirectURI string) (string, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"redirect_uri":  {c.redirect(redirectURI)},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: parse token response: %v", ErrUpstream, err)
	}
	if tok.Error != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrUpstream, tok.Error, tok.ErrorDescription)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token in response", ErrUpstream)
	}
	return tok.AccessToken, nil
}

// fetchJSON GETs endpoint with a bearer token and decodes a JSON document.
func (c oauthClient) fetchJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: parse profile response: %v", ErrUpstream, err)
	}
	return nil
}

func (c oauthClient) fetchProfile(ctx context.Context, endpoint, accessToken string) (RawProfile, error) {
	raw := RawProfile{}
	if err := c.fetchJSON(ctx, endpoint, accessToken, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// do sends one request; the engine makes a single attempt and leaves retries
// to the caller.
func (c oauthClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUpstream, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

// str reads a string or numeric field from a profile document.
func str(raw RawProfile, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

// complete checks the fields every provider must resolve.
func complete(p domain.ExternalProfile) error {
	var missing []string
	if p.ExternalID == "" {
		missing = append(missing, "id")
	}
	if p.Email == "" {
		missing = append(missing, "email")
	}
	if p.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if p.LastName == "" {
		missing = append(missing, "last_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing %s", ErrIncompleteProfile, p.Provider, strings.Join(missing, ", "))
	}
	return nil
}
