package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the warden service. Methods that take a token are
// stateless; use a Session for automatic refresh.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckPermissions makes Session methods fail locally when the access
	// token lacks the permission an endpoint requires. Disable it in tests
	// that exercise server-side authorization.
	CheckPermissions bool
}

// NewClient creates a client with local permission checks enabled.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:          strings.TrimSuffix(baseURL, "/"),
		HTTPClient:       &http.Client{Timeout: 10 * time.Second},
		CheckPermissions: true,
	}
}

// Register creates a local account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserInfo, error) {
	return call[UserInfo](ctx, c, http.MethodPost, "/v1/auth/register", "", req, http.StatusCreated)
}

// Login exchanges credentials for tokens or an MFA challenge.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	return call[LoginResponse](ctx, c, http.MethodPost, "/v1/auth/login", "",
		LoginRequest{Email: email, Password: password}, http.StatusOK)
}

// VerifyMFA completes a challenged login.
func (c *Client) VerifyMFA(ctx context.Context, mfaToken, method, code string) (*TokenResponse, error) {
	return call[TokenResponse](ctx, c, http.MethodPost, "/v1/auth/verify-mfa", "",
		VerifyMFARequest{MFAToken: mfaToken, Method: method, Code: code}, http.StatusOK)
}

// Refresh rotates a refresh token. The old token is unusable afterwards.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return call[TokenResponse](ctx, c, http.MethodPost, "/v1/auth/refresh", "",
		RefreshRequest{RefreshToken: refreshToken}, http.StatusOK)
}

// Logout ends the session of refreshToken and revokes accessToken. Either
// may be empty.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return callNoContent(ctx, c, http.MethodPost, "/v1/auth/logout", accessToken,
		LogoutRequest{RefreshToken: refreshToken})
}

// LogoutAll ends every session of the token's user.
func (c *Client) LogoutAll(ctx context.Context, accessToken string) (int, error) {
	resp, err := call[LogoutAllResponse](ctx, c, http.MethodPost, "/v1/auth/logout-all", accessToken, nil, http.StatusOK)
	if err != nil {
		return 0, err
	}
	return resp.Revoked, nil
}

// Validate verifies an access token server-side, including revocation.
func (c *Client) Validate(ctx context.Context, accessToken string) (*Profile, error) {
	resp, err := call[ValidateResponse](ctx, c, http.MethodGet, "/v1/auth/validate", accessToken, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Check asks whether the token's user holds permission.
func (c *Client) Check(ctx context.Context, accessToken, permission string) (bool, error) {
	path := "/v1/auth/check?" + url.Values{"permission": {permission}}.Encode()
	resp, err := call[CheckResponse](ctx, c, http.MethodGet, path, accessToken, nil, http.StatusOK)
	if err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// ListSessions lists the live sessions of the token's user.
func (c *Client) ListSessions(ctx context.Context, accessToken string) ([]SessionInfo, error) {
	resp, err := call[ListSessionsResponse](ctx, c, http.MethodGet, "/v1/auth/sessions", accessToken, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// OAuthInitiate starts a provider login and returns the URL to send the
// browser to.
func (c *Client) OAuthInitiate(ctx context.Context, provider, redirectURI string) (*OAuthInitiateResponse, error) {
	q := url.Values{"provider": {provider}}
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	return call[OAuthInitiateResponse](ctx, c, http.MethodPost, "/v1/auth/oauth/initiate?"+q.Encode(), "", nil, http.StatusOK)
}

// AuthenticateWithPassword logs in and wraps the tokens in a Session. An
// MFA challenge is returned as *MFARequiredError.
func (c *Client) AuthenticateWithPassword(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if resp.MFARequired {
		return nil, &MFARequiredError{MFAToken: resp.MFAToken, Methods: resp.MFAMethods}
	}
	return newSession(c, &resp.TokenResponse), nil
}

// AuthenticateWithMFA completes a challenge and wraps the tokens in a Session.
func (c *Client) AuthenticateWithMFA(ctx context.Context, challenge *MFARequiredError, method, code string) (*Session, error) {
	resp, err := c.VerifyMFA(ctx, challenge.MFAToken, method, code)
	if err != nil {
		return nil, err
	}
	return newSession(c, resp), nil
}
