package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// refreshSkew renews the access token slightly before it expires.
const refreshSkew = 30 * time.Second

// Session holds a token pair and refreshes it when the access token is about
// to expire. It is safe for concurrent use; concurrent callers share one
// refresh because refresh tokens are single use.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	profile      Profile
}

func newSession(client *Client, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.store(tokens)
	return s
}

// NewSessionFromTokens resumes a session from stored tokens. The profile is
// unknown until the first refresh, so local permission checks are skipped
// until then.
func (c *Client) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    time.Now().Add(time.Duration(expiresIn)*time.Second - refreshSkew),
	}
}

func (s *Session) store(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshSkew)
	if tokens.User != nil {
		s.profile = *tokens.User
	}
}

// token returns a valid access token, refreshing first if needed.
func (s *Session) token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tokens)
	return s.accessToken, nil
}

// Refresh rotates the token pair now.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.store(tokens)
	return nil
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Profile returns the profile delivered with the latest token pair.
func (s *Session) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// checkPermissions fails locally when the profile lacks a required
// permission.
func (s *Session) checkPermissions(required ...string) error {
	if !s.client.CheckPermissions || len(required) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile.UserID == "" {
		return nil
	}

	var missing []string
	for _, p := range required {
		if !s.profile.HasPermission(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required permission(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate verifies the session's access token server-side.
func (s *Session) Validate(ctx context.Context) (*Profile, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Validate(ctx, token)
}

// Logout ends this session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.RLock()
	access, refresh := s.accessToken, s.refreshToken
	s.mu.RUnlock()

	return s.client.Logout(ctx, access, refresh)
}

// LogoutAll ends every session of the user, including this one.
func (s *Session) LogoutAll(ctx context.Context) (int, error) {
	token, err := s.token(ctx)
	if err != nil {
		return 0, err
	}
	return s.client.LogoutAll(ctx, token)
}

func (s *Session) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.ListSessions(ctx, token)
}

// RevokeSession ends one of the user's sessions by id.
func (s *Session) RevokeSession(ctx context.Context, id string) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}
	return callNoContent(ctx, s.client, http.MethodDelete, "/v1/auth/sessions/"+id, token, nil)
}

// send runs an authenticated JSON request after the local permission check.
func send[T any](ctx context.Context, s *Session, method, path string, body any, expected int, perms ...string) (*T, error) {
	if err := s.checkPermissions(perms...); err != nil {
		return nil, err
	}
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return call[T](ctx, s.client, method, path, token, body, expected)
}

func sendNoContent(ctx context.Context, s *Session, method, path string, body any, perms ...string) error {
	if err := s.checkPermissions(perms...); err != nil {
		return err
	}
	token, err := s.token(ctx)
	if err != nil {
		return err
	}
	return callNoContent(ctx, s.client, method, path, token, body)
}
