package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default lifetimes, overridable through configuration.
const (
	DefaultAccessTokenTTL  = 900 * time.Second
	DefaultRefreshTokenTTL = 604800 * time.Second
)

// Token types carried in the "typ" claim so a refresh token can never be
// presented where an access token is expected and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// AccessClaims carry the full authorization profile of the user. Resource
// servers can authorize from these claims without calling back.
type AccessClaims struct {
	jwt.RegisteredClaims

	Type string `json:"typ"`

	// SessionID is the jti of the refresh token that minted this access
	// token. Revoking the session revokes its access tokens too.
	SessionID string `json:"sid,omitempty"`

	Email         string   `json:"email,omitempty"`
	FirstName     string   `json:"given_name,omitempty"`
	LastName      string   `json:"family_name,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
	Status        string   `json:"status,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	MFA           bool     `json:"mfa"`
}

// RefreshClaims carry only what rotation needs.
type RefreshClaims struct {
	jwt.RegisteredClaims

	Type  string   `json:"typ"`
	Roles []string `json:"roles,omitempty"`
}

// NewJTI returns a random token identifier. It doubles as the revocation key
// and is never derived from the token material.
func NewJTI() string {
	return uuid.NewString()
}

// Registered builds the registered claims shared by both token types.
func Registered(issuer, subject, jti string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}
}

// ExpiresAt returns the expiry of c or the zero time when absent.
func ExpiresAt(c jwt.Claims) time.Time {
	exp, err := c.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
