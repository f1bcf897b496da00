package domain

import "time"

type TokenKind string

const (
	TokenAccess  TokenKind = "ACCESS"
	TokenRefresh TokenKind = "REFRESH"
)

// TokenRecord is the persisted revocation state of a token, keyed by jti.
// Refresh tokens get a record when issued; access tokens only when revoked
// before expiry. A user's live REFRESH records are their sessions.
type TokenRecord struct {
	JTI       string
	UserID    string
	Kind      TokenKind
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// Live reports whether the record still represents a usable token at now.
func (t TokenRecord) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// ClientMeta describes the client a token was issued to.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Profile is the authorization profile embedded in access tokens.
type Profile struct {
	UserID        string     `json:"user_id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Roles         []string   `json:"roles"`
	Permissions   []string   `json:"permissions"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	MFAEnabled    bool       `json:"mfa_enabled"`
}

// TokenPair is what a successful login, MFA verification or refresh returns.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
	AccessJTI        string
	RefreshJTI       string
	IssuedAt         time.Time
}

func (p TokenPair) RefreshExpiresAt() time.Time { return p.IssuedAt.Add(p.RefreshExpiresIn) }

// LoginResult either carries tokens or asks for a second factor.
type LoginResult struct {
	Pair        *TokenPair
	Profile     Profile
	MFARequired bool
	MFAToken    string
	MFAMethods  []string
}
