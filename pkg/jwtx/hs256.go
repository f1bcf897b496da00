package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest shared secret accepted for HS256.
const MinSecretLength = 32

// HS256 signs and verifies tokens with a shared HMAC-SHA256 secret.
type HS256 struct {
	secret []byte
	issuer string
	leeway time.Duration

	// Now is the clock used for exp/nbf validation.
	Now func() time.Time
}

// NewHS256 returns a signer/verifier for secret. Issuer is enforced on
// verification when non-empty.
func NewHS256(secret, issuer string, leeway time.Duration) (*HS256, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &HS256{
		secret: []byte(secret),
		issuer: issuer,
		leeway: leeway,
		Now:    time.Now,
	}, nil
}

// Issuer returns the configured issuer.
func (h *HS256) Issuer() string { return h.issuer }

// Sign serializes and signs claims.
func (h *HS256) Sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return token, nil
}

// Peek decodes claims without checking the signature. Only use the result to
// look up revocation state before the real verification.
func (h *HS256) Peek(token string, claims jwt.Claims) error {
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ErrMalformed
	}
	return nil
}

// Verify checks signature, algorithm, issuer and time claims, filling claims.
func (h *HS256) Verify(token string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(h.leeway),
		jwt.WithTimeFunc(h.Now),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	return mapError(err)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
