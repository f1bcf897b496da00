package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/provider"
	"github.com/aussiebroadwan/warden/internal/auth/store"
)

// Error texts double as the wire codes written by the HTTP layer.
var (
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrAccountLocked          = errors.New("account_locked")
	ErrAccountDisabled        = errors.New("account_disabled")
	ErrMissingToken           = errors.New("missing_token")
	ErrTokenExpired           = errors.New("expired_token")
	ErrTokenInvalid           = errors.New("invalid_token")
	ErrTokenRevoked           = errors.New("token_revoked")
	ErrInsufficientPermission = errors.New("insufficient_permission")
	ErrInvalidRole            = errors.New("invalid_role")
	ErrValidation             = errors.New("validation_failed")
	ErrNotFound               = errors.New("not_found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidOAuthState      = errors.New("invalid_oauth_state")
	ErrInvalidMFACode         = errors.New("invalid_mfa_code")
	ErrTooManyAttempts        = errors.New("too_many_attempts")

	// Provider failures keep the provider package's sentinels so errors.Is
	// works across the boundary.
	ErrOAuthProvider     = provider.ErrUpstream
	ErrIncompleteProfile = provider.ErrIncompleteProfile
	ErrUnknownProvider   = provider.ErrUnknownProvider

	ErrMFANotEnrolled    = fmt.Errorf("%w: mfa not enrolled", ErrConflict)
	ErrMFANotEnabled     = fmt.Errorf("%w: mfa not enabled", ErrConflict)
	ErrMFAAlreadyEnabled = fmt.Errorf("%w: mfa already enabled", ErrConflict)
)

// LockedError reports a locked account and when the lock lapses.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account_locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation_failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// invalid builds a ValidationError for a single field.
func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// fieldErrors accumulates validation failures.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// mapStoreErr translates store sentinels into service errors.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrConflict
	default:
		return err
	}
}
