package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/provider"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/aussiebroadwan/warden/pkg/cryptox"
	"github.com/aussiebroadwan/warden/pkg/idx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

const (
	DefaultOAuthStateTTL = 15 * time.Minute

	oauthStateKeyPrefix = "oauth_state:"
)

// OAuthLogin is where to send the browser to start a provider login.
type OAuthLogin struct {
	Provider  string
	URL       string
	State     string
	ExpiresIn time.Duration
}

// CallbackParams are the query parameters a provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// OAuthHandshake runs the relying-party side of the authorization-code flow
// and signs the resulting user in through the same completion as password
// login.
type OAuthHandshake struct {
	Providers *provider.Registry
	States    cache.Cache
	Store     store.Store
	Guard     *AccountGuard
	Login     *LoginService
	Metrics   *metrics.Collector

	StateTTL     time.Duration
	DefaultRoles []string
	Now          func() time.Time
}

func (h *OAuthHandshake) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *OAuthHandshake) stateTTL() time.Duration {
	if h.StateTTL > 0 {
		return h.StateTTL
	}
	return DefaultOAuthStateTTL
}

func stateKey(providerName, state string) string {
	return oauthStateKeyPrefix + providerName + ":" + state
}

// BeginLogin records a fresh state for the provider and returns its
// authorization URL. An empty redirectURI uses the provider's configured one.
func (h *OAuthHandshake) BeginLogin(ctx context.Context, providerName, redirectURI string) (OAuthLogin, error) {
	p, err := h.Providers.Get(providerName)
	if err != nil {
		return OAuthLogin{}, err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return OAuthLogin{}, err
	}
	if err := h.States.Add(ctx, stateKey(p.Name(), state), redirectURI, h.stateTTL()); err != nil {
		return OAuthLogin{}, fmt.Errorf("store oauth state: %w", err)
	}

	slogx.FromContext(ctx).Info("oauth login started", slog.String("provider", p.Name()))
	return OAuthLogin{
		Provider:  p.Name(),
		URL:       p.LoginURL(state, redirectURI),
		State:     state,
		ExpiresIn: h.stateTTL(),
	}, nil
}

// CompleteCallback validates and consumes the state, exchanges the code,
// resolves the user and finishes the login. A state is accepted at most once
// and only within its TTL.
func (h *OAuthHandshake) CompleteCallback(
	ctx context.Context,
	providerName string,
	params CallbackParams,
	meta domain.ClientMeta,
) (domain.LoginResult, error) {
	p, err := h.Providers.Get(providerName)
	if err != nil {
		return domain.LoginResult{}, err
	}
	name := p.Name()
	l := slogx.FromContext(ctx).With(slog.String("provider", name))

	result, err := h.complete(ctx, p, params, meta)
	switch {
	case err == nil && result.MFARequired:
		h.Metrics.OAuthCallback(name, metrics.OutcomeMFARequired)
	case err == nil:
		h.Metrics.OAuthCallback(name, metrics.OutcomeSuccess)
	case errors.Is(err, ErrInvalidOAuthState), errors.Is(err, ErrConflict):
		h.Metrics.OAuthCallback(name, metrics.OutcomeFailure)
	case errors.Is(err, ErrAccountLocked):
		h.Metrics.OAuthCallback(name, metrics.OutcomeLocked)
	case errors.Is(err, ErrAccountDisabled):
		h.Metrics.OAuthCallback(name, metrics.OutcomeDisabled)
	default:
		h.Metrics.OAuthCallback(name, metrics.OutcomeError)
		l.Warn("oauth callback failed", slog.Any("error", err))
	}
	return result, err
}

func (h *OAuthHandshake) complete(
	ctx context.Context,
	p provider.Provider,
	params CallbackParams,
	meta domain.ClientMeta,
) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx).With(slog.String("provider", p.Name()))

	// The provider refused; the state stays usable for a retry within its TTL.
	if params.Error != "" {
		msg := params.Error
		if params.ErrorDescription != "" {
			msg += ": " + params.ErrorDescription
		}
		return domain.LoginResult{}, fmt.Errorf("%w: %s", ErrOAuthProvider, msg)
	}

	state := strings.TrimSpace(params.State)
	if state == "" {
		l.Warn("oauth state rejected", slog.String("reason", "missing"))
		return domain.LoginResult{}, ErrInvalidOAuthState
	}
	redirectURI, ok, err := h.States.Take(ctx, stateKey(p.Name(), state))
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("consume oauth state: %w", err)
	}
	if !ok {
		l.Warn("oauth state rejected", slog.String("reason", "unknown_or_used"))
		return domain.LoginResult{}, ErrInvalidOAuthState
	}

	code := strings.TrimSpace(params.Code)
	if code == "" {
		return domain.LoginResult{}, invalid("code", "required")
	}

	accessToken, err := p.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return domain.LoginResult{}, err
	}
	raw, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		return domain.LoginResult{}, err
	}
	ext, err := p.NormalizeProfile(raw)
	if err != nil {
		return domain.LoginResult{}, err
	}

	user, err := h.ResolveUser(ctx, ext)
	if err != nil {
		return domain.LoginResult{}, err
	}

	user, lock, err := h.Guard.checkUser(ctx, user)
	if err != nil {
		return domain.LoginResult{}, err
	}
	if lock.Locked {
		return domain.LoginResult{}, &LockedError{Until: lock.Until}
	}
	if !canSignIn(user.Status) {
		return domain.LoginResult{}, ErrAccountDisabled
	}

	return h.Login.completeLogin(ctx, user, meta)
}

// ResolveUser finds the account linked to the external identity or creates
// one. An existing account that uses the same email but is not linked to this
// identity is never taken over.
func (h *OAuthHandshake) ResolveUser(ctx context.Context, ext domain.ExternalProfile) (domain.User, error) {
	l := slogx.FromContext(ctx)

	user, err := h.Store.Users().GetUserByProvider(ctx, ext.Provider, ext.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	email := strings.ToLower(strings.TrimSpace(ext.Email))
	if _, err := h.Store.Users().GetUserByEmail(ctx, email); err == nil {
		l.Warn("oauth identity matches an unlinked account", slog.String("provider", ext.Provider))
		return domain.User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	roleIDs, err := h.Login.RBAC.roleIDs(ctx, h.DefaultRoles)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve default roles: %w", err)
	}

	now := h.now()
	user = domain.User{
		ID:            idx.New().String(),
		Email:         email,
		FirstName:     ext.FirstName,
		LastName:      ext.LastName,
		Picture:       ext.Picture,
		Status:        domain.UserActive,
		RoleIDs:       roleIDs,
		EmailVerified: true,
		Provider:      ext.Provider,
		ProviderID:    ext.ExternalID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// A concurrent callback for the same identity won the insert.
			if existing, gerr := h.Store.Users().GetUserByProvider(ctx, ext.Provider, ext.ExternalID); gerr == nil {
				return existing, nil
			}
			return domain.User{}, ErrConflict
		}
		return domain.User{}, err
	}

	l.Info("user created from oauth identity", slog.String("user_id", user.ID), slog.String("provider", ext.Provider))
	return h.Store.Users().GetUserByID(ctx, user.ID)
}
