// Package provider implements the relying-party side of the OAuth
// authorization-code flow against external identity providers.
package provider

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

var (
	ErrUnknownProvider   = errors.New("unknown_provider")
	ErrUpstream          = errors.New("oauth_provider_error")
	ErrIncompleteProfile = errors.New("incomplete_profile")
)

// RawProfile is the provider's profile document as returned by its API.
type RawProfile map[string]any

// Provider is one external identity provider. Each implementation owns its
// endpoints and its profile field mapping.
type Provider interface {
	Name() string

	// LoginURL builds the authorization URL the browser is sent to.
	LoginURL(state, redirectURI string) string

	// ExchangeCode trades an authorization code for a provider access token.
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)

	// FetchProfile loads the user's profile with a provider access token.
	FetchProfile(ctx context.Context, accessToken string) (RawProfile, error)

	// NormalizeProfile maps the provider's fields. It fails with
	// ErrIncompleteProfile when the id, email, first or last name is missing.
	NormalizeProfile(raw RawProfile) (domain.ExternalProfile, error)
}

// Registry selects providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the provider under its lower-cased name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
