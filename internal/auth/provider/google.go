package provider

import (
	"context"
	"net/url"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

type Google struct {
	oauthClient
}

func NewGoogle(cfg Config) *Google {
	return &Google{newOAuthClient(cfg,
		defaultGoogleAuthURL, defaultGoogleTokenURL, defaultGoogleUserInfoURL,
		[]string{"openid", "email", "profile"})}
}

func (g *Google) Name() string { return "google" }

func (g *Google) LoginURL(state, redirectURI string) string {
	return g.loginURL(state, redirectURI, " ", url.Values{"prompt": {"select_account"}})
}

func (g *Google) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	return g.exchange(ctx, code, redirectURI)
}

func (g *Google) FetchProfile(ctx context.Context, accessToken string) (RawProfile, error) {
	return g.fetchProfile(ctx, g.cfg.UserInfoURL, accessToken)
}

// NormalizeProfile maps OpenID Connect claims: sub, given_name, family_name.
func (g *Google) NormalizeProfile(raw RawProfile) (domain.ExternalProfile, error) {
	p := domain.ExternalProfile{
		Provider:   g.Name(),
		ExternalID: str(raw, "sub"),
		Email:      str(raw, "email"),
		FirstName:  str(raw, "given_name"),
		LastName:   str(raw, "family_name"),
		Picture:    str(raw, "picture"),
	}
	if err := complete(p); err != nil {
		return domain.ExternalProfile{}, err
	}
	return p, nil
}

var _ Provider = (*Google)(nil)
