package provider

import (
	"context"
	"net/url"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

const (
	defaultFacebookAuthURL     = "https://www.facebook.com/v19.0/dialog/oauth"
	defaultFacebookTokenURL    = "https://graph.facebook.com/v19.0/oauth/access_token"
	defaultFacebookUserInfoURL = "https://graph.facebook.com/v19.0/me"
)

type Facebook struct {
	oauthClient
}

func NewFacebook(cfg Config) *Facebook {
	return &Facebook{newOAuthClient(cfg,
		defaultFacebookAuthURL, defaultFacebookTokenURL, defaultFacebookUserInfoURL,
		[]string{"email", "public_profile"})}
}

func (f *Facebook) Name() string { return "facebook" }

func (f *Facebook) LoginURL(state, redirectURI string) string {
	return f.loginURL(state, redirectURI, ",", nil)
}

func (f *Facebook) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	return f.exchange(ctx, code, redirectURI)
}

func (f *Facebook) FetchProfile(ctx context.Context, accessToken string) (RawProfile, error) {
	endpoint := f.cfg.UserInfoURL + "?" + url.Values{
		"fields": {"id,email,first_name,last_name,picture.type(large)"},
	}.Encode()
	return f.fetchProfile(ctx, endpoint, accessToken)
}

// NormalizeProfile maps Graph API fields: id, first_name, last_name and the
// nested picture.data.url.
func (f *Facebook) NormalizeProfile(raw RawProfile) (domain.ExternalProfile, error) {
	p := domain.ExternalProfile{
		Provider:   f.Name(),
		ExternalID: str(raw, "id"),
		Email:      str(raw, "email"),
		FirstName:  str(raw, "first_name"),
		LastName:   str(raw, "last_name"),
	}
	if pic, ok := raw["picture"].(map[string]any); ok {
		if data, ok := pic["data"].(map[string]any); ok {
			p.Picture = str(data, "url")
		}
	}
	if err := complete(p); err != nil {
		return domain.ExternalProfile{}, err
	}
	return p, nil
}

var _ Provider = (*Facebook)(nil)
