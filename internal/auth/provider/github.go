package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
)

const (
	defaultGitHubAuthURL     = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL    = "https://github.com/login/oauth/access_token"
	defaultGitHubUserInfoURL = "https://api.github.com/user"
)

type GitHub struct {
	oauthClient
}

func NewGitHub(cfg Config) *GitHub {
	return &GitHub{newOAuthClient(cfg,
		defaultGitHubAuthURL, defaultGitHubTokenURL, defaultGitHubUserInfoURL,
		[]string{"read:user", "user:email"})}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) LoginURL(state, redirectURI string) string {
	return g.loginURL(state, redirectURI, " ", url.Values{"allow_signup": {"true"}})
}

func (g *GitHub) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	return g.exchange(ctx, code, redirectURI)
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchProfile loads /user and, when the public email is hidden, fills it
// from the primary verified address of /user/emails.
func (g *GitHub) FetchProfile(ctx context.Context, accessToken string) (RawProfile, error) {
	raw, err := g.fetchProfile(ctx, g.cfg.UserInfoURL, accessToken)
	if err != nil {
		return nil, err
	}
	if str(raw, "email") != "" {
		return raw, nil
	}

	var emails []githubEmail
	if err := g.fetchJSON(ctx, strings.TrimSuffix(g.cfg.UserInfoURL, "/")+"/emails", accessToken, &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			raw["email"] = e.Email
			break
		}
	}
	return raw, nil
}

// NormalizeProfile splits the display name on its last space. The login
// handle is not a name, so an account without a two-part name is incomplete.
func (g *GitHub) NormalizeProfile(raw RawProfile) (domain.ExternalProfile, error) {
	p := domain.ExternalProfile{
		Provider:   g.Name(),
		ExternalID: str(raw, "id"),
		Email:      str(raw, "email"),
		Picture:    str(raw, "avatar_url"),
	}
	name := strings.Join(strings.Fields(str(raw, "name")), " ")
	if i := strings.LastIndex(name, " "); i > 0 {
		p.FirstName, p.LastName = name[:i], name[i+1:]
	}
	if err := complete(p); err != nil {
		return domain.ExternalProfile{}, err
	}
	return p, nil
}

var _ Provider = (*GitHub)(nil)
