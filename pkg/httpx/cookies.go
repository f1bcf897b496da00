package httpx

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	OAuthStateCookie   = "oauth_state"
)

// CookieConfig controls the attributes of every cookie the service sets.
type CookieConfig struct {
	Secure bool
	Domain string
	Path   string
}

// Set writes an http-only, SameSite=Strict cookie living for ttl.
func (c CookieConfig) Set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(name, value, int(ttl.Seconds()), http.SameSiteStrictMode))
}

// SetLax writes an http-only, SameSite=Lax cookie. Use it for values that
// must survive a top-level redirect back from another site, such as the
// OAuth state.
func (c CookieConfig) SetLax(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(name, value, int(ttl.Seconds()), http.SameSiteLaxMode))
}

// Clear expires the cookie on the client.
func (c CookieConfig) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, c.cookie(name, "", -1, http.SameSiteStrictMode))
}

// ClearLax expires a cookie written by SetLax.
func (c CookieConfig) ClearLax(w http.ResponseWriter, name string) {
	http.SetCookie(w, c.cookie(name, "", -1, http.SameSiteLaxMode))
}

func (c CookieConfig) cookie(name, value string, maxAge int, sameSite http.SameSite) *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: sameSite,
	}
}

// CookieValue returns the named cookie's value or "".
func CookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
