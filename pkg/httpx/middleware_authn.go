package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

// AccessVerifier validates an access token, including revocation.
type AccessVerifier interface {
	VerifyAccessClaims(ctx context.Context, token string) (*jwtx.AccessClaims, error)
}

// AuthnMiddleware authenticates the request with a bearer token, falling back
// to the access token cookie. An empty token is passed to the verifier, which
// reports it as missing.
func AuthnMiddleware(v AccessVerifier, onError ErrorHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := AccessTokenFromRequest(r)
			claims, err := v.VerifyAccessClaims(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("access token rejected", "err", err)
				if raw != "" {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				} else {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				onError(w, r, err)
				return
			}

			ctx = contextWithAuth(ctx, raw, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessTokenFromRequest returns the bearer token or the access token cookie.
func AccessTokenFromRequest(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
			return strings.TrimSpace(authz[7:])
		}
		return ""
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func contextWithAuth(ctx context.Context, raw string, c *jwtx.AccessClaims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	ctx = context.WithValue(ctx, CtxKeyToken, raw)
	return slogx.WithUser(ctx, c.Subject)
}
