package httpx

import (
	"context"

	"github.com/aussiebroadwan/warden/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
	CtxKeyToken  ctxKey = "access_token"
)

// UserID returns the authenticated principal, or "" outside AuthnMiddleware.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUserID).(string)
	return v
}

// Claims returns the verified access token claims.
func Claims(ctx context.Context) (*jwtx.AccessClaims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(*jwtx.AccessClaims)
	return c, ok && c != nil
}

// AccessToken returns the raw token the request authenticated with.
func AccessToken(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyToken).(string)
	return v
}

func permissionsFromCtx(ctx context.Context) []string {
	if c, ok := Claims(ctx); ok {
		return c.Permissions
	}
	return nil
}
