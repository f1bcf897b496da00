package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// ErrInsufficientPermission is handed to the ErrorHandler when the caller's
// token lacks a required permission.
var ErrInsufficientPermission = errors.New("insufficient_permission")

// RequirePermissions requires every listed permission in the verified access
// token. Permissions are the flattened "resource:action" names the token
// carries; no hierarchy is consulted.
func RequirePermissions(onError ErrorHandler, required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := make(map[string]struct{})
			for _, p := range permissionsFromCtx(r.Context()) {
				have[p] = struct{}{}
			}

			for _, req := range required {
				if _, ok := have[req]; !ok {
					w.Header().Set("WWW-Authenticate",
						`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
					onError(w, r, ErrInsufficientPermission)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission requires at least one of the listed permissions.
func RequireAnyPermission(onError ErrorHandler, required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range permissionsFromCtx(r.Context()) {
				if _, ok := want[p]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate",
				`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
			onError(w, r, ErrInsufficientPermission)
		})
	}
}
