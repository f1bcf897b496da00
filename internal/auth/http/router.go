package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/aussiebroadwan/warden/pkg/httpx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/aussiebroadwan/warden/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	cache        cache.Cache

	Tokens   *service.TokenAuthority
	Login    *service.LoginService
	Sessions *service.SessionGovernor
	Users    *service.UserService
	RBAC     *service.RBACResolver
	MFA      *service.MFAService
	OAuth    *service.OAuthHandshake
	Cookies  httpx.CookieConfig

	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer // nil disables /metrics
}

// NewRouter creates a router. c is the cache reported on by /readyz.
func NewRouter(buildVersion string, st store.Store, c cache.Cache, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		cache:        c,
	}
}

func (r *Router) ApplyRoutes() {
	// metricsMiddleware sits next to the mux so it sees the matched pattern.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		metricsMiddleware(r.Metrics),
	}

	r.registerAuth()
	r.registerOAuth()
	r.registerMFA()
	r.registerRoles()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Warden Authentication API
//	@version		0.1.0
//	@description	Password, OAuth and MFA sign-in with HS256 access tokens, rotating refresh tokens and role-based access control.
//	@description
//	@description				Tokens are accepted as a bearer header or from the access_token cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/warden
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authed requires a valid access token and, optionally, every listed permission.
func (r *Router) authed(h http.HandlerFunc, limit httpx.RateLimitConfig, perms ...string) http.Handler {
	mws := []httpx.Middleware{httpx.AuthnMiddleware(r.Tokens, writeError)}
	if len(perms) > 0 {
		mws = append(mws, httpx.RequirePermissions(writeError, perms...))
	}
	mws = append(mws, httpx.RateLimitByUser(limit))
	return httpx.Chain(h, mws...)
}

func (r *Router) authHandler() *AuthHandler {
	return &AuthHandler{
		Login:    r.Login,
		Sessions: r.Sessions,
		Users:    r.Users,
		RBAC:     r.RBAC,
		Cookies:  r.Cookies,
	}
}

func (r *Router) registerAuth() {
	h := r.authHandler()

	// Credential endpoints are keyed by IP and email so one address cannot
	// lock out another account by exhausting a shared bucket.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify-mfa",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyMFA),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/auth/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout-all", r.authed(h.HandleLogoutAll, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/auth/check", r.authed(h.HandleCheck, httpx.LenientLimit))
	r.Mux.Handle("GET /v1/auth/sessions", r.authed(h.HandleListSessions, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/auth/sessions/{id}", r.authed(h.HandleRevokeSession, httpx.ModerateLimit))
}

func (r *Router) registerOAuth() {
	h := &OAuthHandler{OAuth: r.OAuth, Auth: r.authHandler()}

	initiate := httpx.Chain(http.HandlerFunc(h.HandleInitiate),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
	r.Mux.Handle("GET /v1/auth/oauth/initiate", initiate)
	r.Mux.Handle("POST /v1/auth/oauth/initiate", initiate)
	r.Mux.Handle("GET /v1/auth/oauth/callback/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFA}

	r.Mux.Handle("POST /v1/mfa/totp/enroll", r.authed(h.HandleEnroll, httpx.ModerateLimit))
	// Codes are six digits; keep guessing slow.
	r.Mux.Handle("POST /v1/mfa/totp/verify", r.authed(h.HandleVerify, httpx.StrictLimit))
	r.Mux.Handle("DELETE /v1/mfa/totp", r.authed(h.HandleRemove, httpx.StrictLimit))
	r.Mux.Handle("POST /v1/mfa/backup-codes", r.authed(h.HandleRegenerateBackupCodes, httpx.StrictLimit))
	r.Mux.Handle("GET /v1/mfa/backup-codes", r.authed(h.HandleBackupCodeStatus, httpx.ModerateLimit))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RBAC: r.RBAC}
	read, write := authsdk.PermRolesRead, authsdk.PermRolesWrite

	r.Mux.Handle("GET /v1/roles", r.authed(h.HandleList, httpx.ModerateLimit, read))
	r.Mux.Handle("POST /v1/roles", r.authed(h.HandleCreate, httpx.ModerateLimit, write))
	r.Mux.Handle("GET /v1/roles/tree", r.authed(h.HandleTree, httpx.ModerateLimit, read))
	r.Mux.Handle("GET /v1/roles/{id}", r.authed(h.HandleGet, httpx.ModerateLimit, read))
	r.Mux.Handle("PATCH /v1/roles/{id}", r.authed(h.HandleUpdate, httpx.ModerateLimit, write))
	r.Mux.Handle("DELETE /v1/roles/{id}", r.authed(h.HandleDelete, httpx.ModerateLimit, write))
	r.Mux.Handle("PUT /v1/roles/{id}/parent", r.authed(h.HandleSetParent, httpx.ModerateLimit, write))
	r.Mux.Handle("PUT /v1/roles/{id}/permissions", r.authed(h.HandleSetPermissions, httpx.ModerateLimit, write))

	r.Mux.Handle("GET /v1/permissions", r.authed(h.HandleListPermissions, httpx.ModerateLimit, read))
	r.Mux.Handle("POST /v1/permissions", r.authed(h.HandleCreatePermission, httpx.ModerateLimit, write))
	r.Mux.Handle("DELETE /v1/permissions/{id}", r.authed(h.HandleDeletePermission, httpx.ModerateLimit, write))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Users: r.Users, RBAC: r.RBAC}
	read, write := authsdk.PermUsersRead, authsdk.PermUsersWrite

	r.Mux.Handle("GET /v1/users/{id}", r.authed(h.HandleGet, httpx.ModerateLimit, read))
	r.Mux.Handle("PUT /v1/users/{id}/roles", r.authed(h.HandleAssignRoles, httpx.ModerateLimit, write))
	r.Mux.Handle("PUT /v1/users/{id}/permissions", r.authed(h.HandleGrantPermissions, httpx.ModerateLimit, write))
	r.Mux.Handle("PUT /v1/users/{id}/status", r.authed(h.HandleSetStatus, httpx.ModerateLimit, write))
}

func (r *Router) registerSystem() {
	// Monitoring systems poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", metrics.Handler(r.Gatherer))
	}
}
