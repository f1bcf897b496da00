package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/warden/internal/auth/http"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/provider"
	"github.com/aussiebroadwan/warden/internal/auth/service"
	"github.com/aussiebroadwan/warden/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/aussiebroadwan/warden/pkg/cryptox"
	"github.com/aussiebroadwan/warden/pkg/httpx"
	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service and its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       *sqlite.Store
	redis    *redis.Client // nil when caches are in memory
	revoked  cache.Cache
	states   cache.Cache
	registry *prometheus.Registry
	metrics  *metrics.Collector

	tokens       *service.TokenAuthority
	guard        *service.AccountGuard
	sessions     *service.SessionGovernor
	rbac         *service.RBACResolver
	login        *service.LoginService
	users        *service.UserService
	mfa          *service.MFAService
	oauth        *service.OAuthHandshake
	housekeeping *service.Housekeeping

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "warden",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCaches(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	if err := app.housekeeping.Start(); err != nil {
		return err
	}

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"providers", app.oauth.Providers.Names(),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeeping.Stop()
		app.closeStores()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, stops housekeeping and closes stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// initDatabase opens the database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

// initCaches picks Redis when configured so several instances share the
// revocation list and OAuth state; otherwise both live in process memory.
func (app *Application) initCaches() error {
	if app.cfg.RedisURL == "" {
		app.revoked = cache.NewMemory()
		app.states = cache.NewMemory()
		app.logger.Warn("using in-memory caches; revocations are not shared between instances")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.DialRedis(ctx, app.cfg.RedisURL)
	if err != nil {
		return err
	}
	app.redis = client
	app.revoked = cache.NewRedis(client, "warden:revoked:")
	app.states = cache.NewRedis(client, "warden:")
	app.logger.Info("using redis caches")
	return nil
}

func (app *Application) providers() *provider.Registry {
	reg := provider.NewRegistry()
	if app.cfg.Google.Enabled() {
		reg.Register(provider.NewGoogle(app.cfg.Google.toProvider()))
	}
	if app.cfg.Facebook.Enabled() {
		reg.Register(provider.NewFacebook(app.cfg.Facebook.toProvider()))
	}
	if app.cfg.GitHub.Enabled() {
		reg.Register(provider.NewGitHub(app.cfg.GitHub.toProvider()))
	}
	return reg
}

// initServices builds the service graph.
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	signer, err := jwtx.NewHS256(app.cfg.JWTSecret, app.cfg.Issuer, 0)
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewCollector(app.registry)

	app.rbac = &service.RBACResolver{Store: app.db}
	profiles := &service.Profiles{Store: app.db, RBAC: app.rbac}

	app.tokens = &service.TokenAuthority{
		Signer:     signer,
		Store:      app.db,
		Revoked:    app.revoked,
		Profiles:   profiles,
		Metrics:    app.metrics,
		AccessTTL:  app.cfg.AccessTTL(),
		RefreshTTL: app.cfg.RefreshTTL(),
	}
	app.guard = &service.AccountGuard{
		Store:     app.db,
		Metrics:   app.metrics,
		Threshold: app.cfg.LockoutThreshold,
		Duration:  app.cfg.LockoutDuration,
	}
	app.sessions = &service.SessionGovernor{
		Store:       app.db,
		Tokens:      app.tokens,
		Metrics:     app.metrics,
		MaxSessions: app.cfg.MaxSessions,
	}
	app.login = &service.LoginService{
		Store:        app.db,
		Hasher:       cryptox.NewArgon2Hasher(pepper),
		Tokens:       app.tokens,
		Guard:        app.guard,
		Sessions:     app.sessions,
		Profiles:     profiles,
		RBAC:         app.rbac,
		Metrics:      app.metrics,
		DefaultRoles: app.cfg.DefaultRoles,
	}
	app.users = &service.UserService{Store: app.db, Sessions: app.sessions}
	app.mfa = &service.MFAService{Store: app.db, Issuer: app.cfg.Issuer}
	app.oauth = &service.OAuthHandshake{
		Providers:    app.providers(),
		States:       app.states,
		Store:        app.db,
		Guard:        app.guard,
		Login:        app.login,
		Metrics:      app.metrics,
		StateTTL:     app.cfg.OAuthStateTTL,
		DefaultRoles: app.cfg.DefaultRoles,
	}

	app.housekeeping = service.NewHousekeeping(
		app.db,
		app.logger,
		app.cfg.HousekeepingSchedule,
		app.revoked,
		app.states,
	)
	app.housekeeping.Metrics = app.metrics
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.revoked, app.logger)

	router.Tokens = app.tokens
	router.Login = app.login
	router.Sessions = app.sessions
	router.Users = app.users
	router.RBAC = app.rbac
	router.MFA = app.mfa
	router.OAuth = app.oauth
	router.Cookies = httpx.CookieConfig{
		Secure: app.cfg.CookieSecure,
		Domain: app.cfg.CookieDomain,
	}
	router.Metrics = app.metrics
	router.Gatherer = app.registry
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
