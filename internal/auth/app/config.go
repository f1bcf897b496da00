package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/provider"
	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// ConfigFileEnv names an optional YAML file read before the environment.
const ConfigFileEnv = "AUTH_CONFIG_FILE"

// ProviderConfig registers one OAuth provider. Env names are joined with the
// parent field's env-prefix. A provider without a client id is not registered.
type ProviderConfig struct {
	ClientID     string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"REDIRECT_URL"`
	Scopes       []string `yaml:"scopes" env:"SCOPES" env-separator:","`
}

func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

func (p ProviderConfig) toProvider() provider.Config {
	return provider.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
	}
}

type Config struct {
	JWTSecret         string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer            string        `yaml:"issuer" env:"AUTH_ISSUER" env-default:"warden"`
	AccessTTLSeconds  int           `yaml:"access_ttl_seconds" env:"AUTH_ACCESS_TTL_SECONDS" env-default:"900"`
	RefreshTTLSeconds int           `yaml:"refresh_ttl_seconds" env:"AUTH_REFRESH_TTL_SECONDS" env-default:"604800"`
	LockoutThreshold  int           `yaml:"lockout_threshold" env:"AUTH_LOCKOUT_THRESHOLD" env-default:"5"`
	LockoutDuration   time.Duration `yaml:"lockout_duration" env:"AUTH_LOCKOUT_DURATION" env-default:"30m"`
	MaxSessions       int           `yaml:"max_sessions" env:"AUTH_MAX_SESSIONS" env-default:"5"`
	OAuthStateTTL     time.Duration `yaml:"oauth_state_ttl" env:"AUTH_OAUTH_STATE_TTL" env-default:"15m"`
	DefaultRoles      []string      `yaml:"default_roles" env:"AUTH_DEFAULT_ROLES" env-default:"user" env-separator:","`

	DatabaseFile string `yaml:"database_file" env:"AUTH_DATABASE_FILE" env-default:"warden.db"`
	PepperFile   string `yaml:"pepper_file" env:"AUTH_PEPPER_FILE" env-default:"pepper"`
	RedisURL     string `yaml:"redis_url" env:"AUTH_REDIS_URL"` // empty keeps caches in memory

	CookieSecure bool   `yaml:"cookie_secure" env:"AUTH_COOKIE_SECURE" env-default:"true"`
	CookieDomain string `yaml:"cookie_domain" env:"AUTH_COOKIE_DOMAIN"`

	HousekeepingSchedule string `yaml:"housekeeping_schedule" env:"AUTH_HOUSEKEEPING_SCHEDULE" env-default:"@every 1h"`

	Google   ProviderConfig `yaml:"google" env-prefix:"AUTH_GOOGLE_"`
	Facebook ProviderConfig `yaml:"facebook" env-prefix:"AUTH_FACEBOOK_"`
	GitHub   ProviderConfig `yaml:"github" env-prefix:"AUTH_GITHUB_"`

	Env                 string        `yaml:"env" env:"ENV" env-default:"dev"`
	LogLevel            string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat           string        `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	Port                int           `yaml:"port" env:"PORT" env-default:"8080"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`
}

// LoadConfig reads the optional YAML file named by AUTH_CONFIG_FILE, overlays
// the environment and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))

	roles := c.DefaultRoles[:0]
	for _, r := range c.DefaultRoles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	c.DefaultRoles = roles
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters", jwtx.MinSecretLength))
	}
	if c.AccessTTLSeconds <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TTL_SECONDS must be positive"))
	}
	if c.RefreshTTLSeconds <= c.AccessTTLSeconds {
		errs = append(errs, errors.New("AUTH_REFRESH_TTL_SECONDS must exceed the access token lifetime"))
	}
	if c.LockoutThreshold <= 0 {
		errs = append(errs, errors.New("AUTH_LOCKOUT_THRESHOLD must be positive"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("AUTH_LOCKOUT_DURATION must be positive"))
	}
	if c.MaxSessions <= 0 {
		errs = append(errs, errors.New("AUTH_MAX_SESSIONS must be positive"))
	}
	if c.OAuthStateTTL <= 0 {
		errs = append(errs, errors.New("AUTH_OAUTH_STATE_TTL must be positive"))
	}
	if len(c.DefaultRoles) == 0 {
		errs = append(errs, errors.New("AUTH_DEFAULT_ROLES must name at least one role"))
	}
	if _, err := cron.ParseStandard(c.HousekeepingSchedule); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_HOUSEKEEPING_SCHEDULE: %w", err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	return errors.Join(errs...)
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLSeconds) * time.Second
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}
