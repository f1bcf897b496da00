package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "warden", cfg.Issuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL())
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
	require.Equal(t, 5, cfg.LockoutThreshold)
	require.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 5, cfg.MaxSessions)
	require.Equal(t, []string{"user"}, cfg.DefaultRoles)
	require.True(t, cfg.CookieSecure)
	require.Equal(t, 8080, cfg.Port)
	require.False(t, cfg.Google.Enabled())
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("AUTH_DEFAULT_ROLES", "user, member")
	t.Setenv("AUTH_GITHUB_CLIENT_ID", "gh-client")
	t.Setenv("AUTH_GITHUB_SCOPES", "read:user,user:email")
	t.Setenv("AUTH_LOCKOUT_DURATION", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"user", "member"}, cfg.DefaultRoles)
	require.True(t, cfg.GitHub.Enabled())
	require.Equal(t, []string{"read:user", "user:email"}, cfg.GitHub.Scopes)
	require.Equal(t, 5*time.Minute, cfg.LockoutDuration)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: "+testSecret+"\nissuer: from-file\nmax_sessions: 2\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("AUTH_MAX_SESSIONS", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Issuer)
	require.Equal(t, 3, cfg.MaxSessions) // environment wins
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "AUTH_JWT_SECRET"},
		{"refresh shorter than access", func(c *Config) { c.RefreshTTLSeconds = 60 }, "AUTH_REFRESH_TTL_SECONDS"},
		{"no default roles", func(c *Config) { c.DefaultRoles = nil }, "AUTH_DEFAULT_ROLES"},
		{"bad schedule", func(c *Config) { c.HousekeepingSchedule = "sometimes" }, "AUTH_HOUSEKEEPING_SCHEDULE"},
		{"zero sessions", func(c *Config) { c.MaxSessions = 0 }, "AUTH_MAX_SESSIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, validConfig().Validate())
}

func validConfig() Config {
	return Config{
		JWTSecret:            testSecret,
		Issuer:               "warden",
		AccessTTLSeconds:     900,
		RefreshTTLSeconds:    604800,
		LockoutThreshold:     5,
		LockoutDuration:      30 * time.Minute,
		MaxSessions:          5,
		OAuthStateTTL:        15 * time.Minute,
		DefaultRoles:         []string{"user"},
		HousekeepingSchedule: "@every 1h",
		Port:                 8080,
	}
}
