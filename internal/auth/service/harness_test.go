package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/provider"
	"github.com/aussiebroadwan/warden/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/aussiebroadwan/warden/pkg/cryptox"
	"github.com/aussiebroadwan/warden/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store    *sqlite.Store
	clock    *testClock
	revoked  *cache.Memory
	states   *cache.Memory
	metrics  *metrics.Collector
	signer   *jwtx.HS256
	tokens   *TokenAuthority
	guard    *AccountGuard
	sessions *SessionGovernor
	rbac     *RBACResolver
	profiles *Profiles
	login    *LoginService
	mfa      *MFAService
	users    *UserService
	oauth    *OAuthHandshake
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clk := newTestClock()

	signer, err := jwtx.NewHS256(testSecret, "warden-test", 0)
	require.NoError(t, err)
	signer.Now = clk.Now

	revoked := cache.NewMemory()
	revoked.Now = clk.Now
	states := cache.NewMemory()
	states.Now = clk.Now

	h := &harness{
		store:   st,
		clock:   clk,
		revoked: revoked,
		states:  states,
		metrics: metrics.NewCollector(prometheus.NewRegistry()),
		signer:  signer,
	}

	h.rbac = &RBACResolver{Store: st}
	h.profiles = &Profiles{Store: st, RBAC: h.rbac}
	h.tokens = &TokenAuthority{
		Signer:   signer,
		Store:    st,
		Revoked:  revoked,
		Profiles: h.profiles,
		Metrics:  h.metrics,
		Now:      clk.Now,
	}
	h.guard = &AccountGuard{Store: st, Metrics: h.metrics, Now: clk.Now}
	h.sessions = &SessionGovernor{
		Store:       st,
		Tokens:      h.tokens,
		Metrics:     h.metrics,
		MaxSessions: 3,
		Now:         clk.Now,
	}
	h.login = &LoginService{
		Store:        st,
		Hasher:       cryptox.NewArgon2Hasher("test-pepper"),
		Tokens:       h.tokens,
		Guard:        h.guard,
		Sessions:     h.sessions,
		Profiles:     h.profiles,
		RBAC:         h.rbac,
		Metrics:      h.metrics,
		DefaultRoles: []string{"user"},
		Now:          clk.Now,
	}
	h.mfa = &MFAService{Store: st, Issuer: "warden-test", Now: clk.Now}
	h.users = &UserService{Store: st, Sessions: h.sessions}
	h.oauth = &OAuthHandshake{
		Providers:    provider.NewRegistry(),
		States:       states,
		Store:        st,
		Guard:        h.guard,
		Login:        h.login,
		Metrics:      h.metrics,
		DefaultRoles: []string{"user"},
		Now:          clk.Now,
	}
	return h
}

// register creates an ACTIVE local account with the default roles.
func (h *harness) register(t *testing.T, email, password string) domain.User {
	t.Helper()

	u, err := h.login.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return u
}

// signIn logs in and requires a token pair.
func (h *harness) signIn(t *testing.T, email, password string) domain.TokenPair {
	t.Helper()

	res, err := h.login.Login(context.Background(), email, password, domain.ClientMeta{IP: "203.0.113.7", UserAgent: "test"})
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotNil(t, res.Pair)
	return *res.Pair
}

func (h *harness) profile(t *testing.T, userID string) domain.Profile {
	t.Helper()

	p, err := h.profiles.SessionProfile(context.Background(), userID)
	require.NoError(t, err)
	return p
}
