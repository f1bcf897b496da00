// Package metrics exposes prometheus counters for authentication events.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeLocked      = "locked"
	OutcomeDisabled    = "disabled"
	OutcomeMFARequired = "mfa_required"
	OutcomeError       = "error"
)

// Revocation reasons.
const (
	ReasonRotated   = "rotated"
	ReasonLogout    = "logout"
	ReasonEvicted   = "evicted"
	ReasonRevoked   = "revoked"
	ReasonLogoutAll = "logout_all"
)

// Collector holds the service's prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	loginAttempts   *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	tokensRevoked   *prometheus.CounterVec
	lockouts        prometheus.Counter
	evictions       prometheus.Counter
	oauthCallbacks  *prometheus.CounterVec
	housekeeping    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_issued_total",
			Help: "Tokens issued by kind.",
		}, []string{"kind"}),
		tokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_revoked_total",
			Help: "Tokens revoked by reason.",
		}, []string{"reason"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_account_lockouts_total",
			Help: "Accounts locked after repeated failed credential checks.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_session_evictions_total",
			Help: "Sessions evicted to stay within the per-user cap.",
		}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_oauth_callbacks_total",
			Help: "OAuth callbacks by provider and outcome.",
		}, []string{"provider", "outcome"}),
		housekeeping: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_housekeeping_runs_total",
			Help: "Housekeeping sweeps by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.tokensIssued,
		c.tokensRevoked,
		c.lockouts,
		c.evictions,
		c.oauthCallbacks,
		c.housekeeping,
		c.requestDuration,
	)

	return c
}

func (c *Collector) LoginAttempt(outcome string) {
	if c == nil {
		return
	}
	c.loginAttempts.WithLabelValues(outcome).Inc()
}

func (c *Collector) TokenIssued(kind string) {
	if c == nil {
		return
	}
	c.tokensIssued.WithLabelValues(kind).Inc()
}

func (c *Collector) TokenRevoked(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.tokensRevoked.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) AccountLocked() {
	if c == nil {
		return
	}
	c.lockouts.Inc()
}

func (c *Collector) SessionEvicted() {
	if c == nil {
		return
	}
	c.evictions.Inc()
}

func (c *Collector) OAuthCallback(provider, outcome string) {
	if c == nil {
		return
	}
	c.oauthCallbacks.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) HousekeepingRun(outcome string) {
	if c == nil {
		return
	}
	c.housekeeping.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one HTTP request. route is the mux pattern, not
// the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
