package auth_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHealthEndpoints verifies the probes before any account exists.
func TestHealthEndpoints(t *testing.T) {
	client := setupAuthContainer(t)

	health, err := client.Liveness(t.Context())
	assertHealthy(t, health, err)

	health, err = client.Readiness(t.Context())
	assertHealthy(t, health, err)
	require.NotNil(t, health.Checks)
	require.Equal(t, "ok", health.Checks.Database)
	require.Equal(t, "in-memory", health.Checks.Cache)
}

// TestMetricsEndpoint verifies the prometheus exposition is served.
func TestMetricsEndpoint(t *testing.T) {
	client := setupAuthContainer(t)

	_, err := client.Liveness(t.Context())
	require.NoError(t, err)

	resp, err := http.Get(client.BaseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "warden_http_request_duration_seconds"))
}
