package auth_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/warden/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * This includes container setup, account operations, and assertions.
 */

const (
	testImageName = "warden-auth-test:latest"

	testSecret   = "e2e-secret-0123456789abcdef0123456789"
	testPassword = "correct horse battery"
)

// TestMain builds the Docker image once before all tests and removes it after
// they complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Auth Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Auth Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // image might not exist
}

// baseEnv is the container environment shared by every test.
func baseEnv() map[string]string {
	return map[string]string{
		"AUTH_JWT_SECRET":    testSecret,
		"AUTH_ISSUER":        "warden-e2e",
		"AUTH_COOKIE_SECURE": "false",
		"ENV":                "test",
		"LOG_LEVEL":          "info",
		"LOG_FORMAT":         "json",
	}
}

// relaxedLimits lifts the rate limits so tests making many rapid requests do
// not trip them.
func relaxedLimits() map[string]string {
	return map[string]string{
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
}

// startContainer runs the service with env layered over baseEnv and returns
// its base URL. The container is terminated when the test ends.
func startContainer(t *testing.T, env ...map[string]string) string {
	t.Helper()
	ctx := context.Background()

	merged := baseEnv()
	for _, e := range env {
		maps.Copy(merged, e)
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          merged,
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// setupAuthContainer starts the service with relaxed rate limits.
func setupAuthContainer(t *testing.T, env ...map[string]string) *authsdk.Client {
	t.Helper()
	return authsdk.NewClient(startContainer(t, append([]map[string]string{relaxedLimits()}, env...)...))
}

// registerAndLogin creates an account and signs it in.
func registerAndLogin(t *testing.T, client *authsdk.Client, email string) *authsdk.Session {
	t.Helper()
	ctx := t.Context()

	_, err := client.Register(ctx, authsdk.RegisterRequest{
		Email:     email,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err, "register %s", email)

	session, err := client.AuthenticateWithPassword(ctx, email, testPassword)
	require.NoError(t, err, "login %s", email)
	return session
}

// requireAPIError asserts err is an API error with the given status and code.
func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	require.Error(t, err)

	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected *authsdk.APIError, got %T: %v", err, err)
	require.Equal(t, status, apiErr.StatusCode, "status for %s", apiErr.Code)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
