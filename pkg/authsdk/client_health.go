package authsdk

import (
	"context"
	"net/http"
)

// Liveness reports whether the process is serving.
func (c *Client) Liveness(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, http.MethodGet, "/livez", "", nil, http.StatusOK)
}

// Readiness reports whether the store and caches are reachable.
func (c *Client) Readiness(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, http.MethodGet, "/readyz", "", nil, http.StatusOK)
}
