package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/pkg/httpx"
)

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware observes request latency per mux pattern. It must wrap the
// mux directly so the pattern the mux records on the request is visible here.
func metricsMiddleware(c *metrics.Collector) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			c.ObserveRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}
