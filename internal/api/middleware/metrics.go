package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/go-chi/chi/v5"
)

// MetricsMiddleware records request latency by route pattern and tracks
// requests in flight. Event stream connections count as in flight for their
// whole lifetime.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.TrackInFlight(1)
		defer observability.TrackInFlight(-1)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

// routePattern keeps label cardinality bounded: account and id path segments
// collapse into their chi pattern, and paths no route matched share one label.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
