package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/api/problem"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits requests per IP for unauthenticated routes.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded("this IP", rps)),
	)
}

// AuthRateLimiter limits authenticated callers keyed by their account address.
// It must run after AuthMiddleware.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if caller := CallerFromContext(r.Context()); !caller.IsZero() {
				return "account:" + caller.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded("this account", rps)),
	)
}

// FeedRateLimiter bounds signed round submissions per feed id, whichever
// publisher host they come from. Mount it on a route with an {id} parameter.
func FeedRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "feed:" + chi.URLParam(r, "id"), nil
		}),
		httprate.WithLimitHandler(limitExceeded("this feed", rps)),
	)
}

func limitExceeded(scope string, rps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusTooManyRequests, problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("Rate limit of %d req/s exceeded for %s", rps, scope))
	}
}
