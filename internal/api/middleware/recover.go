package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ayo6706/dual-currency-settlement/internal/api/problem"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"go.uber.org/zap"
)

// RecoverMiddleware converts panics into RFC 7807 responses. A ledger that finds
// its books unbalanced after a commit panics with ErrInvariantViolated; that case
// is reported under its own problem type so operators can alert on it.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				kind, slug := "panic", "internal-server-error"
				if errors.Is(err, domain.ErrInvariantViolated) {
					kind, slug = "invariant", "ledger/invariant-violated"
				}
				observability.IncrementPanic(kind)

				logger.Error("panic recovered",
					zap.Error(err),
					zap.String("kind", kind),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("request_id", TraceIDFromContext(r.Context())),
					zap.ByteString("stack", debug.Stack()),
				)
				problem.Write(w, r, http.StatusInternalServerError, problem.Type(slug),
					http.StatusText(http.StatusInternalServerError), "unexpected server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
