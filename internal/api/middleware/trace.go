package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// traceparent is "version-traceid-parentid-flags"; only the trace id is kept.
var traceparent = regexp.MustCompile(`^[0-9a-f]{2}-([0-9a-f]{32})-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceMiddleware assigns every request an id, taken from X-Request-ID, the
// trace id of a W3C traceparent header, or a fresh UUID. The id is echoed in
// X-Request-ID and becomes request_id in problem responses and logs.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := inboundTraceID(r)
		w.Header().Set(requestIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(contextWithTraceID(r.Context(), traceID)))
	})
}

func inboundTraceID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" && len(id) <= 128 {
		return id
	}
	if m := traceparent.FindStringSubmatch(strings.ToLower(r.Header.Get("traceparent"))); m != nil {
		return m[1]
	}
	return uuid.NewString()
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}
