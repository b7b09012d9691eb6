package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/idempotency"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func problemBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTraceMiddleware(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "request id wins", headers: map[string]string{
			"X-Request-ID": "req-42",
			"traceparent":  "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		}, want: "req-42"},
		{name: "traceparent", headers: map[string]string{
			"traceparent": "00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01",
		}, want: "4bf92f3577b34da6a3ce929d0e0e4736"},
		{name: "malformed traceparent", headers: map[string]string{"traceparent": "garbage"}},
		{name: "nothing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
			if tc.want != "" {
				assert.Equal(t, tc.want, seen)
			} else {
				assert.Len(t, seen, 36)
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	logger := zap.NewNop()

	t.Run("invariant violation", func(t *testing.T) {
		h := TraceMiddleware(RecoverMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(fmt.Errorf("%w: RWFC supply drifted", domain.ErrInvariantViolated))
		})))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/settlements", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := problemBody(t, w)
		assert.Contains(t, body["type"], "ledger/invariant-violated")
		assert.Equal(t, w.Header().Get("X-Request-ID"), body["request_id"])
	})

	t.Run("plain panic", func(t *testing.T) {
		h := RecoverMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, problemBody(t, w)["type"], "internal-server-error")
	})

	t.Run("abort handler propagates", func(t *testing.T) {
		h := RecoverMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func TestFeedRateLimiterIsPerFeed(t *testing.T) {
	r := chi.NewRouter()
	r.With(FeedRateLimiter(1)).Post("/feeds/{id}/rounds", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	post := func(feed string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/feeds/"+feed+"/rounds", nil))
		return w
	}

	assert.Equal(t, http.StatusAccepted, post("primary").Code)
	limited := post("primary")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Contains(t, problemBody(t, limited)["detail"], "this feed")

	assert.Equal(t, http.StatusAccepted, post("backup").Code)
}

func TestAuthenticate(t *testing.T) {
	SetJWTSecret("middleware-test-secret")
	SetJWTValidation("", "")

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(JWTSecret())
		require.NoError(t, err)
		return s
	}
	future := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		caller domain.Address
		slug   string
	}{
		{name: "missing header", slug: "auth/authorization-header-required"},
		{name: "wrong scheme", header: "Basic abc", slug: "auth/invalid-token-format"},
		{name: "empty token", header: "Bearer  ", slug: "auth/invalid-token-format"},
		{name: "garbage token", header: "Bearer abc.def.ghi", slug: "auth/invalid-token"},
		{name: "expired", header: "Bearer " + sign(jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix()}), slug: "auth/invalid-token"},
		{name: "no expiry", header: "Bearer " + sign(jwt.MapClaims{"sub": "alice"}), slug: "auth/invalid-token"},
		{name: "no caller", header: "Bearer " + sign(jwt.MapClaims{"exp": future}), slug: "auth/invalid-token-claims"},
		{name: "subject only", header: "Bearer " + sign(jwt.MapClaims{"sub": "alice", "exp": future}), caller: "alice"},
		{name: "lowercase scheme", header: "bearer " + sign(jwt.MapClaims{"account": "bob", "exp": future}), caller: "bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller, fail := authenticate(tc.header)
			if tc.slug != "" {
				require.NotNil(t, fail)
				assert.Equal(t, tc.slug, fail.slug)
				assert.Equal(t, http.StatusUnauthorized, fail.status)
				return
			}
			require.Nil(t, fail)
			assert.Equal(t, tc.caller, caller)
		})
	}
}

func TestIdempotencyMiddlewareBoundsBufferedBody(t *testing.T) {
	store := idempotency.NewStore(nil, idempotency.NewMemoryBackend(time.Hour), time.Hour)
	var served int
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))

	post := func(body []byte, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/ledgers/RWFC/transfer", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req.WithContext(WithCaller(req.Context(), "alice")))
		return w
	}

	w := post(bytes.Repeat([]byte("a"), maxBufferedBody+1), "oversized")
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, problemBody(t, w)["type"], "request/body-too-large")
	assert.Zero(t, served)

	w = post(bytes.Repeat([]byte("a"), maxBufferedBody), "at-limit")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, served)
}
