package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ayo6706/dual-currency-settlement/internal/api/problem"
	"github.com/ayo6706/dual-currency-settlement/internal/idempotency"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	// maxBufferedBody matches the body limit the handlers decode with.
	maxBufferedBody = 1 << 20
)

// IdempotencyMiddleware enforces the Idempotency-Key contract for mutating
// requests. Keys are scoped to the authenticated caller, so it must run after
// AuthMiddleware. Responses that may succeed on retry (server errors, 409
// conflicts such as a paused ledger, 429) release the key instead of being
// recorded.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			g := &guard{store: store, logger: logger, w: w, r: r}
			if !g.prepare() {
				return
			}
			if g.replayed() {
				return
			}
			g.execute(next)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// guard carries one request through key validation, replay and execution.
type guard struct {
	store  *idempotency.Store
	logger *zap.Logger
	w      http.ResponseWriter
	r      *http.Request

	key  string
	hash string
}

func (g *guard) prepare() bool {
	raw := g.r.Header.Get(idempotencyHeader)
	if raw == "" {
		g.fail("missing_key", http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return false
	}
	key, err := idempotency.ScopedKey(CallerFromContext(g.r.Context()), raw)
	if err != nil {
		g.fail("invalid_key", http.StatusBadRequest, "idempotency/invalid-key", err.Error())
		return false
	}
	body, err := bufferBody(g.w, g.r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.fail("body_too_large", http.StatusRequestEntityTooLarge, "request/body-too-large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		g.fail("unreadable_body", http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return false
	}
	g.key = key
	g.hash = fingerprint(g.r.Method, g.r.URL.Path, body)
	return true
}

// replayed answers the request from a previous outcome when one exists.
func (g *guard) replayed() bool {
	rec, err := g.store.Lookup(g.r.Context(), g.key, g.hash)
	switch {
	case err == nil:
		g.replay(rec, "replay")
		return true
	case errors.Is(err, idempotency.ErrHashMismatch):
		g.mismatch()
		return true
	case errors.Is(err, idempotency.ErrInProgress):
		g.await("replay_after_wait")
		return true
	case !errors.Is(err, idempotency.ErrNotFound):
		observability.IncrementIdempotencyEvent("lookup_error")
		g.logger.Warn("idempotency lookup failed", zap.String("key", g.key), zap.Error(err))
	}
	return false
}

func (g *guard) execute(next http.Handler) {
	ctx := g.r.Context()
	won, err := g.store.Reserve(ctx, g.key, g.hash, g.r.Method, g.r.URL.Path)
	if err != nil {
		g.logger.Error("idempotency reserve failed", zap.String("key", g.key), zap.Error(err))
		g.fail("reserve_error", http.StatusServiceUnavailable, "idempotency/unavailable", "idempotency store unavailable")
		return
	}
	if !won {
		g.await("replay_after_reserve")
		return
	}
	observability.IncrementIdempotencyEvent("reserved")

	capture := &captureWriter{ResponseWriter: g.w}
	next.ServeHTTP(capture, g.r)
	status := capture.statusCode()

	if retryable(status) {
		observability.IncrementIdempotencyEvent("released")
		g.store.Release(ctx, g.key)
		return
	}
	contentType := capture.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if _, err := g.store.Finalize(ctx, g.key, g.hash, status, capture.buf.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("idempotency finalize failed", zap.String("key", g.key), zap.Error(err))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

// await waits for the request that holds the key and replays its response.
func (g *guard) await(outcome string) {
	rec, err := g.store.WaitForCompletion(g.r.Context(), g.key, g.hash)
	switch {
	case err == nil:
		g.replay(rec, outcome)
	case errors.Is(err, idempotency.ErrHashMismatch):
		g.mismatch()
	default:
		g.logger.Warn("idempotency wait failed", zap.String("key", g.key), zap.Error(err))
		g.fail("in_progress_conflict", http.StatusConflict, "idempotency/in-progress",
			"a request with this Idempotency-Key is still being processed")
	}
}

func (g *guard) replay(rec *idempotency.Record, outcome string) {
	observability.IncrementIdempotencyEvent(outcome)
	h := g.w.Header()
	h.Set("Content-Type", rec.ContentType)
	h.Set("X-Idempotent-Replay", rec.ServedBy)
	g.w.WriteHeader(rec.Status)
	_, _ = g.w.Write(rec.Body)
}

func (g *guard) mismatch() {
	g.fail("hash_mismatch", http.StatusConflict, "idempotency/key-conflict",
		"Idempotency-Key was already used with a different request")
}

func (g *guard) fail(outcome string, status int, slug, detail string) {
	observability.IncrementIdempotencyEvent(outcome)
	problem.Write(g.w, g.r, status, problem.Type(slug), http.StatusText(status), detail)
}

func retryable(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusConflict ||
		status == http.StatusTooManyRequests
}

// bufferBody reads at most maxBufferedBody bytes and puts an identical reader
// back for the handler.
func bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBufferedBody))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
