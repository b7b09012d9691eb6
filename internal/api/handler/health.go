package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity is satisfied by the NATS client.
type Connectivity interface {
	IsConnected() bool
}

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
// Every dependency is optional; a nil one is not checked.
type HealthHandler struct {
	db    Pinger
	redis redis.Cmdable
	nats  Connectivity
}

func NewHealthHandler(db Pinger, redis redis.Cmdable, nats Connectivity) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, nats: nats}
}

// Live always reports OK – if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks the configured dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/database-unavailable", "database unavailable")
			return
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/redis-unavailable", "redis unavailable")
			return
		}
	}
	if h.nats != nil && !h.nats.IsConnected() {
		RespondError(w, r, http.StatusServiceUnavailable, "health/nats-unavailable", "nats unavailable")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
