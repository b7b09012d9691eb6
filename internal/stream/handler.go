package stream

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Backlog supplies retained events for clients that resume with ?after=.
type Backlog interface {
	Since(after uint64, limit int) []events.Event
}

// Handler upgrades GET /v1/events/stream. Query parameters: types (filter)
// and after (resume from a sequence number). A resumed client may see an
// event twice around the backfill boundary and should dedupe by seq.
type Handler struct {
	hub            *Hub
	backlog        Backlog
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

func NewHandler(hub *Hub, backlog Backlog, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	h := &Handler{hub: hub, backlog: backlog, allowedOrigins: origins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	if h.allowedOrigins[origin] {
		return true
	}
	h.hub.log.Warn("stream connection rejected: origin not allowed", zap.String("origin", origin))
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := ParseFilter(r.URL.Query().Get("types"))

	var after uint64
	resume := false
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "after must be a sequence number", http.StatusBadRequest)
			return
		}
		after, resume = v, true
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub, filter)
	h.hub.Register(client)
	if resume && h.backlog != nil {
		client.Backfill(h.backlog.Since(after, sendBuffer))
	}

	h.hub.log.Info("stream client connected", zap.String("client_id", client.ID()))

	go client.WritePump()
	go client.ReadPump()
}
