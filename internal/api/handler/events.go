package handler

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventsHandler exposes the retained event log and component status.
type EventsHandler struct {
	bus *events.Bus
	net *service.Network
}

func NewEventsHandler(bus *events.Bus, net *service.Network) *EventsHandler {
	return &EventsHandler{bus: bus, net: net}
}

type eventsResponse struct {
	Events  []events.Event `json:"events"`
	LastSeq uint64         `json:"last_seq"`
	Next    uint64         `json:"next_after"`
}

// List handles GET /v1/events?after=&limit=.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-cursor", "after must be a sequence number")
			return
		}
		after = v
	}
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxEventLimit {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be between 1 and 1000")
			return
		}
		limit = v
	}

	evs := h.bus.Since(after, limit)
	next := after
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	RespondJSON(w, http.StatusOK, eventsResponse{Events: evs, LastSeq: h.bus.LastSeq(), Next: next})
}

// Status handles GET /v1/status.
func (h *EventsHandler) Status(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.net.Status())
}
