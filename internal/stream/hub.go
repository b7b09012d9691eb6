// Package stream pushes committed events to WebSocket subscribers.
package stream

import (
	"errors"
	"strings"
	"sync"

	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"go.uber.org/zap"
)

// ErrClientClosed is returned when sending to a closed or saturated client.
var ErrClientClosed = errors.New("client is closed")

// Subscriber is a connected stream consumer.
type Subscriber interface {
	ID() string
	Wants(t events.Type) bool
	Send(data []byte) error
	Close() error
}

// Hub fans events out to subscribers. It is an events.Sink and never blocks
// the publisher: slow subscribers are dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Subscriber
	log     *zap.Logger
	onCount func(n int)
}

type HubOption func(*Hub)

func WithLogger(log *zap.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

// WithCountHook is called with the subscriber count after every change.
func WithCountHook(fn func(n int)) HubOption {
	return func(h *Hub) { h.onCount = fn }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{clients: make(map[string]Subscriber), log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Register(c Subscriber) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("stream client registered", zap.String("client_id", c.ID()))
	h.counted(n)
}

func (h *Hub) Unregister(c Subscriber) {
	h.mu.Lock()
	_, ok := h.clients[c.ID()]
	delete(h.clients, c.ID())
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.Debug("stream client unregistered", zap.String("client_id", c.ID()))
		h.counted(n)
	}
}

// Deliver serializes ev once and queues it on every interested subscriber.
func (h *Hub) Deliver(ev events.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients))
	for _, c := range h.clients {
		if c.Wants(ev.Type) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(data); err != nil {
			h.log.Warn("dropping slow stream client",
				zap.String("client_id", c.ID()),
				zap.Uint64("seq", ev.Seq),
				zap.Error(err))
			h.Unregister(c)
			_ = c.Close()
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every subscriber; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
	h.counted(0)
}

func (h *Hub) counted(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// ParseFilter turns a comma separated list of event types or prefixes
// ("ledger.", "settlement.completed") into a predicate. Empty matches all.
func ParseFilter(raw string) func(events.Type) bool {
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return func(events.Type) bool { return true }
	}
	return func(t events.Type) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(string(t), p) {
				return true
			}
		}
		return false
	}
}
