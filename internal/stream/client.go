package stream

import (
	"sync"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is a single WebSocket connection.
type Client struct {
	id        string
	conn      *websocket.Conn
	hub       *Hub
	filter    func(events.Type) bool
	send      chan []byte
	closed    bool
	mu        sync.RWMutex
	closeOnce sync.Once
	log       *zap.Logger
}

func NewClient(conn *websocket.Conn, hub *Hub, filter func(events.Type) bool) *Client {
	if filter == nil {
		filter = ParseFilter("")
	}
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		hub:    hub,
		filter: filter,
		send:   make(chan []byte, sendBuffer),
		log:    hub.log,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Wants(t events.Type) bool { return c.filter(t) }

// Send queues data without blocking; a full buffer counts as a closed client.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientClosed
	}
}

// Close is safe to call from several goroutines.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		closeErr = c.conn.Close()
	})
	return closeErr
}

// Backfill queues retained events the client missed before registering.
func (c *Client) Backfill(evs []events.Event) {
	for _, ev := range evs {
		if !c.Wants(ev.Type) {
			continue
		}
		data, err := ev.ToJSON()
		if err != nil {
			continue
		}
		if err := c.Send(data); err != nil {
			return
		}
	}
}

// ReadPump discards inbound frames and keeps the read deadline fresh.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("stream unexpected close", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("stream write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
