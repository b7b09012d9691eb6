// Package messaging publishes committed events to NATS subjects.
package messaging

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("nats: not connected")

type Config struct {
	URL            string
	Name           string
	Prefix         string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// Client wraps a NATS connection and acts as an events.Sink publishing each
// event on "<prefix>.<type>".
type Client struct {
	conn       *nats.Conn
	prefix     string
	log        *zap.Logger
	mu         sync.RWMutex
	subs       map[string]*nats.Subscription
	reconnects atomic.Int64
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "settlement"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	c := &Client{
		prefix: strings.TrimSuffix(cfg.Prefix, "."),
		log:    log,
		subs:   make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.reconnects.Add(1)
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Name() string { return "nats" }

// Subject returns the subject an event type is published on.
func (c *Client) Subject(t events.Type) string {
	if c.prefix == "" {
		return string(t)
	}
	return c.prefix + "." + string(t)
}

// Deliver hands the event to the connection's outbound buffer.
func (c *Client) Deliver(ev events.Event) error {
	if c.conn == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}
	payload, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(c.Subject(ev.Type))
	msg.Data = payload
	msg.Header.Set("Nats-Msg-Id", ev.ID.String())
	msg.Header.Set("Event-Seq", fmt.Sprintf("%d", ev.Seq))
	return c.conn.PublishMsg(msg)
}

// Subscribe registers handler on subject; wildcards follow NATS rules.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs[subject] = sub
	return nil
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func (c *Client) Reconnects() int64 {
	return c.reconnects.Load()
}

// Close drains subscriptions and pending publishes.
func (c *Client) Close() error {
	c.mu.Lock()
	for subject, sub := range c.subs {
		_ = sub.Unsubscribe()
		delete(c.subs, subject)
	}
	c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
