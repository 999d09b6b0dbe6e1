// Package bus publishes domain events to NATS JetStream for downstream consumers.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Proton-105/clicker-social/pkg/config"
)

// ErrNotConnected is returned by operations on a client that has no live connection.
var ErrNotConnected = errors.New("bus: not connected to NATS JetStream")

// Client is a JetStream publisher bound to one stream and subject prefix.
type Client struct {
	cfg config.NATSConfig
	log *slog.Logger

	mu sync.RWMutex
	nc *nats.Conn
	js nats.JetStreamContext

	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

func New(cfg config.NATSConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:                  cfg,
		log:                  log,
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: 10,
	}
}

// Connect establishes the connection and the JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("clicker-social"),
		nats.MaxReconnects(c.maxReconnectAttempts),
		nats.ReconnectWait(c.reconnectDelay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.log.Error("nats disconnected", slog.Any("error", err))
				return
			}
			c.log.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.log.Info("nats reconnected")
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc = nc
	c.js = js
	c.mu.Unlock()

	c.log.Info("connected to NATS with JetStream", slog.String("url", c.cfg.URL))
	return nil
}

// EnsureStream creates the configured stream when it does not exist yet.
func (c *Client) EnsureStream() error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return ErrNotConnected
	}

	if _, err := js.StreamInfo(c.cfg.Stream); err == nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:        c.cfg.Stream,
		Subjects:    []string{c.cfg.Subject + ".>"},
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Description: "player social events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.cfg.Stream, err)
	}

	c.log.Info("created JetStream stream", slog.String("stream", c.cfg.Stream), slog.String("subjects", c.cfg.Subject+".>"))
	return nil
}

// Subject joins the configured prefix with the event path, e.g. "notifications.friend_request".
func (c *Client) Subject(parts ...string) string {
	return strings.Join(append([]string{c.cfg.Subject}, parts...), ".")
}

// Publish sends data to subject and waits for the JetStream ack.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return ErrNotConnected
	}

	if _, err := js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	c.log.Debug("published message to NATS", slog.String("subject", subject), slog.Int("size", len(data)))
	return nil
}

// HealthCheck reports whether the connection is up.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && c.nc.IsConnected()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
	c.nc = nil
	c.js = nil
	c.log.Info("nats connection closed")
	return nil
}
