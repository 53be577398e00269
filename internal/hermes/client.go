// Package hermes carries vizchat events over NATS.
package hermes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	clientName   = "vizchat"
	drainTimeout = 5 * time.Second
)

type Client struct {
	nc     *nats.Conn
	closed chan struct{}
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	c := &Client{closed: make(chan struct{}), logger: logger}

	nc, err := nats.Connect(url, c.options(token)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	c.nc = nc
	return c, nil
}

func (c *Client) options(token string) []nats.Option {
	opts := []nats.Option{
		nats.Name(clientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(c.closed)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

// Publish encodes data as JSON and sends it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	if err := c.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe hands raw payloads on subject to handler until Close.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	_, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Close drains subscriptions and buffered publishes, then waits for the
// connection to shut.
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.nc.Close()
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.logger.Warn("nats close timed out")
	}
}
