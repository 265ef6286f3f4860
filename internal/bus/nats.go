// Package bus publishes task status changes to NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"alttext/internal/services"
)

// DefaultSubject is the subject status events are published on.
const DefaultSubject = "alttext.batch.status"

type Client struct {
	nc      *nats.Conn
	subject string
}

func Connect(url, subject string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("alttext"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return NewClient(nc, subject), nil
}

// NewClient wraps an established connection.
func NewClient(nc *nats.Conn, subject string) *Client {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Client{nc: nc, subject: subject}
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Subject() string { return c.subject }

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// PublishStatus publishes event on the configured subject.
func (c *Client) PublishStatus(_ context.Context, event services.StatusEvent) error {
	return c.PublishJSON(c.subject, event)
}

var _ services.EventPublisher = (*Client)(nil)
