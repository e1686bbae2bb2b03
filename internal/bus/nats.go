// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher sends job lifecycle events. A nil Publisher is not allowed; use
// Nop when no broker is configured.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type nop struct{}

func (nop) PublishJSON(string, any) error { return nil }

// Nop discards every event.
var Nop Publisher = nop{}

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("simple-ocr-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// Connected reports whether the connection to the broker is currently up.
func (c *Client) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// SubscribeJSON delivers each message on subject to handler with a bounded
// context. Wildcard subjects are allowed.
func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, subject string, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, msg.Subject, msg.Data)
	})
}

// Subjects derives the lifecycle subjects from a prefix such as "ocr.jobs".
type Subjects struct {
	Submitted string
	Rejected  string
	All       string
}

func NewSubjects(prefix string) Subjects {
	if prefix == "" {
		prefix = "ocr.jobs"
	}
	return Subjects{
		Submitted: prefix + ".submitted",
		Rejected:  prefix + ".rejected",
		All:       prefix + ".>",
	}
}
