package publish

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

type natsPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to url, or to the local default server when url
// is empty.
func NewNATSPublisher(url string, opts ...nats.Option) (Publisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	opts = append([]nats.Option{nats.Name("bindery-extension-agent")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &natsPublisher{nc: nc}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.nc.Publish(subject, payload)
}

// Close flushes pending events before closing the connection.
func (p *natsPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	if err != nil {
		p.nc.Close()
	}
	return err
}
