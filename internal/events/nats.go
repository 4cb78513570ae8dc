package events

import (
	"context"
	"encoding/json"
	"fmt"

	nats "github.com/nats-io/nats.go"
)

// NATSPublisher publishes locker events as JSON on a NATS subject so that
// external subscribers (dashboards, the notification service) can listen
// without coupling to this process.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher returns a publisher on the given connection and subject.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Connect dials the NATS server and returns a publisher on subject.
func Connect(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("lockerd"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATSPublisher(conn, subject), nil
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, raw); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close drains the underlying connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
