// Package events publishes intent transition events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Publisher sends transition events to subscribers
type Publisher interface {
	Publish(ctx context.Context, event models.TransitionEvent) error
	Close()
}

// Observer adapts a publisher to a ledger observer. Publish failures are
// logged and counted, they never fail the transition that produced them.
func Observer(p Publisher, log logger.Logger) ledger.Observer {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return func(ctx context.Context, event models.TransitionEvent) {
		if err := p.Publish(ctx, event); err != nil {
			metrics.EventsPublished.WithLabelValues("failed").Inc()
			log.Error("Failed to publish transition %s -> %s of intent %s: %v", event.From, event.To, event.IntentID, err)
			return
		}
		metrics.EventsPublished.WithLabelValues("success").Inc()
	}
}

// Subject returns the subject events for a target state are published on
func Subject(prefix string, state models.IntentState) string {
	return prefix + "." + strings.ToLower(string(state))
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.TransitionEvent) error { return nil }
func (NoopPublisher) Close()                                                {}

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events on "<prefix>.<state>" subjects
type NATSPublisher struct {
	conn   conn
	prefix string
}

var _ Publisher = (*NATSPublisher)(nil)

// Connect dials the NATS server and keeps reconnecting in the background
func Connect(url, prefix string, log logger.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	nc, err := nats.Connect(url,
		nats.Name("railsettle"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Notice("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(c conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: c, prefix: prefix}
}

func (p *NATSPublisher) Publish(_ context.Context, event models.TransitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.conn.Publish(Subject(p.prefix, event.To), data)
}

// Close flushes pending events and closes the connection
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}
