// Package publisher encodes notification events and hands them to the
// message broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
)

// DefaultRoutingPrefix is the first token of every routing key.
const DefaultRoutingPrefix = "ganeti"

// Broker delivers an encoded message on a routing key.
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Publisher turns events into broker messages.
type Publisher struct {
	broker Broker
	prefix string
	logger *slog.Logger
}

// New creates a publisher. An empty prefix selects DefaultRoutingPrefix.
func New(broker Broker, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultRoutingPrefix
	}
	return &Publisher{
		broker: broker,
		prefix: prefix,
		logger: logger,
	}
}

// InstancePrefix returns instance up to, not including, the first "-".
func InstancePrefix(instance string) string {
	prefix, _, _ := strings.Cut(instance, "-")
	return prefix
}

// RoutingKey returns "<prefix>.<instance prefix>.event.op".
func RoutingKey(prefix, instance string) string {
	return prefix + "." + InstancePrefix(instance) + ".event.op"
}

// Encode returns the wire form of ev.
func Encode(ev domain.NotificationEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return body, nil
}

// RoutingKey returns the routing key ev is published on.
func (p *Publisher) RoutingKey(ev domain.NotificationEvent) string {
	return RoutingKey(p.prefix, ev.Instance)
}

// Publish delivers ev. Broker failures are returned as *domain.PublishError.
func (p *Publisher) Publish(ctx context.Context, ev domain.NotificationEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	key := p.RoutingKey(ev)
	p.logger.Debug("Delivering msg",
		slog.String("routing_key", key),
		slog.String("body", string(body)),
	)

	if err := p.broker.Publish(ctx, key, body); err != nil {
		return &domain.PublishError{RoutingKey: key, Err: err}
	}

	return nil
}
