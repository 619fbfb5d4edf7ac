// Package events publishes domain events to the message broker.
package events

import "context"

// Publisher sends payload, JSON-encoded, to topic under key.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
	Close() error
}

// Noop drops every message. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, interface{}) error { return nil }
func (Noop) Close() error                                             { return nil }
