// Package publisher defines the interface for emitting run-completion
// events to external systems, so downstream consumers (indexers, alerting)
// can react to a refreshed skill folder without polling it.
package publisher

import "context"

// Publisher sends one payload to a named topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// NoOp discards events. It is the default when no broker is configured.
type NoOp struct{}

// Publish does nothing and reports an empty message id.
func (NoOp) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
