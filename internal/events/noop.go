package events

import (
	"context"

	"go.uber.org/zap"
)

// Noop drops events. It is used when no broker is configured.
type Noop struct {
	log *zap.Logger
}

func NewNoop(log *zap.Logger) *Noop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Noop{log: log}
}

func (n *Noop) Publish(_ context.Context, routingKey string, _ any) error {
	n.log.Debug("event publish skipped", zap.String("routing_key", routingKey))
	return nil
}

func (n *Noop) Close() error { return nil }
