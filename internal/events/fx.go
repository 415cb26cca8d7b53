package events

import (
	"context"
	"strings"

	"github.com/smallbiznis/kelas/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher connects to AMQP_URL. Without a broker, or when the broker
// is unreachable at startup, events are dropped by a Noop publisher.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		log.Info("amqp disabled, domain events are not published")
		return NewNoop(log.Named("events"))
	}

	pub, err := NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	if err != nil {
		log.Warn("amqp unavailable, domain events are not published", zap.Error(err))
		return NewNoop(log.Named("events"))
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub
}
