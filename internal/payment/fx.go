package payment

import (
	"errors"

	"github.com/smallbiznis/kelas/internal/config"
	"github.com/smallbiznis/kelas/internal/payment/adapters"
	"github.com/smallbiznis/kelas/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	"github.com/smallbiznis/kelas/internal/payment/repository"
	paymentservice "github.com/smallbiznis/kelas/internal/payment/service"
	"github.com/smallbiznis/kelas/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

// NewRegistry registers the providers that have webhook secrets configured.
func NewRegistry(cfg config.Config, plans *config.PlanCatalogHolder, log *zap.Logger) (*adapters.Registry, error) {
	var registered []paymentdomain.PaymentAdapter

	stripeAdapter, err := stripe.New(cfg, plans)
	switch {
	case err == nil:
		registered = append(registered, stripeAdapter)
	case errors.Is(err, paymentdomain.ErrInvalidConfig) && !cfg.IsProduction():
		log.Warn("stripe webhook secret missing, stripe webhooks are disabled")
	default:
		return nil, err
	}

	return adapters.NewRegistry(registered...), nil
}
