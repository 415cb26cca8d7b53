package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/kelas/internal/observability/logger"
	"github.com/smallbiznis/kelas/internal/observability/metrics"
	"github.com/smallbiznis/kelas/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	paymentservice "github.com/smallbiznis/kelas/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	metrics    *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		metrics:    p.Metrics,
	}
}

// IngestWebhook verifies, normalizes and processes one delivery. Verification
// and parsing failures return before anything is written.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.OutcomeRejected, paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return paymentdomain.OutcomeRejected, err
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))
	eventType := "unknown"
	outcome, err := s.ingest(ctx, adapter, provider, payload, headers, &eventType)
	s.metrics.RecordWebhookEvent(ctx, provider, eventType, string(outcome))

	fields := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("outcome", string(outcome)),
	}
	switch {
	case err == nil:
		log.Info("webhook handled", fields...)
	case outcome == paymentdomain.OutcomeRejected:
		log.Warn("webhook rejected", append(fields, zap.Error(err))...)
	default:
		log.Error("webhook processing failed", append(fields, zap.Error(err))...)
	}
	return outcome, err
}

func (s *Service) ingest(
	ctx context.Context,
	adapter paymentdomain.PaymentAdapter,
	provider string,
	payload []byte,
	headers http.Header,
	eventType *string,
) (paymentdomain.Outcome, error) {
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return paymentdomain.OutcomeRejected, err
	}

	env, err := adapter.Parse(ctx, payload)
	if err != nil {
		return paymentdomain.OutcomeRejected, err
	}
	env.Provider = provider
	if env.ProviderType != "" {
		*eventType = env.ProviderType
	}
	if env.Ignored() {
		return paymentdomain.OutcomeIgnored, nil
	}

	err = s.paymentSvc.ProcessEvent(ctx, env, payload)
	switch {
	case err == nil:
		return paymentdomain.OutcomeProcessed, nil
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		return paymentdomain.OutcomeDuplicate, nil
	case errors.Is(err, paymentdomain.ErrMalformedPayload):
		return paymentdomain.OutcomeRejected, err
	default:
		return paymentdomain.OutcomeFailed, err
	}
}
