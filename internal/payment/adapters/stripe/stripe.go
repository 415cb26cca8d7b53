package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/kelas/internal/config"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	providerName    = "stripe"
	signatureHeader = "Stripe-Signature"
)

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 300 * time.Second

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	plans         *config.PlanCatalogHolder
}

func New(cfg config.Config, plans *config.PlanCatalogHolder) (*Adapter, error) {
	secret := strings.TrimSpace(cfg.Stripe.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	tolerance := time.Duration(cfg.Stripe.WebhookTolerance) * time.Second
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Adapter{
		webhookSecret: secret,
		tolerance:     tolerance,
		plans:         plans,
	}, nil
}

func (a *Adapter) Provider() string {
	return providerName
}

// Verify checks the Stripe-Signature header over the raw body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return paymentdomain.ErrInvalidSignature
	default:
		return errors.Join(paymentdomain.ErrInvalidSignature, err)
	}
}
