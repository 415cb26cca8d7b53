// Package stripe calls the Stripe billing portal and subscription APIs.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/kelas/internal/config"
	portaldomain "github.com/smallbiznis/kelas/internal/portal/domain"
	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

type Provider struct {
	api *client.API
	log *zap.Logger
}

// New builds a client whose calls are bounded by STRIPE_TIMEOUT_MS and never
// retried; retry belongs to the caller.
func New(cfg config.Config, log *zap.Logger) *Provider {
	timeout := time.Duration(cfg.Stripe.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &leveledLogger{log: log.Named("portal.stripe")},
	}
	if u := strings.TrimRight(strings.TrimSpace(cfg.Stripe.APIURL), "/"); u != "" {
		backendCfg.URL = stripeapi.String(u)
	}

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)
	api := client.New(strings.TrimSpace(cfg.Stripe.SecretKey), &stripeapi.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &Provider{api: api, log: log.Named("portal.stripe")}
}

func (p *Provider) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	params := &stripeapi.BillingPortalSessionParams{
		Customer:  stripeapi.String(customerRef),
		ReturnURL: stripeapi.String(returnURL),
	}
	params.Context = ctx

	session, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", providerError("create portal session", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", fmt.Errorf("%w: create portal session: empty url", portaldomain.ErrProviderCallFailed)
	}
	return session.URL, nil
}

func (p *Provider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripeapi.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := p.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return providerError("cancel subscription", err)
	}
	return nil
}

func providerError(operation string, err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %s (status %d, code %s)",
			portaldomain.ErrProviderCallFailed, operation, stripeErr.Msg, stripeErr.HTTPStatusCode, stripeErr.Code)
	}
	return fmt.Errorf("%w: %s: %v", portaldomain.ErrProviderCallFailed, operation, err)
}

// leveledLogger routes stripe-go client logs through zap.
type leveledLogger struct {
	log *zap.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}
