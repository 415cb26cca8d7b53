package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/smallbiznis/kelas/internal/observability/logger"
	"github.com/smallbiznis/kelas/internal/observability/metrics"
	portaldomain "github.com/smallbiznis/kelas/internal/portal/domain"
	subscriptiondomain "github.com/smallbiznis/kelas/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	operationPortalSession      = "portal_session"
	operationCancelSubscription = "cancel_subscription"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Users    subscriptiondomain.Service
	Provider portaldomain.Provider
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	users    subscriptiondomain.Service
	provider portaldomain.Provider
	metrics  *metrics.Metrics
}

func NewService(p Params) portaldomain.Service {
	return &Service{
		log:      p.Log.Named("portal.service"),
		users:    p.Users,
		provider: p.Provider,
		metrics:  p.Metrics,
	}
}

func (s *Service) CreatePortalSession(ctx context.Context, subject, returnURL string) (string, error) {
	returnURL, err := validateReturnURL(returnURL)
	if err != nil {
		return "", err
	}

	user, err := s.users.FindBySubject(ctx, subject)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || !everSubscribed(user) {
		return "", subscriptiondomain.ErrNoActiveSubscription
	}

	sessionURL, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, returnURL)
	s.recordCall(ctx, operationPortalSession, err)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("portal session failed", zap.Error(err))
		return "", ensureProviderErr(err)
	}
	return sessionURL, nil
}

func (s *Service) CancelSubscription(ctx context.Context, subject string) (portaldomain.CancelResult, error) {
	user, err := s.users.FindBySubject(ctx, subject)
	if err != nil {
		return portaldomain.CancelResult{}, err
	}
	if user.SubscriptionID == nil || strings.TrimSpace(*user.SubscriptionID) == "" {
		return portaldomain.CancelResult{}, subscriptiondomain.ErrNoActiveSubscription
	}
	subscriptionID := *user.SubscriptionID
	log := logger.WithContext(ctx, s.log).With(
		zap.String("user_id", user.ID.String()),
		zap.String("subscription_id", subscriptionID),
	)

	err = s.provider.CancelSubscription(ctx, subscriptionID)
	s.recordCall(ctx, operationCancelSubscription, err)
	if err != nil {
		log.Error("provider cancel failed", zap.Error(err))
		return portaldomain.CancelResult{}, ensureProviderErr(err)
	}

	updated, err := s.users.ApplyLocalCancel(ctx, user)
	if err != nil {
		// the provider already canceled; the webhook will converge local state
		log.Error("local cancel failed after provider cancel", zap.Error(err))
		return portaldomain.CancelResult{}, err
	}
	log.Info("subscription canceled")

	return portaldomain.CancelResult{
		Success:      true,
		Message:      "Subscription canceled",
		Subscription: updated.Snapshot(),
	}, nil
}

func (s *Service) recordCall(ctx context.Context, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.RecordProviderCall(ctx, operation, outcome)
}

func everSubscribed(user *subscriptiondomain.User) bool {
	return user.SubscriptionStatus != nil || user.CanceledSubscriptionID != nil
}

func validateReturnURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", portaldomain.ErrInvalidReturnURL
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", portaldomain.ErrInvalidReturnURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", portaldomain.ErrInvalidReturnURL
	}
	return u.String(), nil
}

func ensureProviderErr(err error) error {
	if errors.Is(err, portaldomain.ErrProviderCallFailed) {
		return err
	}
	return errors.Join(portaldomain.ErrProviderCallFailed, err)
}
