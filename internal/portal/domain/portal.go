package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/smallbiznis/kelas/internal/subscription/domain"
)

var (
	ErrProviderCallFailed = errors.New("provider_call_failed")
	ErrInvalidReturnURL   = errors.New("invalid_return_url")
)

// Provider is the payment provider's billing portal and subscription API.
type Provider interface {
	CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type CancelResult struct {
	Success      bool                        `json:"success"`
	Message      string                      `json:"message"`
	Subscription subscriptiondomain.Snapshot `json:"-"`
}

type Service interface {
	// CreatePortalSession returns the provider's redirect URL for subject.
	CreatePortalSession(ctx context.Context, subject, returnURL string) (string, error)
	// CancelSubscription cancels at the provider, then writes CANCELED locally.
	CancelSubscription(ctx context.Context, subject string) (CancelResult, error)
}
