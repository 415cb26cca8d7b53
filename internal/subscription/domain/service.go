package domain

import (
	"context"

	eventdomain "github.com/smallbiznis/kelas/internal/billingevent/domain"
)

type Service interface {
	// EnsureUser returns the user for subject, creating a FREE record on first contact.
	EnsureUser(ctx context.Context, subject string) (*User, error)
	FindBySubject(ctx context.Context, subject string) (*User, error)
	// ResolveUser finds the owner of a provider event by customer ref, then by subject.
	ResolveUser(ctx context.Context, customerRef, subject string) (*User, error)
	Current(ctx context.Context, subject string) (Snapshot, error)
	Apply(ctx context.Context, env eventdomain.Envelope) error
	// ApplyLocalCancel cancels the subscription user held when it was read,
	// before the provider call. It is a no-op when a webhook got there first.
	ApplyLocalCancel(ctx context.Context, user *User) (*User, error)
}
