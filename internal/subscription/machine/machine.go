// Package machine holds the pure subscription transition function. Callers
// persist the returned state with a compare-and-set on the user version.
package machine

import (
	"time"

	"github.com/smallbiznis/kelas/internal/subscription/domain"
)

type InputKind int

const (
	InputUpdated InputKind = iota + 1
	InputCanceled
	InputLocalCancel
)

type Input struct {
	Kind InputKind
	// Status is StatusActive or StatusPastDue for InputUpdated.
	Status         domain.Status
	Plan           domain.Plan
	// SubscriptionID is the id the provider was asked to cancel for InputLocalCancel.
	SubscriptionID string
	PeriodEnd      *time.Time
	At             time.Time
}

type Decision string

const (
	DecisionApply                Decision = "apply"
	DecisionStale                Decision = "stale"
	DecisionUnchanged            Decision = "unchanged"
	DecisionCanceledSubscription Decision = "canceled_subscription"
	DecisionOtherSubscription    Decision = "other_subscription"
)

type Result struct {
	Next     domain.State
	Decision Decision
}

func (r Result) Applied() bool {
	return r.Decision == DecisionApply
}

// Transition computes the next state for in. Events older than the last
// applied one are stale, and no event may reactivate a canceled subscription id.
func Transition(cur domain.State, in Input) (Result, error) {
	if in.Kind != InputLocalCancel && cur.EventAt != nil && in.At.Before(*cur.EventAt) {
		return Result{Next: cur, Decision: DecisionStale}, nil
	}

	switch in.Kind {
	case InputUpdated:
		return updated(cur, in)
	case InputCanceled:
		return canceled(cur, in.SubscriptionID, timePtr(in.At)), nil
	case InputLocalCancel:
		return localCancel(cur, in.SubscriptionID)
	default:
		return Result{Next: cur, Decision: DecisionUnchanged}, nil
	}
}

func updated(cur domain.State, in Input) (Result, error) {
	if in.SubscriptionID != "" && in.SubscriptionID == cur.CanceledSubscriptionID {
		return Result{Next: cur, Decision: DecisionCanceledSubscription}, nil
	}

	next := cur
	next.SubscriptionID = in.SubscriptionID
	next.EventAt = timePtr(in.At)

	switch in.Status {
	case domain.StatusActive:
		if _, ok := domain.ParsePlan(string(in.Plan)); !ok {
			return Result{Next: cur}, domain.ErrInvalidPlan
		}
		next.Status = domain.StatusActive
		next.Plan = in.Plan
		next.PlanExpiresAt = in.PeriodEnd
	case domain.StatusPastDue:
		// access is kept; revocation belongs to the access-control policy
		next.Status = domain.StatusPastDue
		if in.PeriodEnd != nil {
			next.PlanExpiresAt = in.PeriodEnd
		}
	default:
		return Result{Next: cur, Decision: DecisionUnchanged}, nil
	}

	if sameState(cur, next) {
		return Result{Next: cur, Decision: DecisionUnchanged}, nil
	}
	return Result{Next: next, Decision: DecisionApply}, nil
}

// localCancel cancels subscriptionID, the id the provider was asked to
// cancel. The provider's ordering clock is left as is.
func localCancel(cur domain.State, subscriptionID string) (Result, error) {
	if subscriptionID != "" && subscriptionID == cur.CanceledSubscriptionID {
		return Result{Next: cur, Decision: DecisionUnchanged}, nil
	}
	if cur.SubscriptionID == "" {
		return Result{Next: cur}, domain.ErrNoActiveSubscription
	}
	if subscriptionID != "" && subscriptionID != cur.SubscriptionID {
		return Result{Next: cur, Decision: DecisionOtherSubscription}, nil
	}
	return canceled(cur, cur.SubscriptionID, cur.EventAt), nil
}

func canceled(cur domain.State, subscriptionID string, at *time.Time) Result {
	if cur.Status == domain.StatusCanceled &&
		(subscriptionID == "" || subscriptionID == cur.CanceledSubscriptionID) {
		return Result{Next: cur, Decision: DecisionUnchanged}
	}
	if subscriptionID != "" && cur.SubscriptionID != "" && subscriptionID != cur.SubscriptionID {
		return Result{Next: cur, Decision: DecisionOtherSubscription}
	}
	if subscriptionID == "" {
		subscriptionID = cur.SubscriptionID
	}

	next := cur
	next.EventAt = at
	next.CanceledSubscriptionID = subscriptionID
	if cur.Status == domain.StatusNone {
		// tombstone only, so a late activation of this id is refused
		if subscriptionID == "" || subscriptionID == cur.CanceledSubscriptionID {
			return Result{Next: cur, Decision: DecisionUnchanged}
		}
		return Result{Next: next, Decision: DecisionApply}
	}

	next.Plan = domain.PlanFree
	next.Status = domain.StatusCanceled
	next.SubscriptionID = ""
	next.PlanExpiresAt = nil
	return Result{Next: next, Decision: DecisionApply}
}

func sameState(a, b domain.State) bool {
	return a.Plan == b.Plan &&
		a.Status == b.Status &&
		a.SubscriptionID == b.SubscriptionID &&
		a.CanceledSubscriptionID == b.CanceledSubscriptionID &&
		sameTime(a.PlanExpiresAt, b.PlanExpiresAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
