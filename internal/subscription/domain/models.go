// Package domain contains the cached subscription state carried on users.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanBasic   Plan = "BASIC"
	PlanPremium Plan = "PREMIUM"
)

func ParsePlan(raw string) (Plan, bool) {
	switch Plan(raw) {
	case PlanFree, PlanBasic, PlanPremium:
		return Plan(raw), true
	default:
		return "", false
	}
}

// Status is the local subscription status. The empty value means none.
type Status string

const (
	StatusNone     Status = ""
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
)

func (s Status) String() string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}

// User is the identity-provider subject plus its subscription cache.
type User struct {
	ID                     snowflake.ID `json:"id" gorm:"primaryKey"`
	Subject                string       `json:"subject" gorm:"type:text;not null;uniqueIndex"`
	Email                  *string      `json:"email,omitempty" gorm:"type:text"`
	Plan                   Plan         `json:"plan" gorm:"type:text;not null"`
	SubscriptionStatus     *Status      `json:"subscription_status" gorm:"type:text"`
	SubscriptionID         *string      `json:"subscription_id" gorm:"type:text"`
	PlanExpiresAt          *time.Time   `json:"plan_expires_at"`
	StripeCustomerID       *string      `json:"stripe_customer_id" gorm:"type:text"`
	CanceledSubscriptionID *string      `json:"-" gorm:"type:text"`
	SubscriptionVersion    int64        `json:"-" gorm:"not null"`
	SubscriptionEventAt    *time.Time   `json:"-"`
	CreatedAt              time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time    `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// State is the portion of User the state machine reads and writes.
type State struct {
	Plan                   Plan
	Status                 Status
	SubscriptionID         string
	PlanExpiresAt          *time.Time
	CanceledSubscriptionID string
	EventAt                *time.Time
}

func (u User) State() State {
	state := State{
		Plan:          u.Plan,
		PlanExpiresAt: u.PlanExpiresAt,
		EventAt:       u.SubscriptionEventAt,
	}
	if state.Plan == "" {
		state.Plan = PlanFree
	}
	if u.SubscriptionStatus != nil {
		state.Status = *u.SubscriptionStatus
	}
	if u.SubscriptionID != nil {
		state.SubscriptionID = *u.SubscriptionID
	}
	if u.CanceledSubscriptionID != nil {
		state.CanceledSubscriptionID = *u.CanceledSubscriptionID
	}
	return state
}

// Snapshot is the read model returned to callers.
type Snapshot struct {
	Plan               Plan       `json:"plan"`
	SubscriptionStatus *Status    `json:"subscriptionStatus"`
	SubscriptionID     *string    `json:"subscriptionId"`
	PlanExpiresAt      *time.Time `json:"planExpiresAt"`
	StripeCustomerID   *string    `json:"stripeCustomerId"`
}

func (u User) Snapshot() Snapshot {
	plan := u.Plan
	if plan == "" {
		plan = PlanFree
	}
	return Snapshot{
		Plan:               plan,
		SubscriptionStatus: u.SubscriptionStatus,
		SubscriptionID:     u.SubscriptionID,
		PlanExpiresAt:      u.PlanExpiresAt,
		StripeCustomerID:   u.StripeCustomerID,
	}
}

// Change is published after a transition is persisted.
type Change struct {
	UserID         snowflake.ID `json:"user_id"`
	Subject        string       `json:"subject"`
	From           string       `json:"from"`
	To             string       `json:"to"`
	Plan           Plan         `json:"plan"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	Source         string       `json:"source"`
	OccurredAt     time.Time    `json:"occurred_at"`
}
