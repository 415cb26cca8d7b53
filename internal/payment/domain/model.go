package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the webhook delivery ledger keyed by (provider, provider_event_id).
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// allowedFrom lists, per target status, the states a payment may leave to reach it.
var allowedFrom = map[PaymentStatus][]PaymentStatus{
	PaymentStatusSucceeded: {PaymentStatusPending, PaymentStatusFailed},
	PaymentStatusFailed:    {PaymentStatusPending},
	PaymentStatusRefunded:  {PaymentStatusSucceeded},
}

// TransitionSources returns the statuses from which to may be entered.
func TransitionSources(to PaymentStatus) []PaymentStatus {
	return allowedFrom[to]
}

func CanTransition(from, to PaymentStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Payment struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProviderPaymentID string            `json:"provider_payment_id" gorm:"type:text;not null;uniqueIndex"`
	UserID            snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Amount            int64             `json:"amount" gorm:"not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	Status            PaymentStatus     `json:"status" gorm:"type:text;not null"`
	FailureReason     *string           `json:"failure_reason,omitempty"`
	Metadata          datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Outcome describes how a webhook delivery was handled.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)
