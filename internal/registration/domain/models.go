package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCanceled  Status = "CANCELED"
)

// Registration is one course enrollment. At most one exists per (payment, course).
type Registration struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID  `json:"userId" gorm:"not null;index"`
	CourseID       string        `json:"courseId" gorm:"type:text;not null"`
	PaymentID      *snowflake.ID `json:"-"`
	PaymentRef     string        `json:"paymentIntentId,omitempty" gorm:"->"`
	Amount         int64         `json:"amount" gorm:"not null"`
	Currency       *string       `json:"currency,omitempty" gorm:"type:text"`
	DiscountRuleID *snowflake.ID `json:"discountRuleId,omitempty"`
	Status         Status        `json:"status" gorm:"type:text;not null"`
	CreatedAt      time.Time     `json:"createdAt" gorm:"not null"`
}

func (Registration) TableName() string { return "registrations" }

// DiscountRule carries exactly one of DiscountPercent or DiscountAmount.
// DiscountAmount is in minor units and applies to the whole bundle.
type DiscountRule struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	MinCourses      int          `json:"min_courses" gorm:"not null"`
	DiscountPercent *float64     `json:"discount_percent,omitempty"`
	DiscountAmount  *int64       `json:"discount_amount,omitempty"`
	IsActive        bool         `json:"is_active" gorm:"not null"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
}

func (DiscountRule) TableName() string { return "discount_rules" }

// ReconcileInput describes a succeeded payment and the courses it bought.
type ReconcileInput struct {
	UserID     snowflake.ID
	PaymentID  snowflake.ID
	PaymentRef string
	Amount     int64
	Currency   string
	Courses    []string
}

type ReconcileResult struct {
	Registrations []Registration
	// Created is false when an earlier delivery already reconciled the payment.
	Created bool
}

// Confirmed is published once per freshly reconciled payment.
type Confirmed struct {
	UserID        snowflake.ID   `json:"user_id"`
	PaymentRef    string         `json:"payment_ref"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Registrations []Registration `json:"registrations"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
