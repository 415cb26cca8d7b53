package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error

	FindPayment(ctx context.Context, db *gorm.DB, providerPaymentID string) (*Payment, error)
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	// TransitionStatus moves a payment to status when its current status is one of from.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []PaymentStatus, to PaymentStatus, failureReason *string, now time.Time) (bool, error)
}
