package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]Registration, error)
	ListByPaymentRef(ctx context.Context, db *gorm.DB, userID snowflake.ID, paymentRef string) ([]Registration, error)
	ListRecent(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time, limit int) ([]Registration, error)
	// InsertBatch fails on any unique violation; callers run it inside a transaction.
	InsertBatch(ctx context.Context, db *gorm.DB, items []Registration) error
	ListActiveDiscountRules(ctx context.Context, db *gorm.DB) ([]DiscountRule, error)
}
