package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertUser inserts u unless its subject exists; it reports whether a row was written.
	InsertUser(ctx context.Context, db *gorm.DB, u *User) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindBySubject(ctx context.Context, db *gorm.DB, subject string) (*User, error)
	FindByCustomerRef(ctx context.Context, db *gorm.DB, customerRef string) (*User, error)
	// BindCustomerRef sets stripe_customer_id only when it is still unset.
	BindCustomerRef(ctx context.Context, db *gorm.DB, id snowflake.ID, customerRef string, now time.Time) error
	// CompareAndSwapState writes next when subscription_version still equals version.
	CompareAndSwapState(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, next State, now time.Time) (bool, error)
}
