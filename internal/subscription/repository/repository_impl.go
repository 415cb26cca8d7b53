package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/kelas/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const userColumns = `id, subject, email, plan, subscription_status, subscription_id,
	plan_expires_at, stripe_customer_id, canceled_subscription_id,
	subscription_version, subscription_event_at, created_at, updated_at`

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, u *subscriptiondomain.User) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject) DO NOTHING`,
		u.ID,
		u.Subject,
		u.Email,
		u.Plan,
		u.SubscriptionStatus,
		u.SubscriptionID,
		u.PlanExpiresAt,
		u.StripeCustomerID,
		u.CanceledSubscriptionID,
		u.SubscriptionVersion,
		u.SubscriptionEventAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindBySubject(ctx context.Context, db *gorm.DB, subject string) (*subscriptiondomain.User, error) {
	return r.findOne(ctx, db, `subject = ?`, subject)
}

func (r *repo) FindByCustomerRef(ctx context.Context, db *gorm.DB, customerRef string) (*subscriptiondomain.User, error) {
	return r.findOne(ctx, db, `stripe_customer_id = ?`, customerRef)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*subscriptiondomain.User, error) {
	var item subscriptiondomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM users
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) BindCustomerRef(ctx context.Context, db *gorm.DB, id snowflake.ID, customerRef string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET stripe_customer_id = ?, updated_at = ?
		 WHERE id = ? AND stripe_customer_id IS NULL`,
		customerRef,
		now,
		id,
	).Error
}

func (r *repo) CompareAndSwapState(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	version int64,
	next subscriptiondomain.State,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET plan = ?,
			subscription_status = ?,
			subscription_id = ?,
			plan_expires_at = ?,
			canceled_subscription_id = ?,
			subscription_event_at = ?,
			subscription_version = subscription_version + 1,
			updated_at = ?
		 WHERE id = ? AND subscription_version = ?`,
		next.Plan,
		nullableStatus(next.Status),
		nullableString(next.SubscriptionID),
		next.PlanExpiresAt,
		nullableString(next.CanceledSubscriptionID),
		next.EventAt,
		now,
		id,
		version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullableStatus(v subscriptiondomain.Status) *string {
	if v == subscriptiondomain.StatusNone {
		return nil
	}
	s := string(v)
	return &s
}
