package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kelas/internal/registration/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const registrationSelect = `SELECT r.id, r.user_id, r.course_id, r.payment_id,
	COALESCE(p.provider_payment_id, '') AS payment_ref,
	r.amount, r.currency, r.discount_rule_id, r.status, r.created_at
	FROM registrations r
	LEFT JOIN payments p ON p.id = r.payment_id`

func (r *repo) ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.Registration, error) {
	var items []domain.Registration
	err := db.WithContext(ctx).Raw(
		registrationSelect+`
		 WHERE r.payment_id = ?
		 ORDER BY r.id ASC`,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByPaymentRef(ctx context.Context, db *gorm.DB, userID snowflake.ID, paymentRef string) ([]domain.Registration, error) {
	var items []domain.Registration
	err := db.WithContext(ctx).Raw(
		registrationSelect+`
		 WHERE p.provider_payment_id = ? AND r.user_id = ? AND r.status = ?
		 ORDER BY r.id ASC`,
		paymentRef,
		userID,
		domain.StatusConfirmed,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time, limit int) ([]domain.Registration, error) {
	var items []domain.Registration
	err := db.WithContext(ctx).Raw(
		registrationSelect+`
		 WHERE r.user_id = ? AND r.created_at >= ?
		 ORDER BY r.created_at DESC, r.id DESC
		 LIMIT ?`,
		userID,
		since,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, items []domain.Registration) error {
	for _, item := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO registrations (
				id, user_id, course_id, payment_id, amount,
				currency, discount_rule_id, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.UserID,
			item.CourseID,
			item.PaymentID,
			item.Amount,
			item.Currency,
			item.DiscountRuleID,
			item.Status,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListActiveDiscountRules(ctx context.Context, db *gorm.DB) ([]domain.DiscountRule, error) {
	var items []domain.DiscountRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, min_courses, discount_percent, discount_amount, is_active, created_at
		 FROM discount_rules
		 WHERE is_active = ?
		 ORDER BY min_courses ASC, id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
