// Package testdb opens isolated in-memory SQLite databases carrying the
// reconciliation schema.
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		subject TEXT NOT NULL,
		email TEXT,
		plan TEXT NOT NULL DEFAULT 'FREE',
		subscription_status TEXT,
		subscription_id TEXT,
		plan_expires_at DATETIME,
		stripe_customer_id TEXT,
		canceled_subscription_id TEXT,
		subscription_version INTEGER NOT NULL DEFAULT 0,
		subscription_event_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_users_subject ON users (subject)`,
	`CREATE UNIQUE INDEX ux_users_stripe_customer_id ON users (stripe_customer_id) WHERE stripe_customer_id IS NOT NULL`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		provider_payment_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_reason TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payments_provider_payment_id ON payments (provider_payment_id)`,
	`CREATE TABLE discount_rules (
		id INTEGER PRIMARY KEY,
		min_courses INTEGER NOT NULL,
		discount_percent REAL,
		discount_amount INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE registrations (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		course_id TEXT NOT NULL,
		payment_id INTEGER,
		amount INTEGER NOT NULL DEFAULT 0,
		currency TEXT,
		discount_rule_id INTEGER,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_registrations_payment_course ON registrations (payment_id, course_id)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events (provider, provider_event_id)`,
}

// Open returns a fresh database with every table created. The pool holds a
// single connection so concurrent callers serialize like a locking store.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for test id generation.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
