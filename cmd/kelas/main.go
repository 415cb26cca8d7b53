package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kelas/internal/auth"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/config"
	"github.com/smallbiznis/kelas/internal/events"
	"github.com/smallbiznis/kelas/internal/migration"
	"github.com/smallbiznis/kelas/internal/observability"
	"github.com/smallbiznis/kelas/internal/payment"
	"github.com/smallbiznis/kelas/internal/portal"
	"github.com/smallbiznis/kelas/internal/ratelimit"
	"github.com/smallbiznis/kelas/internal/registration"
	"github.com/smallbiznis/kelas/internal/server"
	"github.com/smallbiznis/kelas/internal/subscription"
	"github.com/smallbiznis/kelas/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		events.Module,

		// Functional Domains
		auth.Module,
		subscription.Module,
		registration.Module,
		payment.Module,
		portal.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNodeID)
}
