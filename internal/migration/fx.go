package migration

import (
	"github.com/smallbiznis/kelas/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Provide(OptionsFrom),
	fx.Invoke(runAtStartup),
)

func runAtStartup(conn *gorm.DB, cfg config.Config, opts Options, log *zap.Logger) error {
	log = log.Named("migration")
	if !cfg.DBAutoMigrate {
		return nil
	}
	if cfg.DBType != "postgres" {
		log.Warn("embedded migrations target postgres, skipping", zap.String("database_type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	res, err := RunMigrations(sqlDB, opts)
	if err != nil {
		return err
	}
	log.Info("schema ready",
		zap.Uint("version", res.Version),
		zap.Bool("changed", res.Changed),
		zap.String("table", opts.Table),
	)
	return nil
}
