package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/kelas/internal/config"
)

const (
	defaultTable            = "kelas_schema_migrations"
	defaultStatementTimeout = time.Minute
)

// Options selects where the schema version is tracked.
type Options struct {
	Table            string
	Schema           string
	StatementTimeout time.Duration
}

func OptionsFrom(cfg config.Config) Options {
	return Options{
		Table:  strings.TrimSpace(cfg.DBMigrationsTable),
		Schema: strings.TrimSpace(cfg.DBSchema),
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Table == "" {
		o.Table = defaultTable
	}
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = defaultStatementTimeout
	}
	return o
}

// Result is the schema version after a run.
type Result struct {
	Version uint
	Changed bool
}

// RunMigrations applies the embedded users, payments, registrations and
// payment_events schema. It leaves db open.
func RunMigrations(db *sql.DB, opts Options) (Result, error) {
	if db == nil {
		return Result{}, errors.New("migration database handle is required")
	}
	opts = opts.withDefaults()

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return Result{}, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return Result{}, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:  opts.Table,
		SchemaName:       opts.Schema,
		StatementTimeout: opts.StatementTimeout,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return Result{}, fmt.Errorf("create migrator: %w", err)
	}

	changed := true
	if err := migrator.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return Result{}, fmt.Errorf("apply migrations: %w", err)
		}
		changed = false
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return Result{}, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return Result{}, fmt.Errorf("schema version %d is dirty in %s", version, opts.Table)
	}
	return Result{Version: version, Changed: changed}, nil
}
