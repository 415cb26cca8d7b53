package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/kelas/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Equal(t, len(ups), len(downs))
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	_, err := RunMigrations(nil, Options{})
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFrom(config.Config{DBMigrationsTable: " billing_migrations ", DBSchema: "kelas"})
	assert.Equal(t, "billing_migrations", opts.Table)
	assert.Equal(t, "kelas", opts.Schema)
	assert.Equal(t, defaultStatementTimeout, opts.StatementTimeout)

	defaults := OptionsFrom(config.Config{})
	assert.Equal(t, defaultTable, defaults.Table)
	assert.Empty(t, defaults.Schema)
}

func TestInitMigrationCreatesStoreTables(t *testing.T) {
	up, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"users", "payments", "discount_rules", "registrations", "payment_events"} {
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
