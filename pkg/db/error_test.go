package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgconn", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgconn other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: registrations.payment_id (2067)"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKeyErr(tt.err))
		})
	}
}

func TestDialect(t *testing.T) {
	_, err := Dialect(Config{Type: "postgres", Host: "localhost", Port: "5432", Name: "kelas", SSLMode: "disable"})
	require.NoError(t, err)

	_, err = Dialect(Config{Type: "sqlite", Name: ":memory:"})
	require.NoError(t, err)

	// repositories insert with ON CONFLICT, which mysql does not parse
	_, err = Dialect(Config{Type: "mysql"})
	require.Error(t, err)
}
