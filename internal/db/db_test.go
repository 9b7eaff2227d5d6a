package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commdir/apiserver/config"
)

func TestPostgresURL(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "commdir",
		Password: "p@ss",
		DBName:   "commdir_db",
	}}

	assert.Equal(t, "postgres://commdir:p%40ss@db:5433/commdir_db?sslmode=disable", PostgresURL(cfg))

	cfg.Database.UseSSL = true
	assert.Contains(t, PostgresURL(cfg), "sslmode=require")
}

func TestDSNRejectsUnknownDriver(t *testing.T) {
	_, _, err := DSN(config.Config{Database: config.DatabaseConfig{Driver: "oracle"}})
	assert.Error(t, err)
}

func TestSQLiteOpenAndMigrate(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{Driver: config.DriverSQLite}}

	conn, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m, err := NewMigrator(conn, config.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, MigrateUp(m))
	require.NoError(t, MigrateUp(m), "second run reports no change")

	var name string
	err = conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'admins'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "admins", name)
}
