package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/commdir/apiserver/config"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator returns a migrator for the given driver bound to an open connection.
// For sqlite, closing the migrator also closes conn.
func NewMigrator(conn *sql.DB, driver string) (*migrate.Migrate, error) {
	var (
		dbDriver database.Driver
		err      error
	)
	switch driver {
	case config.DriverPostgres, "":
		driver = config.DriverPostgres
		dbDriver, err = postgres.WithInstance(conn, &postgres.Config{})
	case config.DriverSQLite:
		dbDriver, err = sqlite.WithInstance(conn, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init migration driver failed: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations failed: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, driver, dbDriver)
}

// MigrateUp applies all pending migrations. No pending migrations is not an error.
func MigrateUp(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}
