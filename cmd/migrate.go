/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/db"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = migrator.Close()
		}()

		return db.MigrateUp(migrator)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = migrator.Close()
		}()

		if err := migrator.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				return nil
			}
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func openMigrator(cmd *cobra.Command) (*migrate.Migrate, error) {
	cfg := config.LoadConfig()

	conn, err := db.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	migrator, err := db.NewMigrator(conn, cfg.Database.Driver)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return migrator, nil
}
