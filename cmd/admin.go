/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/internal/db"
	"github.com/commdir/apiserver/internal/events"
	"github.com/commdir/apiserver/internal/mq"
	"github.com/commdir/apiserver/internal/roles"
	"github.com/commdir/apiserver/internal/services"
	"github.com/commdir/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// adminCmd groups account bootstrap commands.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts from the command line",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	Long: `Creates an admin account directly in the database. Useful for
bootstrapping the first admin when REGISTRATION_OPEN=false.

	commdir admin create --username alice --email a@x.com --password secret1 --role admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		roleNames, _ := cmd.Flags().GetStringSlice("role")

		cfg := config.LoadConfig()
		if err := cfg.Auth.ValidateHashCost(); err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)
		ctx := cmd.Context()

		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database failed: %w", err)
		}
		defer conn.Close()

		queue, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		svc := services.NewAdminService(
			store.NewAdminRepository(conn),
			auth.NewBcryptHasher(cfg.Auth.HashCost),
			events.NewPublisher(queue, cfg.MQ.Channel),
			logger,
		)

		admin, err := svc.Create(ctx, services.CreateAdminInput{
			Username: username,
			Email:    email,
			Password: password,
			Role:     roles.List(roleNames...),
		})
		if err != nil {
			if errors.Is(err, services.ErrDuplicateEmail) {
				return fmt.Errorf("an admin with email %s already exists", email)
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created admin %d (%s) roles=%v\n", admin.ID, admin.Email, []string(admin.Roles))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().String("username", "", "display name")
	adminCreateCmd.Flags().String("email", "", "login email")
	adminCreateCmd.Flags().String("password", "", "initial password")
	adminCreateCmd.Flags().StringSlice("role", nil, "role to grant (repeatable)")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
}
