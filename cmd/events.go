/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/events"
	"github.com/commdir/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect admin account events",
}

// eventsTailCmd prints account events as JSON lines until interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print admin account events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.MQ.Backend == config.BackendNone || cfg.MQ.Backend == "" {
			return errors.New("MQ_BACKEND is not configured")
		}
		logger := newLogger(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		logger.Info("tailing admin events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)

		enc := json.NewEncoder(cmd.OutOrStdout())
		err = events.Consume(ctx, queue, cfg.MQ.Channel, func(_ context.Context, e events.AccountEvent) error {
			return enc.Encode(e)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
