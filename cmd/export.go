/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/db"
	"github.com/commdir/apiserver/internal/services"
	"github.com/commdir/apiserver/internal/storage"
	"github.com/commdir/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// exportCmd writes a snapshot of the admin directory to object storage.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the admin directory to object storage",
	Long: `Writes a JSON snapshot of all admin profiles to the configured
object storage bucket (STORAGE_BACKEND=minio|gcs). Password hashes are
never exported.

	commdir export --keep 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")

		snapshots, bucket, closeDB, err := openSnapshots(cmd, true)
		if err != nil {
			return err
		}
		defer closeDB()

		key, err := snapshots.Export(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %s/%s\n", bucket, key)

		if keep > 0 {
			deleted, err := snapshots.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, k := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %s/%s\n", bucket, k)
			}
		}
		return nil
	},
}

var exportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshots, _, closeDB, err := openSnapshots(cmd, false)
		if err != nil {
			return err
		}
		defer closeDB()

		objects, err := snapshots.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
		for _, o := range objects {
			fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.UTC().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var exportShowCmd = &cobra.Command{
	Use:   "show KEY",
	Short: "Print a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshots, _, closeDB, err := openSnapshots(cmd, false)
		if err != nil {
			return err
		}
		defer closeDB()

		snap, err := snapshots.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportListCmd)
	exportCmd.AddCommand(exportShowCmd)

	exportCmd.Flags().Int("keep", 0, "after exporting, keep only the newest N snapshots (0 keeps all)")
}

// openSnapshots wires a SnapshotService. The database is only opened when
// withDB is set, since listing and reading snapshots never touch it.
func openSnapshots(cmd *cobra.Command, withDB bool) (*services.SnapshotService, string, func(), error) {
	cfg := config.LoadConfig()
	logger := newLogger(cfg.LogLevel)
	ctx := cmd.Context()

	objects, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, "", nil, err
	}

	var conn *sql.DB
	closeDB := func() {}
	if withDB {
		conn, err = db.Open(ctx, cfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("open database failed: %w", err)
		}
		closeDB = func() { _ = conn.Close() }
	}

	return services.NewSnapshotService(store.NewAdminRepository(conn), objects, logger), objects.Bucket(), closeDB, nil
}
