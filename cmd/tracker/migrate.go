package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/job-application-tracker/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tracker schema if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, tracker, err := bootstrap.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := tracker.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		slog.Info("schema_ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
