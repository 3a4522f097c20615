package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/job-application-tracker/internal/bootstrap"
	"github.com/kirillkom/job-application-tracker/internal/core/ports"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/export/xlsx"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked applications to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, tracker, err := bootstrap.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		n, err := exportApplications(cmd.Context(), tracker, exportOut)
		if err != nil {
			return err
		}
		slog.Info("export_written", "path", exportOut, "applications", n)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "applications.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}

func exportApplications(ctx context.Context, reader ports.ApplicationReader, path string) (int, error) {
	apps, err := reader.ListApplications(ctx)
	if err != nil {
		return 0, fmt.Errorf("list applications: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	if err := xlsx.WriteApplications(f, apps); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	return len(apps), nil
}
