package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/job-application-tracker/internal/bootstrap"
	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

var runLimit int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one fetch, classify and reconcile pass inline",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := runLimit
		if !cmd.Flags().Changed("limit") {
			limit = cfg.FetchLimit
		}

		app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Service: "tracker"})
		if err != nil {
			return err
		}
		defer app.Close()

		run, err := app.Runs.RunNow(cmd.Context(), limit)
		if run != nil {
			if printErr := printRun(cmd.OutOrStdout(), run); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 20, "maximum number of messages to fetch (defaults to FETCH_LIMIT)")
	rootCmd.AddCommand(runCmd)
}

func printRun(w io.Writer, run *domain.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("print run: %w", err)
	}
	return nil
}
