package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/job-application-tracker/internal/config"
	"github.com/kirillkom/job-application-tracker/internal/observability/logging"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "tracker",
	Short:        "Job application mail tracker",
	Long:         "Fetches a mailbox, classifies job application mail and reconciles it into companies, applications and emails.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logging.Setup("tracker", cfg.LogLevel)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
