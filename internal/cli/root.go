package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hsmerge",
	Short: "Merge duplicate HubSpot companies without losing their hierarchy",
	Long: `hsmerge merges duplicate HubSpot companies listed in a CSV batch. Each
key pairs one record to keep with one record to merge into it. Parent/child
associations of both records are captured before the merge and recreated
against the surviving company afterwards.

Every run is recorded in a local SQLite ledger and leaves three JSON reports
under the data directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("ledger", "", "Path to the run ledger (overrides HSMERGE_LEDGER_PATH)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for reports and the default ledger (overrides HSMERGE_DATA_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides HSMERGE_LOG_LEVEL)")
}
