package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending ledger migrations",
	Long: `Migrate applies any pending SQL migrations to the run ledger.

Migrations are embedded in the hsmerge binary and tracked via the
schema_migrations table. Each migration file (e.g., 000001_baseline.sql) is
applied exactly once. Commands that open the ledger migrate it on their own;
this command exists to inspect or upgrade a ledger explicitly.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	RunE: appctx.WithApp(appctx.Options{}, runMigrate),
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrate(app *appctx.App, cmd *cobra.Command, args []string) error {
	database, err := db.Open(app.Config.LedgerPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open ledger: %w", err))
	}
	defer database.Close()

	out := cmd.OutOrStdout()

	if migrateStatus {
		return showMigrationStatus(cmd, database)
	}

	if migrateDryRun {
		return showPendingMigrations(cmd, database)
	}

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}

	if len(applied) == 0 {
		fmt.Fprintln(out, "Ledger is up to date. No migrations to apply.")
	} else {
		for _, m := range applied {
			fmt.Fprintf(out, "✓ Applied migration: %s\n", m)
		}
		fmt.Fprintf(out, "\nApplied %d migration(s).\n", len(applied))
	}

	return nil
}

func showMigrationStatus(cmd *cobra.Command, database *db.DB) error {
	out := cmd.OutOrStdout()
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}

	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}

	if len(applied) > 0 {
		fmt.Fprintln(out, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	}

	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(out, "  ○ %s\n", m)
		}
	}

	return nil
}

func showPendingMigrations(cmd *cobra.Command, database *db.DB) error {
	out := cmd.OutOrStdout()
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Ledger is up to date.")
		return nil
	}

	fmt.Fprintln(out, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(out, "  ○ %s\n", m)
	}
	fmt.Fprintf(out, "\nTotal: %d migration(s) would be applied.\n", len(pending))

	return nil
}
