package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/artifacts"
	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/ledger"
	"github.com/lherron/hsmerge/internal/prompt"
	"github.com/lherron/hsmerge/internal/reconcile"
	"github.com/lherron/hsmerge/internal/webhooks"
)

const tokenPrompt = "Please provide your HubSpot access token and press Enter: "

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Merge the companies of a batch",
	Long: `Run validates the batch, asks for confirmation and then merges each group:
the records are checked, their parent/child associations are captured and
removed, the merge record is merged into the keep record and the captured
associations are recreated against the survivor.

A group referencing a company that no longer exists is skipped and reported.
Any other HubSpot failure aborts the run. On success three JSON reports are
written under the data directory. Every run is recorded in the ledger.

Interactive mode (the default) reads env_prod.env and prompts for the access
token when none is configured. --test reads env_test.env and never prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := domain.RunModeInteractive
		if runTest {
			mode = domain.RunModeTest
		}
		return appctx.WithApp(appctx.Options{Mode: mode, NeedsLedger: true, NeedsLogger: true}, runMerge)(cmd, args)
	},
}

var (
	runTest bool
	runYes  bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	addInputFlag(runCmd)
	runCmd.Flags().BoolVar(&runTest, "test", false, "Use env_test.env and skip every prompt")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runMerge(app *appctx.App, cmd *cobra.Command, args []string) error {
	log := app.Logger
	mode := domain.RunModeInteractive
	if runTest {
		mode = domain.RunModeTest
	}

	var prompter prompt.Prompter
	if mode == domain.RunModeInteractive {
		p, err := prompt.New(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return exitError(1, err)
		}
		defer p.Close()
		prompter = p
	}

	if app.Config.AccessToken == "" {
		if prompter == nil {
			return requireToken(app)
		}
		token, err := prompter.Secret(tokenPrompt)
		if err != nil && !errors.Is(err, prompt.ErrAborted) {
			return exitError(1, err)
		}
		if token == "" {
			log.Info().Msg("Merge operation aborted.")
			return nil
		}
		app.Config.AccessToken = token
	}

	plan, err := loadPlan(app)
	if err != nil {
		return err
	}

	if prompter != nil && !runYes {
		question := fmt.Sprintf("Merge %d companies in %d groups? (y/n): ", plan.RecordCount(), len(plan.Groups))
		ok, err := prompter.Confirm(question)
		if err != nil && !errors.Is(err, prompt.ErrAborted) {
			return exitError(1, err)
		}
		if !ok {
			log.Info().Msg("Merge operation aborted.")
			return nil
		}
	}

	client, err := app.HubSpot()
	if err != nil {
		return exitError(1, err)
	}

	run, err := app.Ledger.StartRun(mode, app.Config.InputPath)
	if err != nil {
		return exitError(1, err)
	}
	log.Info().Str("run", run.UUID).Msg("Merge operation started")

	recorder := app.Ledger.Recorder(run.UUID)
	engine := reconcile.New(client, client, reconcile.MultiSink{logSink(app), recorder})
	outcome, runErr := engine.Run(cmd.Context(), plan)

	summary := ledger.Summary{Groups: len(plan.Groups)}
	if outcome != nil {
		summary.Merged = outcome.MergeCount()
		summary.Missing = len(outcome.Missing)
	}
	if err := recorder.Err(); err != nil {
		log.Warn().Err(err).Str("run", run.UUID).Msg("Some run events were not recorded")
	}

	if runErr != nil {
		failRun(app, cmd, run.UUID, summary, runErr)
		return exitError(1, runErr)
	}

	paths, err := artifacts.Write(app.Layout(), artifacts.Report{
		Missing:   outcome.Missing,
		Snapshots: outcome.Snapshots,
		Results:   outcome.Results,
	}, time.Now())
	if err != nil {
		failRun(app, cmd, run.UUID, summary, err)
		return exitError(1, err)
	}
	if err := app.Ledger.RecordArtifacts(run.UUID, map[string]string{
		ledger.ArtifactMissing:  paths.Missing,
		ledger.ArtifactSnapshot: paths.Snapshot,
		ledger.ArtifactResults:  paths.Results,
	}); err != nil {
		return exitError(1, err)
	}

	finished, err := app.Ledger.FinishRun(run.UUID, summary)
	if err != nil {
		return exitError(1, err)
	}
	log.Info().Str("run", run.UUID).Int("merged", summary.Merged).Int("missing", summary.Missing).Msg("Merge operation completed")

	notify(app, cmd, finished)

	printRunSummary(cmd, finished, paths)
	return nil
}

// failRun closes a run as failed and notifies webhooks. Ledger errors are
// logged so the original failure is what the caller returns.
func failRun(app *appctx.App, cmd *cobra.Command, runUUID string, summary ledger.Summary, cause error) {
	failed, err := app.Ledger.FailRun(runUUID, summary, cause)
	if err != nil {
		app.Logger.Error().Err(err).Str("run", runUUID).Msg("Failed to record run failure")
		return
	}
	notify(app, cmd, failed)
}

func notify(app *appctx.App, cmd *cobra.Command, run *domain.Run) {
	if len(app.Config.WebhookURLs) == 0 {
		return
	}
	paths, err := app.Ledger.Artifacts(run.UUID)
	if err != nil {
		app.Logger.Warn().Err(err).Str("run", run.UUID).Msg("Failed to load run reports for notification")
	}
	webhooks.NewNotifier(app.Config.WebhookURLs, nil, app.Logger.Logger).
		Notify(cmd.Context(), webhooks.NewPayload(run, paths))
}

func printRunSummary(cmd *cobra.Command, run *domain.Run, paths artifacts.Paths) {
	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(out, "Run %s (%s)\n", cyan(run.UUID), run.Mode)
	fmt.Fprintf(out, "Groups: %d\n", run.Groups)
	fmt.Fprintf(out, "Merged: %s\n", green(run.Merged))
	if run.Missing > 0 {
		fmt.Fprintf(out, "Skipped: %s\n", yellow(run.Missing))
	} else {
		fmt.Fprintf(out, "Skipped: %d\n", run.Missing)
	}
	fmt.Fprintf(out, "Missing companies: %s\n", paths.Missing)
	fmt.Fprintf(out, "Associations snapshot: %s\n", paths.Snapshot)
	fmt.Fprintf(out, "Merged companies: %s\n", paths.Results)
}
