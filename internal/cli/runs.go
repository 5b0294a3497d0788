package cli

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/ledger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded merge runs",
	Long:  `Lists the runs stored in the ledger, most recent first.`,
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{NeedsLedger: true}, runRunsList),
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show the events, merges and reports of one run",
	Long: `Shows a single run. The run may be given by full UUID or by any unique
prefix of it.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.Options{NeedsLedger: true}, runRunsShow),
}

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)

	addFormatFlags(runsCmd)
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list (0 = all)")
	addFormatFlags(runsShowCmd)
}

func runRunsList(app *appctx.App, cmd *cobra.Command, args []string) error {
	runs, err := app.Ledger.ListRuns(runsLimit)
	if err != nil {
		return exitError(1, err)
	}
	r, err := renderer(app, cmd)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortUUID(run.UUID),
			string(run.Mode),
			string(run.Status),
			strconv.Itoa(run.Groups),
			strconv.Itoa(run.Merged),
			strconv.Itoa(run.Missing),
			run.StartedAt.Local().Format(time.DateTime),
			run.InputPath,
		})
	}
	return r.Render(runs, []string{"RUN", "MODE", "STATUS", "GROUPS", "MERGED", "MISSING", "STARTED", "INPUT"}, rows)
}

type runDetail struct {
	Run       *domain.Run         `json:"run" yaml:"run"`
	Artifacts map[string]string   `json:"artifacts" yaml:"artifacts"`
	Merges    []ledger.MergeEntry `json:"merges" yaml:"merges"`
	Events    []domain.Event      `json:"events" yaml:"events"`
}

func runRunsShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	run, err := app.Ledger.GetRun(args[0])
	if err != nil {
		return exitError(1, err)
	}
	detail := runDetail{Run: run}
	if detail.Artifacts, err = app.Ledger.Artifacts(run.UUID); err != nil {
		return exitError(1, err)
	}
	if detail.Merges, err = app.Ledger.RunMerges(run.UUID); err != nil {
		return exitError(1, err)
	}
	if detail.Events, err = app.Ledger.RunEvents(run.UUID); err != nil {
		return exitError(1, err)
	}

	r, err := renderer(app, cmd)
	if err != nil {
		return err
	}
	if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
		return r.RenderJSON(detail)
	}
	if yamlFlag, _ := cmd.Flags().GetBool("yaml"); yamlFlag {
		return r.RenderYAML(detail)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.UUID)
	fmt.Fprintf(out, "Mode:     %s\n", run.Mode)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Input:    %s\n", run.InputPath)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(out, "Groups: %d, merged: %d, missing: %d\n", run.Groups, run.Merged, run.Missing)
	if run.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *run.Error)
	}

	if len(detail.Artifacts) > 0 {
		fmt.Fprintln(out, "\nReports:")
		kinds := make([]string, 0, len(detail.Artifacts))
		for kind := range detail.Artifacts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(out, "  %-8s  %s\n", kind, detail.Artifacts[kind])
		}
	}

	if len(detail.Merges) > 0 {
		fmt.Fprintln(out, "\nMerges:")
		for _, m := range detail.Merges {
			fmt.Fprintf(out, "  %s: %s -> %s\n", m.Key, m.MergedID, m.IntoID)
		}
	}

	if len(detail.Events) > 0 {
		fmt.Fprintln(out, "\nEvents:")
		rows := make([][]string, 0, len(detail.Events))
		for _, ev := range detail.Events {
			rows = append(rows, []string{
				ev.CreatedAt.Local().Format(time.TimeOnly),
				ev.Type,
				deref(ev.Key),
				deref(ev.RecordID),
				deref(ev.TargetID),
				deref(ev.Message),
			})
		}
		return r.RenderTable([]string{"TIME", "EVENT", "KEY", "COMPANY", "TARGET", "MESSAGE"}, rows)
	}
	return nil
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
