package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/bulk"
	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/domain"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every company in the batch still exists",
	Long: `Check validates the batch and then asks HubSpot whether each listed
company still exists. Lookups run in parallel and nothing is modified.

Exit codes:
  0  every lookup answered
  5  some lookups failed
  1  every lookup failed`,
	RunE: appctx.WithApp(appctx.Options{NeedsLogger: true}, runCheck),
}

var (
	checkJobs            int
	checkContinueOnError bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	addInputFlag(checkCmd)
	addFormatFlags(checkCmd)
	checkCmd.Flags().IntVarP(&checkJobs, "jobs", "j", 4, "Number of parallel lookups (0 = one per CPU)")
	checkCmd.Flags().BoolVar(&checkContinueOnError, "continue-on-error", true, "Keep checking after a failed lookup")
}

type presence struct {
	ID     domain.RecordID `json:"id" yaml:"id"`
	Key    string          `json:"key" yaml:"key"`
	Action domain.Action   `json:"action" yaml:"action"`
	Status string          `json:"status" yaml:"status"`
}

func runCheck(app *appctx.App, cmd *cobra.Command, args []string) error {
	plan, err := loadPlan(app)
	if err != nil {
		return err
	}
	if err := requireToken(app); err != nil {
		return err
	}
	client, err := app.HubSpot()
	if err != nil {
		return exitError(1, err)
	}
	r, err := renderer(app, cmd)
	if err != nil {
		return err
	}

	items := make([]string, len(plan.Instructions))
	statuses := make(map[string]string, len(plan.Instructions))
	for i, in := range plan.Instructions {
		items[i] = string(in.ID)
	}

	var mu sync.Mutex
	op := &bulk.Operation{
		Jobs:            checkJobs,
		ContinueOnError: checkContinueOnError,
		ShowProgress:    true,
		Progress:        cmd.ErrOrStderr(),
	}
	result := op.Execute(cmd.Context(), items, func(ctx context.Context, item string) error {
		ok, err := client.Exists(ctx, domain.RecordID(item))
		if err != nil {
			return err
		}
		status := "present"
		if !ok {
			status = "missing"
			app.Logger.Warn().Str("company_id", item).Msg("Company not found")
		}
		mu.Lock()
		statuses[item] = status
		mu.Unlock()
		return nil
	})

	views := make([]presence, 0, len(plan.Instructions))
	rows := make([][]string, 0, len(plan.Instructions))
	missing := 0
	for _, in := range plan.Instructions {
		status, ok := statuses[string(in.ID)]
		if !ok {
			status = "unknown"
		}
		if status == "missing" {
			missing++
		}
		views = append(views, presence{ID: in.ID, Key: in.Key, Action: in.Action, Status: status})
		rows = append(rows, []string{string(in.ID), in.Key, string(in.Action), status})
	}

	if err := r.Render(views, []string{"ID", "KEY", "ACTION", "STATUS"}, rows); err != nil {
		return err
	}
	result.PrintSummary(cmd.ErrOrStderr())
	if missing > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d companies no longer exist; their groups will be skipped\n", missing)
	}

	if code := result.ExitCode(); code != 0 {
		return exitError(code, fmt.Errorf("%d of %d lookups failed", result.Failed, result.TotalItems))
	}
	return nil
}
