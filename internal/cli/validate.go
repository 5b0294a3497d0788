package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a merge batch without contacting HubSpot",
	Long: `Validate loads the merge batch and applies every batch rule: unique IDs,
no ID used as both keep and merge, exactly one keep and one merge per key.

No network call is made. Exits non-zero on the first violated rule.`,
	RunE: appctx.WithApp(appctx.Options{}, runValidate),
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addInputFlag(validateCmd)
	addFormatFlags(validateCmd)
}

type groupView struct {
	Key   string          `json:"key" yaml:"key"`
	Keep  domain.RecordID `json:"keep" yaml:"keep"`
	Merge domain.RecordID `json:"merge" yaml:"merge"`
}

func runValidate(app *appctx.App, cmd *cobra.Command, args []string) error {
	plan, err := loadPlan(app)
	if err != nil {
		return err
	}

	r, err := renderer(app, cmd)
	if err != nil {
		return err
	}

	views := make([]groupView, 0, len(plan.Groups))
	rows := make([][]string, 0, len(plan.Groups))
	for _, g := range plan.Groups {
		v := groupView{Key: g.Key}
		for _, in := range g.Instructions {
			switch in.Action {
			case domain.ActionKeep:
				v.Keep = in.ID
			case domain.ActionMerge:
				v.Merge = in.ID
			}
		}
		views = append(views, v)
		rows = append(rows, []string{v.Key, string(v.Keep), string(v.Merge)})
	}

	if err := r.Render(views, []string{"KEY", "KEEP", "MERGE"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ %s: %d records in %d groups\n", app.Config.InputPath, plan.RecordCount(), len(plan.Groups))
	return nil
}
