package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the association changes a run would make",
	Long: `Plan performs the same existence checks and association reads as a run
but never deletes, creates or merges anything. For each group it prints a
unified diff of the parent/child links before and after the merge.

Groups that a run would skip are listed at the end.`,
	RunE: appctx.WithApp(appctx.Options{NeedsLogger: true}, runPlan),
}

var planNoColor bool

func init() {
	rootCmd.AddCommand(planCmd)
	addInputFlag(planCmd)
	addFormatFlags(planCmd)
	planCmd.Flags().BoolVar(&planNoColor, "no-color", false, "Disable colored diff output")
}

func runPlan(app *appctx.App, cmd *cobra.Command, args []string) error {
	p, err := loadPlan(app)
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

	preview, err := plan.Build(cmd.Context(), client, p)
	if err != nil {
		return exitError(1, err)
	}

	r, err := renderer(app, cmd)
	if err != nil {
		return err
	}
	if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
		return r.RenderJSON(preview)
	}
	if yamlFlag, _ := cmd.Flags().GetBool("yaml"); yamlFlag {
		return r.RenderYAML(preview)
	}

	printPreview(cmd.OutOrStdout(), preview, planNoColor)
	return nil
}

func printPreview(out io.Writer, preview *plan.Preview, noColor bool) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)
	for _, c := range []*color.Color{green, red, cyan, yellow} {
		if noColor {
			c.DisableColor()
		}
	}

	for _, g := range preview.Groups {
		merges := make([]string, 0, len(g.Survivor.Merges))
		for _, m := range g.Survivor.Merges {
			merges = append(merges, fmt.Sprintf("%s -> %s", m.MergedID, m.IntoID))
		}
		fmt.Fprintf(out, "%s merge %s\n", cyan.Sprint("Key "+g.Key+":"), strings.Join(merges, ", "))

		if g.Diff == "" {
			fmt.Fprintln(out, "  no association changes")
			continue
		}
		for _, line := range strings.SplitAfter(g.Diff, "\n") {
			switch {
			case line == "":
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				fmt.Fprint(out, line)
			case strings.HasPrefix(line, "+"):
				green.Fprint(out, line)
			case strings.HasPrefix(line, "-"):
				red.Fprint(out, line)
			default:
				fmt.Fprint(out, line)
			}
		}
	}

	for _, m := range preview.Missing {
		yellow.Fprintf(out, "Skip key %s: %s %s\n", m.Key, m.ID, m.Reason)
	}
	fmt.Fprintf(out, "\n%d groups, %d merges, %d skipped\n", len(preview.Groups), preview.MergeCount(), len(preview.Missing))
}
