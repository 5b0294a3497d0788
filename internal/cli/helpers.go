package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/cli/appctx"
	"github.com/lherron/hsmerge/internal/config"
	"github.com/lherron/hsmerge/internal/logging"
	"github.com/lherron/hsmerge/internal/parse"
	"github.com/lherron/hsmerge/internal/reconcile"
	"github.com/lherron/hsmerge/internal/render"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Code != 0 {
		return ee.Code
	}
	return 1
}

// addInputFlag registers the batch file flag shared by the batch commands.
func addInputFlag(cmd *cobra.Command) {
	cmd.Flags().String("input", "", "Merge batch file (csv, json or yaml; overrides HSMERGE_INPUT)")
}

// loadPlan reads and validates the configured batch. Validation events go to
// the app logger only.
func loadPlan(app *appctx.App) (*reconcile.Plan, error) {
	batch, err := parse.LoadFile(app.Config.InputPath)
	if err != nil {
		return nil, exitError(2, err)
	}
	engine := reconcile.New(nil, nil, logSink(app))
	plan, err := engine.Prepare(batch)
	if err != nil {
		return nil, exitError(2, err)
	}
	return plan, nil
}

func logSink(app *appctx.App) reconcile.Sink {
	return logging.NewSink(app.Logger.Logger)
}

// requireToken fails when no access token is configured.
func requireToken(app *appctx.App) error {
	if app.Config.AccessToken == "" {
		return exitError(2, fmt.Errorf("no access token configured (set HUBSPOT_ACCESS_TOKEN or add it to %s)", config.ProdEnvFile))
	}
	return nil
}

// renderer builds a renderer from the --json/--yaml flags, falling back to
// the configured output format.
func renderer(app *appctx.App, cmd *cobra.Command) (*render.Renderer, error) {
	format, err := render.ParseFormat(app.Config.Output)
	if err != nil {
		return nil, exitError(2, err)
	}
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed && f.Value.String() == "true" {
		format = render.FormatJSON
	}
	if f := cmd.Flags().Lookup("yaml"); f != nil && f.Changed && f.Value.String() == "true" {
		format = render.FormatYAML
	}
	porcelain := false
	if f := cmd.Flags().Lookup("porcelain"); f != nil && f.Value.String() == "true" {
		porcelain = true
	}
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format, Porcelain: porcelain}), nil
}

func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().Bool("yaml", false, "Output as YAML")
	cmd.Flags().Bool("porcelain", false, "Stable machine-readable output")
}
