// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, ledger opening and logger setup
// to reduce boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/artifacts"
	"github.com/lherron/hsmerge/internal/config"
	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/hubspot"
	"github.com/lherron/hsmerge/internal/ledger"
	"github.com/lherron/hsmerge/internal/logging"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Ledger is the opened run ledger (nil if NeedsLedger is false)
	Ledger *ledger.Ledger

	// Logger writes to the log file and console (a no-op logger if NeedsLogger is false)
	Logger *logging.Logger
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Ledger != nil {
		a.Ledger.Close()
		a.Ledger = nil
	}
	if a.Logger != nil {
		a.Logger.Close()
		a.Logger = nil
	}
}

// Layout returns the working directories.
func (a *App) Layout() artifacts.Layout {
	return a.Config.Layout()
}

// HubSpot creates a client from the configuration. The access token must be
// set by then.
func (a *App) HubSpot() (*hubspot.Client, error) {
	client, err := hubspot.New(a.Config.HubSpotOptions())
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Options configures the bootstrap behavior.
type Options struct {
	// Mode selects which env file is loaded.
	Mode domain.RunMode

	// NeedsLedger indicates whether to open the run ledger.
	NeedsLedger bool

	// NeedsLogger indicates whether to create the working directories and
	// open the log file.
	NeedsLogger bool
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Resources are released automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	mode := opts.Mode
	if mode == "" {
		mode = domain.RunModeInteractive
	}
	cfg, err := config.Load(mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg
	applyFlags(cmd, cfg)

	if opts.NeedsLogger {
		if err := artifacts.EnsureLayout(cfg.Layout()); err != nil {
			return nil, err
		}
		logger, err := logging.New(logging.Options{
			Dir:     cfg.LogDir,
			Level:   cfg.LogLevel,
			Console: cmd.ErrOrStderr(),
		})
		if err != nil {
			return nil, err
		}
		app.Logger = logger
	} else {
		app.Logger = logging.Nop()
	}

	if opts.NeedsLedger {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		app.Ledger = l
	}

	return app, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flag := func(name string) string {
		if f := cmd.Flag(name); f != nil {
			return f.Value.String()
		}
		return ""
	}

	if dataDir := flag("data-dir"); dataDir != "" {
		// The default ledger lives under the data directory and follows it.
		if cfg.LedgerPath == config.DefaultLedgerPath(cfg.DataDir) {
			cfg.LedgerPath = config.DefaultLedgerPath(dataDir)
		}
		cfg.DataDir = dataDir
	}
	if ledgerPath := flag("ledger"); ledgerPath != "" {
		cfg.LedgerPath = ledgerPath
	}
	if level := flag("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if input := flag("input"); input != "" {
		cfg.InputPath = input
	}
}
