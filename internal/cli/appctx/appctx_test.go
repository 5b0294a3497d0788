package appctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/logging"
)

// isolate points HOME and the working directory at a temp dir so no real
// config or env file leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"HUBSPOT_ACCESS_TOKEN", "HUBSPOT_ACCESS_TOKEN_FILE", "HSMERGE_BASE_URL",
		"HSMERGE_INPUT", "HSMERGE_DATA_DIR", "HSMERGE_LOG_DIR",
		"HSMERGE_LEDGER_PATH", "HSMERGE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("ledger", "", "Ledger path")
	cmd.Flags().String("data-dir", "", "Data directory")
	cmd.Flags().String("log-level", "", "Log level")
	return cmd
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	isolate(t)

	app, err := Bootstrap(testCommand(), Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.Ledger != nil {
		t.Error("Ledger should be nil when NeedsLedger is false")
	}
	if _, err := os.Stat("logs"); !os.IsNotExist(err) {
		t.Error("log directory should not be created when NeedsLogger is false")
	}
}

func TestBootstrap_WithLedgerAndLogger(t *testing.T) {
	home := isolate(t)

	app, err := Bootstrap(testCommand(), Options{NeedsLedger: true, NeedsLogger: true})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Ledger == nil {
		t.Fatal("Ledger should not be nil when NeedsLedger is true")
	}
	for _, dir := range []string{"logs", "data/errors", "data/intermediate", "data/outputs"} {
		if _, err := os.Stat(filepath.Join(home, dir)); err != nil {
			t.Errorf("expected %s to exist: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(home, "logs", logging.FileName)); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestBootstrap_FlagOverrides(t *testing.T) {
	home := isolate(t)
	ledgerPath := filepath.Join(home, "elsewhere.db")

	cmd := testCommand()
	if err := cmd.ParseFlags([]string{"--data-dir", "out", "--ledger", ledgerPath, "--log-level", "debug"}); err != nil {
		t.Fatal(err)
	}

	app, err := Bootstrap(cmd, Options{Mode: domain.RunModeTest})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config.DataDir != "out" {
		t.Errorf("DataDir = %q, want out", app.Config.DataDir)
	}
	if app.Config.LedgerPath != ledgerPath {
		t.Errorf("LedgerPath = %q, want %q", app.Config.LedgerPath, ledgerPath)
	}
	if app.Config.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", app.Config.LogLevel)
	}
}

func TestBootstrap_DataDirMovesDefaultLedger(t *testing.T) {
	isolate(t)

	cmd := testCommand()
	if err := cmd.ParseFlags([]string{"--data-dir", "out"}); err != nil {
		t.Fatal(err)
	}

	app, err := Bootstrap(cmd, Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if want := filepath.Join("out", "ledger.db"); app.Config.LedgerPath != want {
		t.Errorf("LedgerPath = %q, want %q", app.Config.LedgerPath, want)
	}
}

func TestBootstrap_InvalidLogLevel(t *testing.T) {
	isolate(t)

	cmd := testCommand()
	if err := cmd.ParseFlags([]string{"--log-level", "loud"}); err != nil {
		t.Fatal(err)
	}

	if _, err := Bootstrap(cmd, Options{NeedsLogger: true}); err == nil {
		t.Fatal("expected an error for an unknown log level")
	}
}

func TestApp_Close_Multiple(t *testing.T) {
	// Close should be safe to call multiple times
	app := &App{}
	app.Close()
	app.Close() // Should not panic
}
