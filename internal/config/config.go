package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/hsmerge/internal/artifacts"
	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/hubspot"
	"github.com/lherron/hsmerge/internal/webhooks"
)

// Env files read per run mode, relative to the working directory.
const (
	ProdEnvFile = "env_prod.env"
	TestEnvFile = "env_test.env"
)

// Config represents the application configuration
type Config struct {
	AccessToken      string                   `yaml:"access_token"`
	BaseURL          string                   `yaml:"base_url"`
	InputPath        string                   `yaml:"input_path"`
	DataDir          string                   `yaml:"data_dir"`
	LogDir           string                   `yaml:"log_dir"`
	LedgerPath       string                   `yaml:"ledger_path"`
	LogLevel         string                   `yaml:"log_level"`
	Output           string                   `yaml:"output"`
	RateLimit        float64                  `yaml:"rate_limit"`
	RateBurst        int                      `yaml:"rate_burst"`
	AssociationCodes hubspot.AssociationCodes `yaml:"association_codes"`
	// WebhookURLs are notified when a run finishes or fails.
	WebhookURLs []string `yaml:"webhook_urls"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. env_prod.env or env_test.env (dotenv) depending on mode
// 3. ./.env.local (dotenv) - walks up parent directories to find it
// 4. ~/.config/hsmerge/config.yaml (YAML)
func Load(mode domain.RunMode) (*Config, error) {
	cfg := &Config{
		BaseURL:          hubspot.DefaultBaseURL,
		InputPath:        "input_data.csv",
		DataDir:          "data",
		LogDir:           "logs",
		LogLevel:         "info",
		Output:           "table",
		RateLimit:        hubspot.DefaultRateLimit,
		RateBurst:        hubspot.DefaultRateBurst,
		AssociationCodes: hubspot.DefaultAssociationCodes(),
	}

	// godotenv never overrides variables that are already set, so the mode
	// file wins over .env.local.
	_ = godotenv.Load(envFileFor(mode))
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional, so we don't fail if it doesn't exist
	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to parse config.yaml: %w", err)
	}

	// Override with environment variables
	if token := getEnvOrFile("HUBSPOT_ACCESS_TOKEN", "HUBSPOT_ACCESS_TOKEN_FILE"); token != "" {
		cfg.AccessToken = token
	}
	if baseURL := os.Getenv("HSMERGE_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if input := os.Getenv("HSMERGE_INPUT"); input != "" {
		cfg.InputPath = input
	}
	if dataDir := os.Getenv("HSMERGE_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logDir := os.Getenv("HSMERGE_LOG_DIR"); logDir != "" {
		cfg.LogDir = logDir
	}
	if ledgerPath := os.Getenv("HSMERGE_LEDGER_PATH"); ledgerPath != "" {
		cfg.LedgerPath = ledgerPath
	}
	if logLevel := os.Getenv("HSMERGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if output := os.Getenv("HSMERGE_OUTPUT"); output != "" {
		cfg.Output = output
	}
	if raw := os.Getenv("HSMERGE_WEBHOOK_URLS"); raw != "" {
		cfg.WebhookURLs = webhooks.ParseURLs(raw)
	}
	if raw := os.Getenv("HSMERGE_RATE_LIMIT"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid HSMERGE_RATE_LIMIT %q: %w", raw, err)
		}
		cfg.RateLimit = v
	}

	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)

	// Set defaults if not configured
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = DefaultLedgerPath(cfg.DataDir)
	}

	return cfg, nil
}

// DefaultLedgerPath is where the ledger lives when no path is configured.
func DefaultLedgerPath(dataDir string) string {
	return filepath.Join(dataDir, "ledger.db")
}

func envFileFor(mode domain.RunMode) string {
	if mode == domain.RunModeTest {
		return TestEnvFile
	}
	return ProdEnvFile
}

// loadYAMLConfig loads configuration from ~/.config/hsmerge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "hsmerge", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// Layout returns the working directories derived from the configuration.
func (c *Config) Layout() artifacts.Layout {
	return artifacts.NewLayout(c.LogDir, c.DataDir)
}

// HubSpotOptions builds client options from the configuration.
func (c *Config) HubSpotOptions() hubspot.Options {
	return hubspot.Options{
		BaseURL:   c.BaseURL,
		Token:     c.AccessToken,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
		Codes:     c.AssociationCodes,
	}
}
