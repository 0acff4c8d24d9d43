// Package config loads client settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppName names the data directory and keychain service.
const AppName = "flip-go"

// ErrSetupRequired is returned by Validate when the gateway is not configured.
var ErrSetupRequired = errors.New("config: setup required")

// SetupGuide is shown when ErrSetupRequired is returned.
const SetupGuide = `flip-go is not configured yet.

Set these in the environment or in a .env file next to the binary:

  FLIP_GATEWAY_URL=https://your-gateway.example
  FLIP_CREATOR_ADDRESS=<creator address that receives the game fees>

The access token is read from the OS keychain (profile FLIP_PROFILE), or from
FLIP_ACCESS_TOKEN when set.`

// Config holds every client setting.
type Config struct {
	GatewayURL     string `env:"FLIP_GATEWAY_URL"`
	CreatorAddress string `env:"FLIP_CREATOR_ADDRESS"`
	AccessToken    string `env:"FLIP_ACCESS_TOKEN"`
	Profile        string `env:"FLIP_PROFILE"         envDefault:"default"`

	MinWager          float64       `env:"FLIP_MIN_WAGER"          envDefault:"0.01"`
	SettlementTimeout time.Duration `env:"FLIP_SETTLEMENT_TIMEOUT" envDefault:"90s"`

	LocalAPIPort  int    `env:"FLIP_LOCAL_API_PORT"  envDefault:"17889"`
	LocalAPIToken string `env:"FLIP_LOCAL_API_TOKEN"`

	DataDir  string `env:"FLIP_DATA_DIR"`
	LogLevel string `env:"FLIP_LOG_LEVEL" envDefault:"info"`
	Dev      bool   `env:"FLIP_DEV"`
}

// SetupError lists the settings that are missing.
type SetupError struct {
	Missing []string
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("config: setup required: missing %s", strings.Join(e.Missing, ", "))
}

func (e *SetupError) Is(target error) bool {
	return target == ErrSetupRequired
}

// Load reads dotenvPath (when it exists) into the process environment and parses
// Config from it. Variables already set in the environment win over the file.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		cfg.DataDir = filepath.Join(base, AppName)
	}
	return cfg, nil
}

// Validate checks the settings needed to reach the gateway and the value ranges.
// Missing gateway settings yield a *SetupError matching ErrSetupRequired.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.GatewayURL) == "" {
		missing = append(missing, "FLIP_GATEWAY_URL")
	}
	if strings.TrimSpace(c.CreatorAddress) == "" {
		missing = append(missing, "FLIP_CREATOR_ADDRESS")
	}
	if len(missing) > 0 {
		return &SetupError{Missing: missing}
	}

	if c.MinWager <= 0 {
		return fmt.Errorf("config: FLIP_MIN_WAGER must be > 0, got %v", c.MinWager)
	}
	if c.SettlementTimeout <= 0 {
		return fmt.Errorf("config: FLIP_SETTLEMENT_TIMEOUT must be > 0, got %s", c.SettlementTimeout)
	}
	if c.LocalAPIPort < 0 || c.LocalAPIPort > 65535 {
		return fmt.Errorf("config: FLIP_LOCAL_API_PORT out of range: %d", c.LocalAPIPort)
	}
	return nil
}

// HistoryPath is the SQLite play history database.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// SecretsFallbackPath is the token file used when no OS keychain is available.
func (c Config) SecretsFallbackPath() string {
	return filepath.Join(c.DataDir, "secrets.json")
}

// LocalAPIAddr is the loopback listen address for the local API.
func (c Config) LocalAPIAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.LocalAPIPort)
}
