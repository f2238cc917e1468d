package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. CHESSDOLLS_READ_SIZE.
const Prefix = "CHESSDOLLS"

// Config holds all application configuration.
type Config struct {
	LogFile     string `envconfig:"LOG_FILE"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Transcript  string `envconfig:"TRANSCRIPT"`
	ReadSize    int    `envconfig:"READ_SIZE" default:"1"`
	MaxLines    int    `envconfig:"MAX_LINES" default:"10000"`
	HistorySize int    `envconfig:"HISTORY_SIZE" default:"500"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.LogFile == "" {
		cfg.LogFile = defaultLogFile()
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		LogFile:     defaultLogFile(),
		LogLevel:    "info",
		ReadSize:    1,
		MaxLines:    10000,
		HistorySize: 500,
	}
}

func defaultLogFile() string {
	return filepath.Join(os.TempDir(), "chessdolls.log")
}

// Validate rejects values the shell cannot run with.
func (c *Config) Validate() error {
	if c.ReadSize < 1 {
		return fmt.Errorf("read size must be positive, got %d", c.ReadSize)
	}
	if c.MaxLines < 1 {
		return fmt.Errorf("max lines must be positive, got %d", c.MaxLines)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", c.LogLevel)
	}
	return nil
}
