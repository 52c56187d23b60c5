package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// configEnv names the environment variable holding the config file path
// when --config is not given.
const configEnv = "WAD_CONFIG"

// config is the YAML configuration file. Command-line flags override any
// value set here.
type config struct {
	// Yes skips overwrite confirmations.
	Yes bool `yaml:"yes"`

	// Jobs is the number of paths processed concurrently.
	Jobs int `yaml:"jobs"`

	// Extension is the archive file extension.
	Extension string `yaml:"extension"`

	// Codepage is the IANA name of the code page used for entry names.
	Codepage string `yaml:"codepage"`

	// Exclude lists doublestar patterns skipped when packing.
	Exclude []string `yaml:"exclude"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// JSON forces JSON log output even on a terminal.
	JSON bool `yaml:"json"`

	// Watch configures the watch command.
	Watch watchConfig `yaml:"watch"`
}

type watchConfig struct {
	// QuietPeriod is how long a new path must stay unchanged before it
	// is processed.
	QuietPeriod time.Duration `yaml:"quiet_period"`
}

func defaultConfig() *config {
	return &config{
		Jobs:      1,
		Extension: ".wad",
		Codepage:  "windows-1252",
		LogLevel:  "info",
		Watch: watchConfig{
			QuietPeriod: 2 * time.Second,
		},
	}
}

// loadConfig reads path over the defaults. An empty path falls back to
// $WAD_CONFIG; if that is unset too the defaults are returned.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if c.Watch.QuietPeriod <= 0 {
		return fmt.Errorf("watch.quiet_period must be positive, got %s", c.Watch.QuietPeriod)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c *config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}
