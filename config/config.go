// Package config handles stepagent configuration loading: an optional YAML
// file merged with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment say otherwise.
const (
	DefaultProvider       = "openrouter"
	DefaultModel          = "google/gemini-2.0-flash-001"
	DefaultMaxIterations  = 25
	DefaultCommandTimeout = 120 * time.Second
)

// Config holds all stepagent configuration.
type Config struct {
	Provider string `yaml:"provider" env:"STEPAGENT_PROVIDER"`
	Model    string `yaml:"model" env:"STEPAGENT_MODEL"`
	APIKey   string `yaml:"api_key" env:"STEPAGENT_API_KEY"`

	// MaxIterations caps model round-trips per interaction.
	MaxIterations int `yaml:"max_iterations" env:"STEPAGENT_MAX_ITERATIONS"`

	// CommandTimeoutSec bounds synchronous shell commands, in seconds.
	CommandTimeoutSec int `yaml:"command_timeout_sec" env:"STEPAGENT_COMMAND_TIMEOUT_SEC"`

	// WorkingDir is where tools operate; empty means the process working
	// directory.
	WorkingDir string `yaml:"working_dir" env:"STEPAGENT_WORKING_DIR"`

	// ToolOutputLimits overrides per-tool observation caps, in characters.
	ToolOutputLimits map[string]int `yaml:"tool_output_limits"`

	LogLevel string `yaml:"log_level" env:"STEPAGENT_LOG_LEVEL"`
}

// DefaultSearchPaths returns the config file search order. An explicit path
// (from the -config flag) is checked first by FindConfig; then
// ./stepagent.yaml, then ~/.config/stepagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"stepagent.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stepagent", "config.yaml"))
	}
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the default search paths are tried in order; an empty return with
// nil error means no file was found and defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Provider:          DefaultProvider,
		Model:             DefaultModel,
		MaxIterations:     DefaultMaxIterations,
		CommandTimeoutSec: int(DefaultCommandTimeout / time.Second),
		LogLevel:          "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// Expand ${VAR} references so secrets can stay out of the file.
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// OPENROUTER_API_KEY is honored as a fallback credential source.
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	return cfg, nil
}

// CommandTimeout returns the shell command timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	if c.CommandTimeoutSec <= 0 {
		return DefaultCommandTimeout
	}
	return time.Duration(c.CommandTimeoutSec) * time.Second
}

// Validate checks that the configuration can drive a real interaction.
// A missing credential or model is fatal at startup.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("no API key configured: set STEPAGENT_API_KEY or OPENROUTER_API_KEY, or api_key in the config file")
	}
	if c.Model == "" {
		return fmt.Errorf("no model configured: set STEPAGENT_MODEL or model in the config file")
	}
	if c.Provider == "" {
		return fmt.Errorf("no provider configured")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}
