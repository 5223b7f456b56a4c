package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STEPAGENT_PROVIDER", "STEPAGENT_MODEL", "STEPAGENT_API_KEY",
		"STEPAGENT_MAX_ITERATIONS", "STEPAGENT_LOG_LEVEL", "OPENROUTER_API_KEY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepagent.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != DefaultProvider || cfg.Model != DefaultModel {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxIterations != 25 {
		t.Errorf("expected default 25 iterations, got %d", cfg.MaxIterations)
	}
	if cfg.CommandTimeout() != 120*time.Second {
		t.Errorf("expected 120s command timeout, got %v", cfg.CommandTimeout())
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
provider: openai
model: gpt-4o-mini
api_key: file-key
max_iterations: 10
log_level: debug
tool_output_limits:
  read_file: 1000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "openai" || cfg.Model != "gpt-4o-mini" || cfg.APIKey != "file-key" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.MaxIterations != 10 || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ToolOutputLimits["read_file"] != 1000 {
		t.Errorf("tool output limits not applied: %v", cfg.ToolOutputLimits)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "model: from-file\napi_key: file-key\n")
	t.Setenv("STEPAGENT_MODEL", "from-env")
	t.Setenv("STEPAGENT_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != "from-env" {
		t.Errorf("expected env to win, got %q", cfg.Model)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("expected env key to win, got %q", cfg.APIKey)
	}
}

func TestOpenRouterKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "or-key" {
		t.Errorf("expected OPENROUTER_API_KEY fallback, got %q", cfg.APIKey)
	}
}

func TestExpandsEnvReferencesInFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_SECRET", "expanded-key")
	path := writeConfigFile(t, "api_key: ${MY_SECRET}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "expanded-key" {
		t.Errorf("expected ${VAR} expansion, got %q", cfg.APIKey)
	}
}

func TestValidateRequiresCredential(t *testing.T) {
	cfg := Default()
	cfg.APIKey = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for missing API key")
	}

	cfg.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for missing model")
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig("/nonexistent/stepagent.yaml"); err == nil {
		t.Error("expected an error for a missing explicit config path")
	}

	path := writeConfigFile(t, "model: x\n")
	found, err := FindConfig(path)
	if err != nil || found != path {
		t.Errorf("expected %q, got %q (%v)", path, found, err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
