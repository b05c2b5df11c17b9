package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "anthropic/claude-sonnet-4-5" {
		t.Errorf("expected default model anthropic/claude-sonnet-4-5, got %s", cfg.Model.Name)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected gateway host 127.0.0.1, got %s", cfg.Gateway.Host)
	}

	if cfg.Gateway.Port != 18990 {
		t.Errorf("expected gateway port 18990, got %d", cfg.Gateway.Port)
	}

	if cfg.Ingest.GitHubTopic != "pulse.github.weekly" {
		t.Errorf("expected github topic pulse.github.weekly, got %s", cfg.Ingest.GitHubTopic)
	}
	if cfg.Ingest.SlackTopic != "pulse.slack.weekly" {
		t.Errorf("expected slack topic pulse.slack.weekly, got %s", cfg.Ingest.SlackTopic)
	}

	if cfg.RateLimit.AnalysisInterval != 2*time.Second {
		t.Errorf("expected analysis interval 2s, got %v", cfg.RateLimit.AnalysisInterval)
	}
	if cfg.RateLimit.InsightInterval != time.Second {
		t.Errorf("expected insight interval 1s, got %v", cfg.RateLimit.InsightInterval)
	}
	if cfg.Scheduler.TickInterval != 60*time.Second {
		t.Errorf("expected scheduler tick 60s, got %v", cfg.Scheduler.TickInterval)
	}
	if !cfg.Insight.SinglePass {
		t.Error("expected insight singlePass to be true by default")
	}
}

func TestLoadDefaults(t *testing.T) {
	// Temporarily set HOME to a non-existent directory
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", "/tmp/nonexistent-pulseloom-test")
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model.MaxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Analysis.MaxTokens != 4096 {
		t.Errorf("expected analysis maxTokens 4096, got %d", cfg.Analysis.MaxTokens)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp config
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".pulseloom")
	os.MkdirAll(configDir, 0755)
	configFile := filepath.Join(configDir, "config.json")

	configJSON := `{
		"model": {
			"name": "openai/gpt-4",
			"maxTokens": 4096
		},
		"gateway": {
			"port": 9999
		},
		"insight": {
			"model": "groq/llama-3.3-70b"
		}
	}`
	os.WriteFile(configFile, []byte(configJSON), 0600)

	// Temporarily set HOME
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model.Name != "openai/gpt-4" {
		t.Errorf("expected model openai/gpt-4, got %s", cfg.Model.Name)
	}

	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}

	if cfg.InsightModel() != "groq/llama-3.3-70b" {
		t.Errorf("expected insight model override, got %s", cfg.InsightModel())
	}
	if cfg.AnalysisModel() != "openai/gpt-4" {
		t.Errorf("expected analysis model to fall back to default model, got %s", cfg.AnalysisModel())
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".pulseloom")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configJSON := `{
		"model": { "name": "${PULSETEST_MODEL}" },
		"gateway": { "authToken": "${PULSETEST_TOKEN}" }
	}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configJSON), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	origHome := os.Getenv("HOME")
	origModel := os.Getenv("PULSETEST_MODEL")
	defer os.Setenv("HOME", origHome)
	defer os.Setenv("PULSETEST_MODEL", origModel)
	_ = os.Setenv("HOME", tmpDir)
	_ = os.Setenv("PULSETEST_MODEL", "env-model")
	_ = os.Unsetenv("PULSETEST_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Model.Name != "env-model" {
		t.Fatalf("expected env-substituted model name, got %q", cfg.Model.Name)
	}
	// Unknown tokens stay literal so missing secrets are visible, not silently blanked.
	if cfg.Gateway.AuthToken != "${PULSETEST_TOKEN}" {
		t.Fatalf("expected unknown env token unchanged, got %q", cfg.Gateway.AuthToken)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".pulseloom")
	os.MkdirAll(configDir, 0755)
	configJSON := `{"gateway": {"port": 9999}}`
	os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configJSON), 0600)

	origHome := os.Getenv("HOME")
	origPort := os.Getenv("PULSELOOM_GATEWAY_PORT")
	defer os.Setenv("HOME", origHome)
	defer os.Setenv("PULSELOOM_GATEWAY_PORT", origPort)
	_ = os.Setenv("HOME", tmpDir)
	_ = os.Setenv("PULSELOOM_GATEWAY_PORT", "12345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gateway.Port != 12345 {
		t.Errorf("expected env override port 12345, got %d", cfg.Gateway.Port)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".pulseloom")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(`{"model":`), 0o600); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	_ = os.Setenv("HOME", tmpDir)

	if _, err := Load(); err == nil {
		t.Fatal("expected JSON error, got nil")
	}
}

func TestConfigPathExplicitOverride(t *testing.T) {
	tmpDir := t.TempDir()
	explicit := filepath.Join(tmpDir, "custom.json")

	origConfig := os.Getenv("PULSELOOM_CONFIG")
	defer os.Setenv("PULSELOOM_CONFIG", origConfig)
	_ = os.Setenv("PULSELOOM_CONFIG", explicit)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}
	if path != explicit {
		t.Errorf("expected explicit config path %s, got %s", explicit, path)
	}
}

func TestConfigPathHomeOverride(t *testing.T) {
	tmpDir := t.TempDir()

	origConfig := os.Getenv("PULSELOOM_CONFIG")
	origHome := os.Getenv("PULSELOOM_HOME")
	defer os.Setenv("PULSELOOM_CONFIG", origConfig)
	defer os.Setenv("PULSELOOM_HOME", origHome)
	_ = os.Unsetenv("PULSELOOM_CONFIG")
	_ = os.Setenv("PULSELOOM_HOME", tmpDir)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}
	want := filepath.Join(tmpDir, ConfigDir, ConfigFile)
	if path != want {
		t.Errorf("expected config path %s, got %s", want, path)
	}
}

func TestDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.DataDir = "/var/lib/pulseloom"
	if got := cfg.DBPath(); got != "/var/lib/pulseloom/pulseloom.db" {
		t.Errorf("expected db path under data dir, got %s", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	_ = os.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Model.Name = "deepseek/deepseek-chat"
	cfg.Gateway.Port = 28990

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Model.Name != "deepseek/deepseek-chat" {
		t.Errorf("expected saved model name, got %s", loaded.Model.Name)
	}
	if loaded.Gateway.Port != 28990 {
		t.Errorf("expected saved gateway port, got %d", loaded.Gateway.Port)
	}
}
