package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".pulseloom"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("PULSELOOM_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("PULSELOOM_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load process env vars from ~/.config/pulseloom/env (and fallbacks) first.
	LoadEnvFileCandidates()

	// Load from file
	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := loadResolvedConfig(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("PULSELOOM_PATHS", &cfg.Paths)
	envconfig.Process("PULSELOOM_MODEL", &cfg.Model)
	envconfig.Process("PULSELOOM_ANTHROPIC", &cfg.Providers.Anthropic)
	envconfig.Process("PULSELOOM_OPENAI", &cfg.Providers.OpenAI)
	envconfig.Process("PULSELOOM_OPENROUTER", &cfg.Providers.OpenRouter)
	envconfig.Process("PULSELOOM_DEEPSEEK", &cfg.Providers.DeepSeek)
	envconfig.Process("PULSELOOM_GROQ", &cfg.Providers.Groq)
	envconfig.Process("PULSELOOM_VLLM", &cfg.Providers.VLLM)
	envconfig.Process("PULSELOOM_GATEWAY", &cfg.Gateway)
	envconfig.Process("PULSELOOM_INGEST", &cfg.Ingest)
	envconfig.Process("PULSELOOM_ANALYSIS", &cfg.Analysis)
	envconfig.Process("PULSELOOM_INSIGHT", &cfg.Insight)
	envconfig.Process("PULSELOOM_RATELIMIT", &cfg.RateLimit)
	envconfig.Process("PULSELOOM_SCHEDULER", &cfg.Scheduler)

	// Fallback for API keys
	if cfg.Providers.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Providers.OpenAI.APIKey = key
		}
	}
	if cfg.Providers.Anthropic.APIKey == "" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.Providers.Anthropic.APIKey = key
		}
	}
	if cfg.Providers.OpenRouter.APIKey == "" {
		if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Providers.OpenRouter.APIKey = key
		}
	}

	// Expand ~ in paths
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Paths.DataDir = filepath.Join(home, cfg.Paths.DataDir[1:])
		}
	}

	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = 8192
	}
	if cfg.Analysis.MaxTokens <= 0 {
		cfg.Analysis.MaxTokens = 4096
	}
	if cfg.Insight.MaxTokens <= 0 {
		cfg.Insight.MaxTokens = 4096
	}
	if cfg.RateLimit.AnalysisInterval <= 0 {
		cfg.RateLimit.AnalysisInterval = DefaultConfig().RateLimit.AnalysisInterval
	}
	if cfg.RateLimit.InsightInterval <= 0 {
		cfg.RateLimit.InsightInterval = DefaultConfig().RateLimit.InsightInterval
	}
	if cfg.Scheduler.MonthlyCron == "" {
		cfg.Scheduler.MonthlyCron = DefaultConfig().Scheduler.MonthlyCron
	}
	if cfg.Scheduler.QuarterlyCron == "" {
		cfg.Scheduler.QuarterlyCron = DefaultConfig().Scheduler.QuarterlyCron
	}

	return cfg, nil
}

// DBPath returns the SQLite database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "pulseloom.db")
}

// AnalysisModel returns the model string for the analysis stages,
// falling back to the global model.
func (c *Config) AnalysisModel() string {
	if c.Analysis.Model != "" {
		return c.Analysis.Model
	}
	return c.Model.Name
}

// InsightModel returns the model string for the synthesis pipeline,
// falling back to the global model.
func (c *Config) InsightModel() string {
	if c.Insight.Model != "" {
		return c.Insight.Model
	}
	return c.Model.Name
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadResolvedConfig reads the config file and expands ${ENV_VAR}
// references against the process environment. Unset variables resolve to
// the empty string.
func loadResolvedConfig(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	resolved := envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
	return resolved, nil
}
