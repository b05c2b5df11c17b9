// Package config provides configuration types and loading for pulseloom.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Gateway, Ingest, Analysis,
// Insight, RateLimit, Scheduler.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Model     ModelConfig     `json:"model"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Ingest    IngestConfig    `json:"ingest"`
	Analysis  AnalysisConfig  `json:"analysis"`
	Insight   InsightConfig   `json:"insight"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model settings shared by all stages.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	VLLM       ProviderConfig `json:"vllm"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host      string `json:"host" envconfig:"HOST"`
	Port      int    `json:"port" envconfig:"PORT"`
	AuthToken string `json:"authToken" envconfig:"AUTH_TOKEN"`
	TLSCert   string `json:"tlsCert" envconfig:"TLS_CERT"`
	TLSKey    string `json:"tlsKey" envconfig:"TLS_KEY"`
}

// ---------------------------------------------------------------------------
// Ingest – weekly activity intake via Kafka
// ---------------------------------------------------------------------------

// IngestConfig contains settings for the Kafka activity consumers.
type IngestConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"ENABLED"`
	KafkaBrokers  string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"KAFKA_CONSUMER_GROUP"`
	GitHubTopic   string `json:"githubTopic" envconfig:"GITHUB_TOPIC"`
	SlackTopic    string `json:"slackTopic" envconfig:"SLACK_TOPIC"`
}

// ---------------------------------------------------------------------------
// Analysis – manager analysis workflow
// ---------------------------------------------------------------------------

// AnalysisConfig contains settings for the debate/arbiter/guidance stages.
type AnalysisConfig struct {
	Model       string  `json:"model,omitempty" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// ---------------------------------------------------------------------------
// Insight – monthly/quarterly synthesis pipeline
// ---------------------------------------------------------------------------

// InsightConfig contains settings for the synthesis pipeline.
type InsightConfig struct {
	Model       string  `json:"model,omitempty" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
	SinglePass  bool    `json:"singlePass" envconfig:"SINGLE_PASS"`
}

// ---------------------------------------------------------------------------
// RateLimit – provider call pacing
// ---------------------------------------------------------------------------

// RateLimitConfig contains minimum spacing between generator calls per
// purpose key.
type RateLimitConfig struct {
	AnalysisInterval time.Duration `json:"analysisInterval" envconfig:"ANALYSIS_INTERVAL"`
	InsightInterval  time.Duration `json:"insightInterval" envconfig:"INSIGHT_INTERVAL"`
}

// ---------------------------------------------------------------------------
// Scheduler – cron-based synthesis sweeps
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the cron scheduler.
type SchedulerConfig struct {
	Enabled        bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval   time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	MaxConcLLM     int           `json:"maxConcLLM" envconfig:"MAX_CONC_LLM"`
	MaxConcIngest  int           `json:"maxConcIngest" envconfig:"MAX_CONC_INGEST"`
	MaxConcDefault int           `json:"maxConcDefault" envconfig:"MAX_CONC_DEFAULT"`
	MonthlyCron    string        `json:"monthlyCron" envconfig:"MONTHLY_CRON"`
	QuarterlyCron  string        `json:"quarterlyCron" envconfig:"QUARTERLY_CRON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.pulseloom",
		},
		Model: ModelConfig{
			Name:        "anthropic/claude-sonnet-4-5",
			MaxTokens:   8192,
			Temperature: 0.2,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18990,
		},
		Ingest: IngestConfig{
			Enabled:       false,
			KafkaBrokers:  "localhost:9092",
			ConsumerGroup: "pulseloom-ingest",
			GitHubTopic:   "pulse.github.weekly",
			SlackTopic:    "pulse.slack.weekly",
		},
		Analysis: AnalysisConfig{
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Insight: InsightConfig{
			MaxTokens:   4096,
			Temperature: 0.2,
			SinglePass:  true,
		},
		RateLimit: RateLimitConfig{
			AnalysisInterval: 2 * time.Second,
			InsightInterval:  time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			TickInterval:   60 * time.Second,
			MaxConcLLM:     2,
			MaxConcIngest:  2,
			MaxConcDefault: 5,
			MonthlyCron:    "0 6 1 * *",
			QuarterlyCron:  "0 7 1 1,4,7,10 *",
		},
	}
}
