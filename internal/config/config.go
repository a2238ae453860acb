// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WorkerConfig governs the dispatcher and its queue.
type WorkerConfig struct {
	Concurrency         int    `mapstructure:"concurrency"`
	QueueDepth          int    `mapstructure:"queue_depth"`
	Queue               string `mapstructure:"queue"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
}

// PipelineConfig tunes the job phases.
type PipelineConfig struct {
	MapLimit           int `mapstructure:"map_limit"`
	SummaryConcurrency int `mapstructure:"summary_concurrency"`
}

// CrawlerConfig selects and configures the site crawler.
type CrawlerConfig struct {
	Provider          string  `mapstructure:"provider"`
	FirecrawlAPIKey   string  `mapstructure:"firecrawl_api_key"`
	FirecrawlBaseURL  string  `mapstructure:"firecrawl_base_url"`
	WaitForMs         int     `mapstructure:"wait_for_ms"`
	UserAgent         string  `mapstructure:"user_agent"`
	MaxPages          int     `mapstructure:"max_pages"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RenderJS          bool    `mapstructure:"render_js"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LLMConfig configures the Anthropic client.
type LLMConfig struct {
	AnthropicAPIKey       string  `mapstructure:"anthropic_api_key"`
	BaseURL               string  `mapstructure:"base_url"`
	Model                 string  `mapstructure:"model"`
	ModelAdvanced         string  `mapstructure:"model_advanced"`
	SummaryTimeoutSeconds int     `mapstructure:"summary_timeout_seconds"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second"`
}

// StorageConfig selects where generated artifacts are written.
type StorageConfig struct {
	Type       string `mapstructure:"type"`
	OutputsDir string `mapstructure:"outputs_dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	Prefix     string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory repository.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for job outcome notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}

// Crawler providers.
const (
	CrawlerFirecrawl = "firecrawl"
	CrawlerLocal     = "local"
)

// Storage types.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Queue types.
const (
	QueueMemory   = "memory"
	QueuePostgres = "postgres"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LLMSTXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.queue", QueueMemory)
	v.SetDefault("worker.poll_interval_seconds", 2)
	v.SetDefault("pipeline.map_limit", 500)
	v.SetDefault("pipeline.summary_concurrency", 5)
	v.SetDefault("crawler.provider", CrawlerFirecrawl)
	v.SetDefault("crawler.firecrawl_api_key", "")
	v.SetDefault("crawler.firecrawl_base_url", "https://api.firecrawl.dev")
	v.SetDefault("crawler.wait_for_ms", 3000)
	v.SetDefault("crawler.user_agent", "llmstxt-bot/0.1")
	v.SetDefault("crawler.max_pages", 500)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.render_js", false)
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.model_advanced", "claude-sonnet-4-5")
	v.SetDefault("llm.summary_timeout_seconds", 30)
	v.SetDefault("llm.requests_per_second", 0.0)
	v.SetDefault("storage.type", StorageLocal)
	v.SetDefault("storage.outputs_dir", "./outputs")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "llmstxtd")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	switch c.Worker.Queue {
	case QueueMemory:
	case QueuePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when worker.queue is postgres")
		}
	default:
		return fmt.Errorf("worker.queue must be one of memory, postgres")
	}
	if c.Pipeline.MapLimit <= 0 {
		return fmt.Errorf("pipeline.map_limit must be > 0")
	}
	switch c.Crawler.Provider {
	case CrawlerFirecrawl, CrawlerLocal:
	default:
		return fmt.Errorf("crawler.provider must be one of firecrawl, local")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.LLM.SummaryTimeoutSeconds <= 0 {
		return fmt.Errorf("llm.summary_timeout_seconds must be > 0")
	}
	switch c.Storage.Type {
	case StorageLocal:
		if c.Storage.OutputsDir == "" {
			return fmt.Errorf("storage.outputs_dir must be set for local storage")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for gcs storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.type must be one of local, gcs, memory")
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must be <= db.max_conns")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// SummaryTimeout is the per-page LLM call budget.
func (c Config) SummaryTimeout() time.Duration {
	return time.Duration(c.LLM.SummaryTimeoutSeconds) * time.Second
}

// CrawlTimeout is the per-request budget for crawler HTTP calls.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// PollInterval is how often the postgres queue polls for new items.
func (c Config) PollInterval() time.Duration {
	if c.Worker.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Worker.PollIntervalSeconds) * time.Second
}
