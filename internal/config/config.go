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
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Sync      SyncConfig      `mapstructure:"sync"`
	State     StateConfig     `mapstructure:"state"`
	Output    OutputConfig    `mapstructure:"output"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FirecrawlConfig configures the remote scrape service client.
type FirecrawlConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	BackoffInitialMs  int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int    `mapstructure:"backoff_max_ms"`
	IncludeSubdomains bool   `mapstructure:"include_subdomains"`
	IgnoreQueryParams bool   `mapstructure:"ignore_query_params"`
	DiscoveryLimit    int    `mapstructure:"discovery_limit"`
}

// BatchConfig governs batch job submission and polling.
type BatchConfig struct {
	MaxItems            int `mapstructure:"max_items"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PollBudgetSeconds   int `mapstructure:"poll_budget_seconds"`
}

// SyncConfig governs diffing and reconciliation.
type SyncConfig struct {
	MissThreshold int `mapstructure:"miss_threshold"`
	SlugMaxLen    int `mapstructure:"slug_max_len"`
}

// StateConfig selects and configures the run-state store.
type StateConfig struct {
	// Backend is one of file, memory, postgres.
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	DSN     string `mapstructure:"dsn"`
}

// OutputConfig selects and configures the skill-folder document store.
type OutputConfig struct {
	// Backend is one of local, memory, gcs.
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for run-event notifications. An empty
// ProjectID disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// SKILLFOLDER_ prefix with dots flattened to underscores, so firecrawl.api_key
// becomes SKILLFOLDER_FIRECRAWL_API_KEY.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SKILLFOLDER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev")
	v.SetDefault("firecrawl.timeout_seconds", 120)
	v.SetDefault("firecrawl.max_retries", 5)
	v.SetDefault("firecrawl.backoff_initial_ms", 2000)
	v.SetDefault("firecrawl.backoff_max_ms", 60000)
	v.SetDefault("firecrawl.include_subdomains", false)
	v.SetDefault("firecrawl.ignore_query_params", true)
	v.SetDefault("firecrawl.discovery_limit", 100000)
	v.SetDefault("batch.max_items", 100)
	v.SetDefault("batch.poll_interval_seconds", 5)
	v.SetDefault("batch.poll_budget_seconds", 600)
	v.SetDefault("sync.miss_threshold", 3)
	v.SetDefault("sync.slug_max_len", 80)
	v.SetDefault("state.backend", "file")
	v.SetDefault("state.dir", "./state")
	v.SetDefault("output.backend", "local")
	v.SetDefault("output.dir", "./skills")
	v.SetDefault("output.gcs_prefix", "skills")
	v.SetDefault("pubsub.topic_name", "skill-folder-runs")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Firecrawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("firecrawl.timeout_seconds must be > 0")
	}
	if c.Firecrawl.MaxRetries <= 0 {
		return fmt.Errorf("firecrawl.max_retries must be > 0")
	}
	if c.Batch.MaxItems <= 0 {
		return fmt.Errorf("batch.max_items must be > 0")
	}
	if c.Batch.PollIntervalSeconds <= 0 {
		return fmt.Errorf("batch.poll_interval_seconds must be > 0")
	}
	if c.Batch.PollBudgetSeconds < c.Batch.PollIntervalSeconds {
		return fmt.Errorf("batch.poll_budget_seconds must be >= batch.poll_interval_seconds")
	}
	if c.Sync.MissThreshold <= 0 {
		return fmt.Errorf("sync.miss_threshold must be > 0")
	}
	if c.Sync.SlugMaxLen < 8 {
		return fmt.Errorf("sync.slug_max_len must be >= 8")
	}
	switch c.State.Backend {
	case "file", "memory":
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend must be one of file, memory, postgres")
	}
	switch c.Output.Backend {
	case "local", "memory":
	case "gcs":
		if c.Output.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("output.backend must be one of local, memory, gcs")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when auth is enabled")
	}
	return nil
}

// Timeout returns the client timeout as a duration.
func (c FirecrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the poll interval as a duration.
func (c BatchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollBudget returns the poll budget as a duration.
func (c BatchConfig) PollBudget() time.Duration {
	return time.Duration(c.PollBudgetSeconds) * time.Second
}
