// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Fetcher mode names accepted by fetcher.mode.
const (
	FetcherModeHTTP     = "http"
	FetcherModeHeadless = "headless"
)

// Ledger backend names accepted by ledger.backend.
const (
	LedgerBackendFile     = "file"
	LedgerBackendPostgres = "postgres"
)

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Links    LinksConfig    `mapstructure:"links"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Server   ServerConfig   `mapstructure:"server"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LinksConfig locates the curated link list.
type LinksConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig sets the archive root and the optional GCS mirror bucket.
type StorageConfig struct {
	Root      string `mapstructure:"root"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LedgerConfig selects and configures the failure ledger backend.
type LedgerConfig struct {
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	DSN            string `mapstructure:"dsn"`
	CooldownHours  int    `mapstructure:"cooldown_hours"`
	MaxFailures    int    `mapstructure:"max_failures"`
	FailuresTable  string `mapstructure:"failures_table"`
	PermanentTable string `mapstructure:"permanent_table"`
}

// PipelineConfig governs the worker pool and per-URL budgets.
type PipelineConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	AssetTimeoutSeconds int `mapstructure:"asset_timeout_seconds"`
}

// FetcherConfig selects the page fetcher.
type FetcherConfig struct {
	Mode           string `mapstructure:"mode"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	RenderPDF     bool `mapstructure:"render_pdf"`
}

// ServerConfig controls the operator HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PubSubConfig holds metadata for archive event notifications. Both fields
// empty disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKVAULT")
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
	v.SetDefault("links.path", "links.yaml")
	v.SetDefault("storage.root", "archive")
	v.SetDefault("ledger.backend", LedgerBackendFile)
	v.SetDefault("ledger.path", "ledger")
	v.SetDefault("ledger.cooldown_hours", 168)
	v.SetDefault("ledger.max_failures", 5)
	v.SetDefault("pipeline.concurrency", 2)
	v.SetDefault("pipeline.fetch_timeout_seconds", 30)
	v.SetDefault("pipeline.asset_timeout_seconds", 10)
	v.SetDefault("fetcher.mode", FetcherModeHTTP)
	v.SetDefault("fetcher.user_agent", "linkvault-bot/0.1")
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.render_pdf", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Violations are
// reported as a ConfigError so the caller can refuse to start the run.
func (c Config) Validate() error {
	if c.Links.Path == "" {
		return &archive.ConfigError{Reason: "links.path must be set"}
	}
	if c.Storage.Root == "" {
		return &archive.ConfigError{Reason: "storage.root must be set"}
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 4 {
		return &archive.ConfigError{Reason: "pipeline.concurrency must be between 1 and 4"}
	}
	if c.Pipeline.FetchTimeoutSeconds <= 0 {
		return &archive.ConfigError{Reason: "pipeline.fetch_timeout_seconds must be > 0"}
	}
	switch c.Fetcher.Mode {
	case FetcherModeHTTP, FetcherModeHeadless:
	default:
		return &archive.ConfigError{Reason: fmt.Sprintf("fetcher.mode must be %q or %q", FetcherModeHTTP, FetcherModeHeadless)}
	}
	if c.Fetcher.Mode == FetcherModeHeadless && c.Headless.MaxParallel <= 0 {
		return &archive.ConfigError{Reason: "headless.max_parallel must be > 0 when fetcher.mode is headless"}
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile:
		if c.Ledger.Path == "" {
			return &archive.ConfigError{Reason: "ledger.path must be set for the file backend"}
		}
	case LedgerBackendPostgres:
		if c.Ledger.DSN == "" {
			return &archive.ConfigError{Reason: "ledger.dsn must be set for the postgres backend"}
		}
	default:
		return &archive.ConfigError{Reason: fmt.Sprintf("ledger.backend must be %q or %q", LedgerBackendFile, LedgerBackendPostgres)}
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return &archive.ConfigError{Reason: "server.port must be > 0 when the server is enabled"}
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return &archive.ConfigError{Reason: "pubsub.project_id and pubsub.topic_name must be set together"}
	}
	return nil
}

// FetchTimeout converts the configured per-URL budget into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.FetchTimeoutSeconds) * time.Second
}

// AssetTimeout converts the configured asset budget into a duration.
func (c Config) AssetTimeout() time.Duration {
	return time.Duration(c.Pipeline.AssetTimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation budget into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// Cooldown converts the configured cooldown window into a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Ledger.CooldownHours) * time.Hour
}

// PublishEnabled reports whether archive events should be published.
func (c Config) PublishEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}
