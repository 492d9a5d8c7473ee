// Package config provides configuration management for the ingestion
// pipeline. Values come from defaults, an optional YAML file, and
// PAPERFLOW_* environment variables, in increasing order of precedence.
// Secrets are read exclusively from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/GhUserLiu/paperflow/internal/observability"
)

// envPrefix namespaces all environment variables.
const envPrefix = "PAPERFLOW"

// Config holds all configuration for the ingestion pipeline.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Store contains bibliography store connection settings.
	Store StoreConfig `mapstructure:"store"`
	// Quota contains the store's rolling-window rate limit settings.
	Quota QuotaConfig `mapstructure:"quota"`
	// Cache contains duplicate-lookup cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Dedup contains duplicate resolution settings.
	Dedup DedupConfig `mapstructure:"dedup"`
	// Pipeline contains batch ingestion settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Ranker contains composite scoring settings.
	Ranker RankerConfig `mapstructure:"ranker"`
	// Sources contains discovery source settings.
	Sources SourcesConfig `mapstructure:"sources"`
	// ScholarMetrics contains journal metrics lookup settings.
	ScholarMetrics ScholarMetricsConfig `mapstructure:"scholar_metrics"`
	// PDF contains attachment download settings.
	PDF PDFConfig `mapstructure:"pdf"`
	// Admin contains daemon admin endpoint settings.
	Admin AdminConfig `mapstructure:"admin"`
	// Schedule contains daemon collection schedule settings.
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	// Format is the output format (json, console, pretty).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
	// AddSource adds source file and line to log entries.
	AddSource bool `mapstructure:"add_source"`
}

// Observability converts to the logger's config type.
func (c LoggingConfig) Observability() observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:     c.Level,
		Format:    c.Format,
		Output:    c.Output,
		AddSource: c.AddSource,
	}
}

// StoreConfig holds bibliography store connection settings.
type StoreConfig struct {
	// BaseURL is the store API endpoint.
	BaseURL string `mapstructure:"base_url"`
	// LibraryID identifies the target library.
	LibraryID string `mapstructure:"library_id" validate:"required"`
	// LibraryType is "users" or "groups".
	LibraryType string `mapstructure:"library_type" validate:"oneof=users groups"`
	// Collection is the optional target collection key for new items.
	Collection string `mapstructure:"collection"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// APIKey is read from PAPERFLOW_STORE_API_KEY only.
	APIKey string `mapstructure:"-" validate:"required"`
}

// QuotaConfig holds the rolling-window limiter settings for store writes.
type QuotaConfig struct {
	// Window is the rolling quota window.
	Window time.Duration `mapstructure:"window" validate:"gt=0"`
	// MaxRequests is the hard request cap per window.
	MaxRequests int `mapstructure:"max_requests" validate:"gt=0"`
	// ThresholdFraction is the fraction of the cap at which sending pauses.
	ThresholdFraction float64 `mapstructure:"threshold_fraction" validate:"gt=0,lte=1"`
	// MinInterval is the minimum spacing between consecutive requests.
	MinInterval time.Duration `mapstructure:"min_interval" validate:"gte=0"`
	// Buffer is the safety margin added to quota waits.
	Buffer time.Duration `mapstructure:"buffer" validate:"gte=0"`
}

// CacheConfig holds duplicate-lookup cache settings.
type CacheConfig struct {
	// TTL is the entry lifetime.
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
	// MaxEntries caps the cache size.
	MaxEntries int `mapstructure:"max_entries" validate:"gt=0"`
	// EvictEntries is how many entries one eviction pass removes.
	EvictEntries int `mapstructure:"evict_entries" validate:"gte=0"`
}

// DedupConfig holds duplicate resolution settings.
type DedupConfig struct {
	// Mode is "global" (whole library) or "scoped" (target collection only).
	Mode string `mapstructure:"mode" validate:"oneof=global scoped"`
	// ScanLimit bounds global duplicate scans.
	ScanLimit int `mapstructure:"scan_limit" validate:"gt=0"`
	// ScopedScanLimit bounds collection-scoped duplicate scans.
	ScopedScanLimit int `mapstructure:"scoped_scan_limit" validate:"gt=0"`
}

// PipelineConfig holds batch ingestion settings.
type PipelineConfig struct {
	// Workers is the number of concurrent ingestion workers.
	Workers int `mapstructure:"workers" validate:"gt=0"`
	// BatchTimeout bounds one batch run. Zero means no limit.
	BatchTimeout time.Duration `mapstructure:"batch_timeout" validate:"gte=0"`
	// DownloadAttachments enables PDF download and upload.
	DownloadAttachments bool `mapstructure:"download_attachments"`
}

// RankerConfig holds composite scoring settings. Empty maps fall back to
// the ranker package defaults.
type RankerConfig struct {
	// Weights maps metric names to their share of the composite score.
	Weights map[string]float64 `mapstructure:"weights"`
	// Defaults maps metric names to the value used when a metric is absent.
	Defaults map[string]float64 `mapstructure:"defaults"`
	// Ranges maps metric names to "min,max" normalization bounds.
	Ranges map[string]RangeConfig `mapstructure:"ranges"`
}

// RangeConfig is one metric's normalization range.
type RangeConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// SourcesConfig holds per-source discovery settings.
type SourcesConfig struct {
	ArXiv    SourceConfig `mapstructure:"arxiv"`
	ChinaXiv SourceConfig `mapstructure:"chinaxiv"`
}

// SourceConfig holds one discovery source's settings.
type SourceConfig struct {
	// Enabled includes this source in searches.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL overrides the source's default API endpoint.
	BaseURL string `mapstructure:"base_url"`
	// MaxResults caps results per search.
	MaxResults int `mapstructure:"max_results" validate:"gte=0"`
	// RateLimit is the sustained request rate per second.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// BurstSize is the token-bucket burst size.
	BurstSize int `mapstructure:"burst_size" validate:"gte=0"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ScholarMetricsConfig holds journal metrics lookup settings.
type ScholarMetricsConfig struct {
	// Enabled turns metrics lookup on for ranking.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL overrides the default metrics API endpoint.
	BaseURL string `mapstructure:"base_url"`
	// Email is the polite-pool contact address.
	Email string `mapstructure:"email"`
	// CachePath is the persistent metrics cache file. Empty keeps the
	// cache in memory only.
	CachePath string `mapstructure:"cache_path"`
}

// PDFConfig holds attachment download settings.
type PDFConfig struct {
	// Timeout is the per-download timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// MaxSizeMB caps downloaded file size.
	MaxSizeMB int `mapstructure:"max_size_mb" validate:"gte=0"`
	// UserAgent is sent with download requests.
	UserAgent string `mapstructure:"user_agent"`
}

// AdminConfig holds the daemon's admin HTTP endpoint settings.
type AdminConfig struct {
	// Addr is the listen address for /healthz and /metrics.
	Addr string `mapstructure:"addr" validate:"required"`
	// MetricsNamespace prefixes all Prometheus metric names.
	MetricsNamespace string `mapstructure:"metrics_namespace" validate:"required"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// ScheduleConfig holds the daemon's collection schedule.
type ScheduleConfig struct {
	// Cron is the collection schedule in cron syntax.
	Cron string `mapstructure:"cron" validate:"required"`
	// Query is the search query run on each tick.
	Query string `mapstructure:"query"`
	// Categories restricts scheduled searches.
	Categories []string `mapstructure:"categories"`
	// MaxResults caps records per scheduled run.
	MaxResults int `mapstructure:"max_results" validate:"gte=0"`
	// LookbackDays bounds the publication date filter.
	LookbackDays int `mapstructure:"lookback_days" validate:"gte=0"`
}

// Load reads configuration from defaults, an optional config file and the
// environment, then validates the result. An empty path searches the usual
// locations.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/paperflow")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// No config file is fine; env vars and defaults apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadSecrets reads credentials from the environment. These fields carry
// mapstructure:"-" so they can never come from a config file.
func loadSecrets(cfg *Config) {
	cfg.Store.APIKey = os.Getenv(envPrefix + "_STORE_API_KEY")
}

// setDefaults installs the documented default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)

	// Empty defaults keep env-only keys visible to Unmarshal.
	v.SetDefault("store.base_url", "https://api.zotero.org")
	v.SetDefault("store.library_id", "")
	v.SetDefault("store.library_type", "users")
	v.SetDefault("store.collection", "")
	v.SetDefault("store.timeout", 30*time.Second)

	v.SetDefault("quota.window", 600*time.Second)
	v.SetDefault("quota.max_requests", 100)
	v.SetDefault("quota.threshold_fraction", 0.9)
	v.SetDefault("quota.min_interval", 6*time.Second)
	v.SetDefault("quota.buffer", 5*time.Second)

	v.SetDefault("cache.ttl", 300*time.Second)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.evict_entries", 200)

	v.SetDefault("dedup.mode", "global")
	v.SetDefault("dedup.scan_limit", 500)
	v.SetDefault("dedup.scoped_scan_limit", 100)

	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.batch_timeout", time.Duration(0))
	v.SetDefault("pipeline.download_attachments", true)

	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "")
	v.SetDefault("sources.arxiv.max_results", 100)
	v.SetDefault("sources.arxiv.rate_limit", 3.0)
	v.SetDefault("sources.arxiv.burst_size", 3)
	v.SetDefault("sources.arxiv.timeout", 30*time.Second)

	v.SetDefault("sources.chinaxiv.enabled", false)
	v.SetDefault("sources.chinaxiv.base_url", "")
	v.SetDefault("sources.chinaxiv.max_results", 50)
	v.SetDefault("sources.chinaxiv.rate_limit", 1.0)
	v.SetDefault("sources.chinaxiv.burst_size", 1)
	v.SetDefault("sources.chinaxiv.timeout", 30*time.Second)

	v.SetDefault("scholar_metrics.enabled", true)
	v.SetDefault("scholar_metrics.base_url", "https://api.openalex.org")
	v.SetDefault("scholar_metrics.email", "")
	v.SetDefault("scholar_metrics.cache_path", "")

	v.SetDefault("pdf.timeout", 60*time.Second)
	v.SetDefault("pdf.max_size_mb", 50)
	v.SetDefault("pdf.user_agent", "paperflow/1.0")

	v.SetDefault("admin.addr", ":9090")
	v.SetDefault("admin.metrics_namespace", "paperflow")
	v.SetDefault("admin.shutdown_timeout", 10*time.Second)

	v.SetDefault("schedule.cron", "0 6 * * *")
	v.SetDefault("schedule.query", "")
	v.SetDefault("schedule.max_results", 50)
	v.SetDefault("schedule.lookback_days", 7)
}

// Validate checks structural constraints plus the handful of rules struct
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return err
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %s failed %q validation", f.Namespace(), f.Tag())
		}
		return err
	}

	if c.Cache.EvictEntries > c.Cache.MaxEntries {
		return fmt.Errorf("cache evict_entries (%d) must not exceed max_entries (%d)", c.Cache.EvictEntries, c.Cache.MaxEntries)
	}
	if c.Dedup.Mode == "scoped" && c.Store.Collection == "" {
		return fmt.Errorf("dedup mode %q requires store.collection to be set", c.Dedup.Mode)
	}
	for name, w := range c.Ranker.Weights {
		if w < 0 {
			return fmt.Errorf("ranker weight %q must not be negative", name)
		}
	}
	for name, r := range c.Ranker.Ranges {
		if r.Max <= r.Min {
			return fmt.Errorf("ranker range %q must have max > min", name)
		}
	}
	return nil
}
