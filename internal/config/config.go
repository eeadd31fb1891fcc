package config

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	// Store configuration
	Store StoreConfig `env:"STORE"`

	// Read-ahead configuration
	ReadAhead ReadAheadConfig `env:"READ_AHEAD"`

	// Logging configuration
	Logging LoggingConfig `env:"LOGGING"`

	// Metrics configuration
	Metrics MetricsConfig `env:"METRICS"`
}

// StoreConfig holds tiered store configuration
type StoreConfig struct {
	// Broker name this fetcher serves
	BrokerName string `env:"BROKER_NAME" envDefault:"broker-0"`

	// Data directory for the local tier
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// Maximum heap budget in bytes used to size the read-ahead cache
	MemoryBudgetBytes int64 `env:"MEMORY_BUDGET_BYTES" envDefault:"1073741824"`
}

// ReadAheadConfig holds read-ahead and cache tuning options
type ReadAheadConfig struct {
	// Fraction of the memory budget allowed for cache weight
	CacheSizeThresholdRate float64 `env:"READ_AHEAD_CACHE_SIZE_THRESHOLD_RATE" envDefault:"0.3"`

	// Time-to-live of a cache entry after write
	CacheExpireDuration time.Duration `env:"READ_AHEAD_CACHE_EXPIRE_DURATION" envDefault:"10s"`

	// Hard cap on total prefetch message count per trigger
	MessageCountThreshold int `env:"READ_AHEAD_MESSAGE_COUNT_THRESHOLD" envDefault:"2048"`

	// Hard cap on commit-log bytes per backend fetch
	MessageSizeThreshold int64 `env:"READ_AHEAD_MESSAGE_SIZE_THRESHOLD" envDefault:"134217728"`

	// Factor above which prefetch fans out to multiple concurrent batches
	BatchSizeFactorThreshold int `env:"READ_AHEAD_BATCH_SIZE_FACTOR_THRESHOLD" envDefault:"8"`

	// Batch multiplier used on synchronous full-miss fetches
	MinFactor int `env:"READ_AHEAD_MIN_FACTOR" envDefault:"2"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json"`

	// Log file path (empty for stdout)
	Output string `env:"LOG_OUTPUT" envDefault:""`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Metrics server address
	Addr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Metrics path
	Path string `env:"METRICS_PATH" envDefault:"/metrics"`

	// Enable OpenTelemetry tracing
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`

	// OpenTelemetry endpoint
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:""`

	// Fraction of pull/query spans sampled, in [0, 1]
	TracingSampleRatio float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1.0"`
}

// Load loads configuration from environment variables and command line flags
func Load() (*Config, error) {
	cfg := &Config{}

	// Load from environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Parse command line flags
	flag.StringVar(&cfg.Store.BrokerName, "broker-name", cfg.Store.BrokerName, "Broker name this fetcher serves")
	flag.StringVar(&cfg.Store.DataDir, "data-dir", cfg.Store.DataDir, "Data directory path")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format (json, text)")
	flag.StringVar(&cfg.Metrics.Addr, "metrics-addr", cfg.Metrics.Addr, "Metrics server address")
	flag.Parse()

	// Normalize paths
	cfg.Store.DataDir = filepath.Clean(cfg.Store.DataDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.BrokerName == "" {
		return fmt.Errorf("broker name cannot be empty")
	}

	if c.Store.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Store.MemoryBudgetBytes <= 0 {
		return fmt.Errorf("memory budget must be positive")
	}

	if c.ReadAhead.CacheSizeThresholdRate <= 0 || c.ReadAhead.CacheSizeThresholdRate > 1 {
		return fmt.Errorf("cache size threshold rate must be in (0, 1]: %v", c.ReadAhead.CacheSizeThresholdRate)
	}

	if c.ReadAhead.CacheExpireDuration <= 0 {
		return fmt.Errorf("cache expire duration must be positive: %v", c.ReadAhead.CacheExpireDuration)
	}

	if c.ReadAhead.MessageCountThreshold < 1 {
		return fmt.Errorf("message count threshold must be at least 1: %d", c.ReadAhead.MessageCountThreshold)
	}

	if c.ReadAhead.MessageSizeThreshold < 1 {
		return fmt.Errorf("message size threshold must be at least 1: %d", c.ReadAhead.MessageSizeThreshold)
	}

	if c.ReadAhead.BatchSizeFactorThreshold < 1 {
		return fmt.Errorf("batch size factor threshold must be at least 1: %d", c.ReadAhead.BatchSizeFactorThreshold)
	}

	if c.ReadAhead.MinFactor < 1 {
		return fmt.Errorf("min factor must be at least 1: %d", c.ReadAhead.MinFactor)
	}

	if c.Metrics.TracingSampleRatio < 0 || c.Metrics.TracingSampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be in [0, 1]: %v", c.Metrics.TracingSampleRatio)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// CacheMaxWeight returns the byte budget for the read-ahead cache
func (c *Config) CacheMaxWeight() int64 {
	return int64(float64(c.Store.MemoryBudgetBytes) * c.ReadAhead.CacheSizeThresholdRate)
}
