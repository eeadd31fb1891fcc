package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "broker-0", cfg.Store.BrokerName)
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.Equal(t, int64(1<<30), cfg.Store.MemoryBudgetBytes)

	assert.Equal(t, 0.3, cfg.ReadAhead.CacheSizeThresholdRate)
	assert.Equal(t, 10*time.Second, cfg.ReadAhead.CacheExpireDuration)
	assert.Equal(t, 2048, cfg.ReadAhead.MessageCountThreshold)
	assert.Equal(t, int64(128<<20), cfg.ReadAhead.MessageSizeThreshold)
	assert.Equal(t, 8, cfg.ReadAhead.BatchSizeFactorThreshold)
	assert.Equal(t, 2, cfg.ReadAhead.MinFactor)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("READ_AHEAD_MIN_FACTOR", "4")
	t.Setenv("READ_AHEAD_CACHE_EXPIRE_DURATION", "30s")
	t.Setenv("BROKER_NAME", "broker-7")

	cfg := defaultConfig(t)
	assert.Equal(t, 4, cfg.ReadAhead.MinFactor)
	assert.Equal(t, 30*time.Second, cfg.ReadAhead.CacheExpireDuration)
	assert.Equal(t, "broker-7", cfg.Store.BrokerName)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty broker name", func(c *Config) { c.Store.BrokerName = "" }},
		{"empty data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"zero memory budget", func(c *Config) { c.Store.MemoryBudgetBytes = 0 }},
		{"rate zero", func(c *Config) { c.ReadAhead.CacheSizeThresholdRate = 0 }},
		{"rate above one", func(c *Config) { c.ReadAhead.CacheSizeThresholdRate = 1.5 }},
		{"zero expire duration", func(c *Config) { c.ReadAhead.CacheExpireDuration = 0 }},
		{"zero count threshold", func(c *Config) { c.ReadAhead.MessageCountThreshold = 0 }},
		{"zero size threshold", func(c *Config) { c.ReadAhead.MessageSizeThreshold = 0 }},
		{"zero batch factor threshold", func(c *Config) { c.ReadAhead.BatchSizeFactorThreshold = 0 }},
		{"zero min factor", func(c *Config) { c.ReadAhead.MinFactor = 0 }},
		{"sample ratio above one", func(c *Config) { c.Metrics.TracingSampleRatio = 1.5 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_CacheMaxWeight(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Store.MemoryBudgetBytes = 1000
	cfg.ReadAhead.CacheSizeThresholdRate = 0.3
	assert.Equal(t, int64(300), cfg.CacheMaxWeight())
}
