// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All durations are stored as integer fields with a unit suffix so they
//   round-trip through env vars and YAML without custom decoders.
// - External errors must be wrapped via this package's sentinel errors.
package config

import (
	"context"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // timezone names must resolve on hosts without zoneinfo
)

// Default configuration values.
const (
	defaultBaseURL        = "https://api.polygon.io"
	defaultTimezone       = "US/Eastern"
	defaultCacheDirName   = ".div_cache"
	defaultCacheFile      = "cachefile.db"
	defaultCacheTTLDays   = 30
	defaultPageSize       = 1000
	defaultRateLimitWait  = 60
	defaultConnectTimeout = 3000
	defaultReadTimeout    = 10_000
	defaultInitialCash    = 10_000.0
	defaultWarmWorkers    = 2
	defaultWarmQueueSize  = 256

	// BackendBolt stores cached dividends in a local bbolt file.
	BackendBolt = "bolt"
	// BackendRedis stores cached dividends in Redis.
	BackendRedis = "redis"
	// BackendMemory keeps cached dividends in process memory only.
	BackendMemory = "memory"
)

// Config contains process configuration. It is constructed once at process
// start and passed to the components that need it.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// APIKey authenticates against the dividend provider. It is not validated
	// here; a missing key surfaces as a provider authentication failure.
	APIKey string `koanf:"api_key"`

	// BaseURL is the dividend provider endpoint root.
	BaseURL string `koanf:"base_url"`

	// Timezone localizes dividend pay dates, e.g. "US/Eastern".
	Timezone string `koanf:"timezone"`

	// CacheBackend selects the dividend cache store: "bolt", "redis" or "memory".
	CacheBackend string `koanf:"cache_backend"`

	// CacheDir and CacheFile locate the bolt cache file.
	CacheDir  string `koanf:"cache_dir"`
	CacheFile string `koanf:"cache_file"`

	// CacheTTLDays is the expiration horizon of cached fetches.
	CacheTTLDays int `koanf:"cache_ttl_days"`

	// RedisAddr is used when CacheBackend is "redis".
	RedisAddr string `koanf:"redis_addr"`

	// PageSize is the provider page limit.
	PageSize int `koanf:"page_size"`

	// RateLimitWaitSeconds is the pause after an HTTP 429.
	RateLimitWaitSeconds int `koanf:"rate_limit_wait_seconds"`

	// RateLimitMaxRetries caps consecutive 429 retries; 0 retries forever.
	RateLimitMaxRetries int `koanf:"rate_limit_max_retries"`

	// RateLimitMultiplier grows the wait after each consecutive 429; 1 keeps it flat.
	RateLimitMultiplier float64 `koanf:"rate_limit_multiplier"`

	// ConnectTimeoutMS and ReadTimeoutMS bound each provider request.
	ConnectTimeoutMS int `koanf:"connect_timeout_ms"`
	ReadTimeoutMS    int `koanf:"read_timeout_ms"`

	// InitialCash is the default amount invested by simulations.
	InitialCash float64 `koanf:"initial_cash"`

	// WarmWorkers and WarmQueueSize size the background cache warming pool.
	WarmWorkers   int `koanf:"warm_workers"`
	WarmQueueSize int `koanf:"warm_queue_size"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		BaseURL:              defaultBaseURL,
		Timezone:             defaultTimezone,
		CacheBackend:         BackendBolt,
		CacheDir:             defaultCacheDir(),
		CacheFile:            defaultCacheFile,
		CacheTTLDays:         defaultCacheTTLDays,
		RedisAddr:            "localhost:6379",
		PageSize:             defaultPageSize,
		RateLimitWaitSeconds: defaultRateLimitWait,
		RateLimitMaxRetries:  0,
		RateLimitMultiplier:  1,
		ConnectTimeoutMS:     defaultConnectTimeout,
		ReadTimeoutMS:        defaultReadTimeout,
		InitialCash:          defaultInitialCash,
		WarmWorkers:          defaultWarmWorkers,
		WarmQueueSize:        defaultWarmQueueSize,
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), defaultCacheDirName)
	}
	return filepath.Join(home, defaultCacheDirName)
}

// Location resolves Timezone. Load already validated it, so a failure here
// falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CachePath is the full path of the bolt cache file.
func (c *Config) CachePath() string { return filepath.Join(c.CacheDir, c.CacheFile) }

// CacheTTL is the cache expiration horizon.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// RateLimitWait is the pause after an HTTP 429.
func (c *Config) RateLimitWait() time.Duration {
	return time.Duration(c.RateLimitWaitSeconds) * time.Second
}

// ConnectTimeout bounds connection establishment per request.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// ReadTimeout bounds the wait for a response per request.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}
