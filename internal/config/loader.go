package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names read by Load.
const (
	EnvPrefix     = "DIVSNOW_"
	EnvConfigFile = "DIVSNOW_CONFIG"
	EnvPolygonKey = "POLYGON_API_KEY"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if DIVSNOW_CONFIG is set
//  3. env (prefix DIVSNOW_)
//  4. POLYGON_API_KEY when api_key is still empty
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Environment variables: DIVSNOW_ADDR, DIVSNOW_CACHE_DIR, ...
	// Map env keys like DIVSNOW_CACHE_TTL_DAYS -> cache_ttl_days (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvPolygonKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that would otherwise fail late and obscurely.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	case c.BaseURL == "":
		return fmt.Errorf("%w: base_url must not be empty", ErrInvalidConfig)
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	case c.CacheTTLDays <= 0:
		return fmt.Errorf("%w: cache_ttl_days must be positive", ErrInvalidConfig)
	case c.RateLimitWaitSeconds < 0:
		return fmt.Errorf("%w: rate_limit_wait_seconds must not be negative", ErrInvalidConfig)
	case c.RateLimitMaxRetries < 0:
		return fmt.Errorf("%w: rate_limit_max_retries must not be negative", ErrInvalidConfig)
	case c.RateLimitMultiplier < 1:
		return fmt.Errorf("%w: rate_limit_multiplier must be at least 1", ErrInvalidConfig)
	case c.InitialCash <= 0:
		return fmt.Errorf("%w: initial_cash must be positive", ErrInvalidConfig)
	case c.WarmWorkers <= 0:
		return fmt.Errorf("%w: warm_workers must be positive", ErrInvalidConfig)
	case c.WarmQueueSize <= 0:
		return fmt.Errorf("%w: warm_queue_size must be positive", ErrInvalidConfig)
	}
	switch c.CacheBackend {
	case BackendBolt:
		if c.CacheDir == "" || c.CacheFile == "" {
			return fmt.Errorf("%w: cache_dir and cache_file are required for the bolt backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown cache_backend %q", ErrInvalidConfig, c.CacheBackend)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}
