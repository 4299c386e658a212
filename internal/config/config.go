// Package config loads prefetch settings from the environment.
//
// Values come from PREFETCH_* variables, optionally seeded from a .env
// file. Command-line flags are applied on top by the CLI.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/httputil"
)

// AppName names the cache directory.
const AppName = "prefetch"

// Environment variables.
const (
	EnvCacheDir          = "PREFETCH_CACHE_DIR"
	EnvWorkers           = "PREFETCH_WORKERS"
	EnvRetryAttempts     = "PREFETCH_RETRY_ATTEMPTS"
	EnvRetryDelay        = "PREFETCH_RETRY_DELAY"
	EnvRetryMaxDelay     = "PREFETCH_RETRY_MAX_DELAY"
	EnvAllowExperimental = "PREFETCH_ALLOW_EXPERIMENTAL"
	EnvRedisURL          = "PREFETCH_REDIS_URL"
	EnvMetricsFile       = "PREFETCH_METRICS_FILE"
	EnvS3Endpoint        = "PREFETCH_S3_ENDPOINT"
	EnvS3Region          = "PREFETCH_S3_REGION"
	EnvS3AccessKey       = "PREFETCH_S3_ACCESS_KEY"
	EnvS3SecretKey       = "PREFETCH_S3_SECRET_KEY"
	EnvS3Bucket          = "PREFETCH_S3_BUCKET"
	EnvS3Prefix          = "PREFETCH_S3_PREFIX"
	EnvS3UseSSL          = "PREFETCH_S3_USE_SSL"
)

type Config struct {
	// CacheDir holds the artifact store and the metadata cache.
	CacheDir          string
	Workers           int
	Retry             httputil.Policy
	AllowExperimental bool

	// RedisURL selects a shared metadata cache instead of the file cache.
	RedisURL string
	// MetricsFile receives Prometheus metrics in textfile format.
	MetricsFile string
	// S3 configures the artifact mirror. Zero when no endpoint is set.
	S3 cache.S3Config
}

// S3Enabled reports whether an artifact mirror is configured.
func (c *Config) S3Enabled() bool { return c.S3.Endpoint != "" }

// Load reads envFile, or ./.env if envFile is empty and the file exists,
// and builds a Config from the process environment. Variables already set
// in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "load %s", envFile)
		}
	} else {
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := &Config{
		CacheDir:    get(EnvCacheDir),
		Workers:     fetch.DefaultWorkers,
		Retry:       httputil.DefaultPolicy,
		RedisURL:    get(EnvRedisURL),
		MetricsFile: get(EnvMetricsFile),
	}
	if cfg.CacheDir == "" {
		dir, err := CacheDir()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "no cache directory; set %s", EnvCacheDir)
		}
		cfg.CacheDir = dir
	}

	var err error
	if cfg.Workers, err = positiveInt(get(EnvWorkers), EnvWorkers, cfg.Workers); err != nil {
		return nil, err
	}
	if cfg.Retry.Attempts, err = positiveInt(get(EnvRetryAttempts), EnvRetryAttempts, cfg.Retry.Attempts); err != nil {
		return nil, err
	}
	if cfg.Retry.Delay, err = duration(get(EnvRetryDelay), EnvRetryDelay, cfg.Retry.Delay); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = duration(get(EnvRetryMaxDelay), EnvRetryMaxDelay, cfg.Retry.MaxDelay); err != nil {
		return nil, err
	}
	if cfg.AllowExperimental, err = boolValue(get(EnvAllowExperimental), EnvAllowExperimental, false); err != nil {
		return nil, err
	}

	if endpoint := get(EnvS3Endpoint); endpoint != "" {
		cfg.S3 = cache.S3Config{
			Endpoint:  endpoint,
			Region:    firstNonEmpty(get(EnvS3Region), "us-east-1"),
			AccessKey: get(EnvS3AccessKey),
			SecretKey: get(EnvS3SecretKey),
			Bucket:    firstNonEmpty(get(EnvS3Bucket), "prefetch-artifacts"),
			Prefix:    get(EnvS3Prefix),
		}
		if cfg.S3.UseSSL, err = boolValue(get(EnvS3UseSSL), EnvS3UseSSL, true); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// StoreDir is the artifact store below the cache directory.
func (c *Config) StoreDir() string { return filepath.Join(c.CacheDir, "store") }

// MetadataDir is the registry metadata cache below the cache directory.
func (c *Config) MetadataDir() string { return filepath.Join(c.CacheDir, "metadata") }

// CacheDir returns the default cache directory following the XDG base
// directory convention (~/.cache/prefetch/).
func CacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

func positiveInt(raw, key string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s: want a positive integer, got %q", key, raw)
	}
	return n, nil
}

func duration(raw, key string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func boolValue(raw, key string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "%s: want a boolean, got %q", key, raw)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
