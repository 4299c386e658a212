package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/httputil"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")

	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("FromEnv() error: %v", err)
	}
	if cfg.CacheDir != filepath.Join("/tmp/xdg", AppName) {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.Workers != fetch.DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, fetch.DefaultWorkers)
	}
	if cfg.Retry != httputil.DefaultPolicy {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.AllowExperimental || cfg.S3Enabled() || cfg.RedisURL != "" {
		t.Errorf("optional features should be off: %+v", cfg)
	}
	if cfg.StoreDir() != filepath.Join(cfg.CacheDir, "store") {
		t.Errorf("StoreDir() = %q", cfg.StoreDir())
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		EnvCacheDir:          "/srv/cache",
		EnvWorkers:           "16",
		EnvRetryAttempts:     "5",
		EnvRetryDelay:        "250ms",
		EnvRetryMaxDelay:     "10s",
		EnvAllowExperimental: "true",
		EnvRedisURL:          "redis://cache:6379/0",
		EnvMetricsFile:       "/var/lib/node_exporter/prefetch.prom",
		EnvS3Endpoint:        "minio:9000",
		EnvS3AccessKey:       "key",
		EnvS3SecretKey:       "secret",
		EnvS3UseSSL:          "false",
	}))
	if err != nil {
		t.Fatalf("FromEnv() error: %v", err)
	}

	if cfg.CacheDir != "/srv/cache" || cfg.Workers != 16 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Retry != (httputil.Policy{Attempts: 5, Delay: 250 * time.Millisecond, MaxDelay: 10 * time.Second}) {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if !cfg.AllowExperimental {
		t.Error("AllowExperimental should be set")
	}
	if !cfg.S3Enabled() || cfg.S3.UseSSL || cfg.S3.Region != "us-east-1" || cfg.S3.Bucket != "prefetch-artifacts" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvWorkers, "0"},
		{EnvWorkers, "many"},
		{EnvRetryAttempts, "-1"},
		{EnvRetryDelay, "soon"},
		{EnvRetryMaxDelay, "-1s"},
		{EnvAllowExperimental, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			_, err := FromEnv(env(map[string]string{EnvCacheDir: "/c", tt.key: tt.value}))
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("FromEnv() error = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefetch.env")
	if err := os.WriteFile(path, []byte("PREFETCH_WORKERS=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvCacheDir, "/c")
	t.Setenv(EnvWorkers, "")
	os.Unsetenv(EnvWorkers)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3 from the env file", cfg.Workers)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Load(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")

	dir, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir() error: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".cache", AppName); dir != want {
		t.Errorf("CacheDir() = %q, want %q", dir, want)
	}
	if !strings.HasSuffix(dir, AppName) {
		t.Errorf("CacheDir() = %q, should end with %q", dir, AppName)
	}
}

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/custom-cache")

	dir, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir() error: %v", err)
	}
	if want := filepath.Join("/tmp/custom-cache", AppName); dir != want {
		t.Errorf("CacheDir() = %q, want %q", dir, want)
	}
}
