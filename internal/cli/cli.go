// Package cli implements the prefetch command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/prefetch/internal/config"
	"github.com/matzehuels/prefetch/pkg/buildinfo"
	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/observability"
)

const (
	// appName is the application name used for display.
	appName = config.AppName

	// defaultOutputDir is where fetch-deps writes its results.
	defaultOutputDir = "./hermetic-output"
)

// Log levels accepted by New.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI carries the state shared by the prefetch commands.
type CLI struct {
	Logger *log.Logger

	// envFile is the --env-file flag, read when a command loads its
	// configuration.
	envFile string
}

// New returns a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel changes the log level, as --verbose does.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand builds the prefetch command tree.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Prefetch fetches locked dependencies for hermetic builds",
		Long:         `Prefetch reads the lockfiles of a project, downloads and verifies every locked dependency, and reports a software bill of materials together with the environment a network-isolated build needs.`,
		Version:      buildinfo.Current(),
		SilenceUsage: true,
	}

	var verbose bool
	root.PersistentPreRun = func(*cobra.Command, []string) {
		if verbose {
			c.SetLogLevel(LogDebug)
		}
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "load PREFETCH_* settings from this file (default: ./.env if present)")

	root.AddCommand(c.fetchDepsCommand(), c.cacheCommand(), c.completionCommand())

	return root
}

// loadConfig reads the environment configuration.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.envFile)
}

// =============================================================================
// Backends
// =============================================================================

// newMetadataCache returns the registry metadata cache: Redis when
// configured, the file cache otherwise.
func (c *CLI) newMetadataCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.Logger.Debug("using redis metadata cache")
		return cache.NewScoped(rc, appName+":"), nil
	}
	return cache.NewFileCache(cfg.MetadataDir())
}

// newMirror returns the S3 artifact mirror, or nil when none is configured.
func (c *CLI) newMirror(cfg *config.Config) (*cache.S3Mirror, error) {
	if !cfg.S3Enabled() {
		return nil, nil
	}
	c.Logger.Debug("using s3 artifact mirror", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	return cache.NewS3Mirror(cfg.S3)
}

// setupMetrics registers Prometheus cache and HTTP hooks when a metrics
// file is configured and returns the run hooks for the caller to install.
// The returned function writes the file.
func (c *CLI) setupMetrics(cfg *config.Config) (observability.RunHooks, func()) {
	if cfg.MetricsFile == "" {
		return nil, func() {}
	}
	m := observability.NewMetrics()
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
	return m, func() {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			c.Logger.Warn("could not write metrics", "file", cfg.MetricsFile, "err", err)
		}
	}
}
