package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/prefetch/internal/config"
	"github.com/matzehuels/prefetch/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact store and metadata cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheInfoCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var keepStore bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove stored artifacts and cached registry metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.CacheDir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			spin := newSpinner(cmd.Context(), os.Stderr, "Clearing cache")
			spin.start()
			if err := clearCache(cfg, keepStore); err != nil {
				spin.fail("Could not clear cache")
				return err
			}
			spin.succeed("Cache cleared")
			printDetail("Directory: %s", cfg.CacheDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepStore, "metadata-only", false, "keep stored artifacts")
	return cmd
}

// clearCache empties the metadata cache and, unless keepStore is set,
// the artifact store.
func clearCache(cfg *config.Config, keepStore bool) error {
	meta, err := cache.NewFileCache(cfg.MetadataDir())
	if err != nil {
		return fmt.Errorf("open metadata cache: %w", err)
	}
	defer meta.Close()
	if err := meta.Clear(); err != nil {
		return fmt.Errorf("clear metadata cache: %w", err)
	}
	if keepStore {
		return nil
	}

	store, err := cache.OpenStore(cfg.StoreDir())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Println(cfg.CacheDir)
			return nil
		},
	}
}

// cacheInfoCommand creates the "cache info" subcommand.
func (c *CLI) cacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where artifacts and metadata are cached",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			printKeyValue("Store", cfg.StoreDir())
			if cfg.RedisURL != "" {
				printKeyValue("Metadata", "redis")
			} else {
				printKeyValue("Metadata", cfg.MetadataDir())
			}
			if cfg.S3Enabled() {
				printKeyValue("Mirror", fmt.Sprintf("s3://%s/%s (%s)", cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Endpoint))
			} else {
				printKeyValue("Mirror", StyleDim.Render("none"))
			}
			return nil
		},
	}
}
