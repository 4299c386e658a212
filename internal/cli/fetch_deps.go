package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/observability"
	"github.com/matzehuels/prefetch/pkg/prefetch"
	"github.com/matzehuels/prefetch/pkg/report"
)

// Files written below the output directory.
const (
	bomFile          = "bom.json"
	buildConfigFile  = ".build-config.json"
	envScript        = "prefetch.env"
	projectFilesDir  = "project-files"
	graphJSONFile    = "graph.json"
	graphDOTFile     = "graph.dot"
	graphSVGFile     = "graph.svg"
	packageSeparator = ":"
)

// fetchOpts holds the command-line flags for the fetch-deps command.
type fetchOpts struct {
	source            string // project root
	output            string // output directory
	mode              string // strict or permissive
	allowExperimental bool   // enable experimental ecosystems
	workers           int    // concurrent downloads
	noCache           bool   // bypass the registry metadata cache
	injectFiles       bool   // write project files into the source tree
	graph             bool   // also write the dependency graph
}

// fetchDepsCommand creates the fetch-deps command.
func (c *CLI) fetchDepsCommand() *cobra.Command {
	opts := fetchOpts{source: ".", output: defaultOutputDir}

	cmd := &cobra.Command{
		Use:   "fetch-deps <ecosystem>[:<path>]...",
		Short: "Fetch the locked dependencies of a project",
		Long: `Fetch every dependency pinned by the lockfiles of a project into a local
directory, verify it against the locked checksums, and write a CycloneDX
bill of materials and the environment a network-isolated build needs.

Each argument names an ecosystem and, optionally, the package directory
relative to the project root.

Examples:
  prefetch fetch-deps npm
  prefetch fetch-deps pip:backend npm:frontend --output ./out
  prefetch fetch-deps --allow-experimental yarn-berry`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFetchDeps(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.source, "source", "s", opts.source, "project root")
	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output directory")
	cmd.Flags().StringVar(&opts.mode, "mode", string(prefetch.ModeStrict), "strict or permissive handling of missing metadata")
	cmd.Flags().BoolVar(&opts.allowExperimental, "allow-experimental", false, "enable experimental ecosystems")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", prefetch.DefaultWorkers, "concurrent downloads")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the registry metadata cache")
	cmd.Flags().BoolVar(&opts.injectFiles, "inject-files", false, "write project files into the source tree")
	cmd.Flags().BoolVar(&opts.graph, "graph", false, "write the dependency graph as JSON, DOT and SVG")

	return cmd
}

// runFetchDeps runs a prefetch and writes its results.
func (c *CLI) runFetchDeps(cmd *cobra.Command, opts fetchOpts, args []string) error {
	ctx, flags := cmd.Context(), cmd.Flags()
	pkgs, err := parsePackages(args)
	if err != nil {
		return err
	}
	mode, err := prefetch.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("allow-experimental") {
		cfg.AllowExperimental = opts.allowExperimental
	}

	metrics, flushMetrics := c.setupMetrics(cfg)
	defer flushMetrics()

	meta, err := c.newMetadataCache(ctx, cfg, opts.noCache)
	if err != nil {
		return fmt.Errorf("open metadata cache: %w", err)
	}
	defer meta.Close()

	store, err := cache.OpenStore(cfg.StoreDir())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	var mirror fetch.Mirror
	if m, err := c.newMirror(cfg); err != nil {
		return fmt.Errorf("open mirror: %w", err)
	} else if m != nil {
		mirror = m
	}

	if mode == prefetch.ModePermissive {
		printWarning("Permissive mode: missing metadata is reported as warnings")
	}

	runner, err := prefetch.NewRunner(prefetch.Config{
		ProjectRoot: opts.source,
		OutputDir:   opts.output,
		Packages:    pkgs,
		Store:       store,
		Options: deps.Options{
			Cache:  meta,
			Logger: func(msg string, args ...any) { c.Logger.Warnf(msg, args...) },
		},
		AllowExperimental: cfg.AllowExperimental,
		Mode:              mode,
		Workers:           cfg.Workers,
		Retry:             cfg.Retry,
		Mirror:            mirror,
		Logger:            c.Logger,
	})
	if err != nil {
		return err
	}

	spin := newSpinner(ctx, os.Stderr, "Parsing lockfiles")
	progress := newFetchProgress(spin)
	observability.SetRunHooks(observability.MultiRunHooks(progress, metrics))
	defer observability.SetRunHooks(observability.NoopRunHooks{})

	start := time.Now()
	spin.start()
	result, err := runner.Execute(ctx)
	if err != nil {
		spin.fail("Prefetch failed")
		return err
	}
	_, bytes := progress.totals()
	spin.succeed("Prefetched %d artifacts in %s", result.Stats.Fetched, time.Since(start).Round(time.Millisecond))
	logStages(c.Logger, result.Stats)

	written, err := writeResults(result, opts)
	if err != nil {
		return err
	}

	printEcosystems(result.Graph)
	printStats(result.Stats.NodeCount, result.Stats.EdgeCount, result.Stats.Fetched, bytes)
	printNewline()
	for _, path := range written {
		printFile(path)
	}
	printNewline()
	printNextStep("Build with", "source "+filepath.Join(opts.output, envScript))
	return nil
}

// parsePackages turns "<ecosystem>[:<path>]" arguments into packages.
func parsePackages(args []string) ([]prefetch.Package, error) {
	pkgs := make([]prefetch.Package, 0, len(args))
	for _, arg := range args {
		eco, path, _ := strings.Cut(arg, packageSeparator)
		eco = strings.TrimSpace(eco)
		if eco == "" {
			return nil, errors.New(errors.ErrCodeInvalidEcosystem, "missing ecosystem in %q", arg)
		}
		if path == "" {
			path = "."
		}
		pkgs = append(pkgs, prefetch.Package{Ecosystem: eco, Path: path})
	}
	return pkgs, nil
}

// writeResults writes the report files and returns their paths.
func writeResults(result *prefetch.Result, opts fetchOpts) ([]string, error) {
	var written []string
	write := func(path string, data []byte) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	rep := result.Report
	var bom strings.Builder
	if err := rep.WriteBOM(&bom); err != nil {
		return nil, err
	}
	if err := write(filepath.Join(opts.output, bomFile), []byte(bom.String())); err != nil {
		return nil, err
	}

	env, err := json.MarshalIndent(rep.Environment, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode environment: %w", err)
	}
	if err := write(filepath.Join(opts.output, buildConfigFile), append(env, '\n')); err != nil {
		return nil, err
	}
	if err := write(filepath.Join(opts.output, envScript), []byte(rep.Environment.Shell())); err != nil {
		return nil, err
	}

	base := filepath.Join(opts.output, projectFilesDir)
	if opts.injectFiles {
		base = opts.source
	}
	for _, f := range rep.Environment.ProjectFiles {
		if err := errors.ValidatePath(f.Path); err != nil {
			return nil, fmt.Errorf("project file %q: %w", f.Path, err)
		}
		if err := write(filepath.Join(base, filepath.FromSlash(f.Path)), []byte(f.Content)); err != nil {
			return nil, err
		}
	}

	if opts.graph {
		doc, err := graph.MarshalGraph(result.Graph)
		if err != nil {
			return nil, fmt.Errorf("encode graph: %w", err)
		}
		if err := write(filepath.Join(opts.output, graphJSONFile), doc); err != nil {
			return nil, err
		}
		dot := report.ToDOT(result.Graph, report.DOTOptions{Detailed: true})
		if err := write(filepath.Join(opts.output, graphDOTFile), []byte(dot)); err != nil {
			return nil, err
		}
		svg, err := report.RenderSVG(dot)
		if err != nil {
			return nil, fmt.Errorf("render graph: %w", err)
		}
		if err := write(filepath.Join(opts.output, graphSVGFile), svg); err != nil {
			return nil, err
		}
	}
	return written, nil
}
