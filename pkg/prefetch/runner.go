package prefetch

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/deps/ecosystems"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/observability"
	"github.com/matzehuels/prefetch/pkg/report"
)

func defaultRegistry(opts deps.Options) *deps.Registry {
	return ecosystems.NewRegistry(opts)
}

// Runner executes the parse → fetch → materialize → report pipeline.
//
// A Runner holds no results between calls. Each call to [Runner.Execute]
// is a complete run against the configured project.
type Runner struct {
	cfg Config
	log *log.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Graph   *graph.Graph
	Records map[string]*fetch.Record // keyed by node ID
	Report  *report.Report
	Stats   Stats
}

// Parsed is the outcome of the parse stage.
type Parsed struct {
	// Graph merges the graphs of every package.
	Graph *graph.Graph
	units []*unit
}

// Stats records timing and size information of a run.
type Stats struct {
	ParseTime  time.Duration
	FetchTime  time.Duration
	ReportTime time.Duration
	NodeCount  int
	EdgeCount  int
	Fetched    int // distinct store addresses
}

// NewRunner validates cfg and returns a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{cfg: cfg, log: logger}, nil
}

// Execute runs every stage. Nothing is fetched unless parsing and graph
// building succeed for every package, and nothing is materialized unless
// every fetch succeeds.
func (r *Runner) Execute(ctx context.Context) (*Result, error) {
	result := &Result{}

	// Stage 1: Parse
	parseStart := time.Now()
	parsed, err := r.Parse(ctx)
	if err != nil {
		return nil, err
	}
	g := parsed.Graph
	result.Graph = g
	result.Stats.ParseTime = time.Since(parseStart)
	result.Stats.NodeCount = g.NodeCount()
	result.Stats.EdgeCount = g.EdgeCount()

	r.log.Info("parsed dependencies",
		"packages", len(parsed.units),
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"duration", result.Stats.ParseTime)

	// Stage 2: Fetch
	fetchStart := time.Now()
	records, err := r.Fetch(ctx, parsed)
	if err != nil {
		return nil, err
	}
	result.Records = records
	result.Stats.FetchTime = time.Since(fetchStart)
	result.Stats.Fetched = countAddresses(records)

	r.log.Info("fetched artifacts",
		"artifacts", result.Stats.Fetched,
		"duration", result.Stats.FetchTime)

	// Stage 3: Materialize
	if err := r.Materialize(g, records); err != nil {
		return nil, err
	}

	// Stage 4: Report
	reportStart := time.Now()
	rep, err := r.Report(ctx, parsed, records)
	observability.Run().OnReportComplete(ctx, componentCount(rep), time.Since(reportStart), err)
	if err != nil {
		return nil, err
	}
	result.Report = rep
	result.Stats.ReportTime = time.Since(reportStart)

	r.log.Info("rendered report",
		"components", len(rep.BOM.Components),
		"variables", len(rep.Environment.Variables),
		"duration", result.Stats.ReportTime)

	return result, nil
}

// Fetch fetches the graph of every package. Each package is fetched with
// its own directory as project root; the shared store dedupes artifacts
// common to several packages.
func (r *Runner) Fetch(ctx context.Context, p *Parsed) (map[string]*fetch.Record, error) {
	records := make(map[string]*fetch.Record)
	for _, u := range p.units {
		o := fetch.New(r.cfg.Store, fetch.Config{
			Workers:     r.cfg.Workers,
			Retry:       r.cfg.Retry,
			Resolvers:   r.cfg.Registry.ArtifactResolvers(),
			Mirror:      r.cfg.Mirror,
			Client:      r.cfg.Client,
			Git:         r.cfg.Git,
			Logger:      r.log,
			ProjectRoot: u.dir,
		})
		recs, err := o.FetchAll(ctx, u.graph)
		if err != nil {
			return nil, err
		}
		for id, rec := range recs {
			records[id] = rec
		}
	}
	return records, nil
}

// Report renders the bill of materials and the merged environment.
func (r *Runner) Report(ctx context.Context, p *Parsed, records map[string]*fetch.Record) (*report.Report, error) {
	renderers := make(map[string]report.Renderer)
	inputs := make([]report.Input, 0, len(p.units))
	for _, u := range p.units {
		renderers[u.eco.Name()] = u.eco
		inputs = append(inputs, report.Input{
			Ecosystem: u.eco.Name(),
			Package:   u.pkg.Path,
			RenderInput: deps.RenderInput{
				ProjectRoot: u.dir,
				OutputDir:   r.cfg.OutputDir,
				DepsDir:     r.cfg.depsDir(u.eco.Name()),
				Files:       u.files,
			},
		})
	}

	rep, err := report.Render(p.Graph, records, renderers, report.Options{
		Project:   r.project(ctx, p),
		Inputs:    inputs,
		Timestamp: r.cfg.Now(),
		Strict:    r.cfg.Mode == ModeStrict,
		Logger:    r.log,
	})
	if err != nil {
		return nil, err
	}
	if err := r.writeOutputFiles(rep.Environment.OutputFiles); err != nil {
		return nil, err
	}
	return rep, nil
}

func countAddresses(records map[string]*fetch.Record) int {
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.Address] = true
	}
	return len(seen)
}

func componentCount(rep *report.Report) int {
	if rep == nil {
		return 0
	}
	return len(rep.BOM.Components)
}

// checkExperimental gates experimental ecosystems behind
// Config.AllowExperimental.
func (r *Runner) checkExperimental(eco deps.Ecosystem) error {
	if !eco.Experimental() {
		return nil
	}
	if !r.cfg.AllowExperimental {
		return errors.New(errors.ErrCodeUnsupportedFeature,
			"ecosystem %s is experimental and must be enabled explicitly", eco.Name())
	}
	r.log.Warn("using an experimental ecosystem; results may be incomplete", "ecosystem", eco.Name())
	return nil
}
