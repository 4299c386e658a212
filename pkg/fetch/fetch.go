package fetch

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/httputil"
	"github.com/matzehuels/prefetch/pkg/integrations"
	"github.com/matzehuels/prefetch/pkg/observability"
)

// DefaultWorkers is the fetch concurrency when none is configured.
const DefaultWorkers = 8

// Mirror is a remote copy of the store. *cache.S3Mirror implements it.
type Mirror interface {
	Get(ctx context.Context, address, dst string) (bool, error)
	Put(ctx context.Context, address, src string) error
}

// Config configures an [Orchestrator].
type Config struct {
	Workers   int
	Retry     httputil.Policy
	Resolvers map[string]deps.ArtifactResolver // keyed by ecosystem tag
	Mirror    Mirror
	Client    *integrations.Client // downloads; its retry policy applies
	Git       GitRunner
	Logger    *log.Logger

	// ProjectRoot anchors workspace member paths.
	ProjectRoot string
}

// Record is a verified artifact. Records are shared by every node with
// the same address and are never modified after creation.
type Record struct {
	Address  string
	Source   string // URL, repository or local path
	Size     int64
	Checksum checksum.Checksum
	Path     string // store entry, or the directory itself for local trees
	Filename string // upstream file name, when known
	Dir      bool
}

// Orchestrator fetches graphs into a store. It is safe for concurrent use.
type Orchestrator struct {
	store  *cache.Store
	cfg    Config
	client *integrations.Client
	git    GitRunner
	log    *log.Logger
	flight singleflight.Group
}

// New returns an orchestrator writing into store.
func New(store *cache.Store, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = httputil.DefaultPolicy
	}
	client := cfg.Client
	if client == nil {
		client = integrations.NewClient(nil, "", 0, nil).WithRetry(cfg.Retry)
	}
	git := cfg.Git
	if git == nil {
		git = RunGit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Orchestrator{
		store:  store,
		cfg:    cfg,
		client: client,
		git:    git,
		log:    logger,
	}
}

// FetchAll fetches every artifact of g and returns the records keyed by
// node ID. Nodes that need no fetch have no record. On failure no records
// are returned; the error is the first fatal failure joined with any other
// task failures that completed before cancellation took effect.
func (o *Orchestrator) FetchAll(ctx context.Context, g *graph.Graph) (map[string]*Record, error) {
	p, err := o.plan(g)
	if err != nil {
		return nil, err
	}
	o.log.Debug("planned fetch", "nodes", g.NodeCount(), "tasks", len(p.tasks))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.Workers)

	var (
		mu       sync.Mutex
		done     = make(map[string]*Record, len(p.tasks))
		failures []error
	)
	for _, t := range p.tasks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := o.run(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return err
			}
			done[t.key] = rec
			return nil
		})
	}
	if first := eg.Wait(); first != nil {
		errs := []error{first}
		for _, err := range failures {
			if err != first && !stderrors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}
		return nil, stderrors.Join(errs...)
	}

	records := make(map[string]*Record, len(p.byNode))
	for id, t := range p.byNode {
		records[id] = done[t.key]
	}
	return records, nil
}

// run fetches t once per address across concurrent callers.
func (o *Orchestrator) run(ctx context.Context, t *task) (*Record, error) {
	v, err, shared := o.flight.Do(t.key, func() (any, error) {
		hooks := observability.Run()
		hooks.OnFetchStart(ctx, t.key)
		start := time.Now()

		rec, err := o.fetch(ctx, t)
		var size int64
		if rec != nil {
			size = rec.Size
		}
		hooks.OnFetchComplete(ctx, t.key, size, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		o.log.Debug("fetched", "address", rec.Address, "source", rec.Source, "size", rec.Size)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.log.Debug("shared in-flight fetch", "address", t.key)
	}
	return v.(*Record), nil
}
