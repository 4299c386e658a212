package prefetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
	"github.com/matzehuels/prefetch/pkg/observability"
)

// unit is one parsed package.
type unit struct {
	pkg   Package
	eco   deps.Ecosystem
	dir   string
	files deps.Files
	graph *graph.Graph
}

// Parse reads and parses the lockfiles of every package and merges the
// resulting graphs. Conflicting checksums for one node are reported here,
// before any network access.
func (r *Runner) Parse(ctx context.Context) (*Parsed, error) {
	units := make([]*unit, 0, len(r.cfg.Packages))
	graphs := make([]*graph.Graph, 0, len(r.cfg.Packages))
	for _, p := range r.cfg.Packages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eco, err := r.cfg.Registry.Get(p.Ecosystem)
		if err != nil {
			return nil, err
		}
		if err := r.checkExperimental(eco); err != nil {
			return nil, err
		}
		u, err := r.parsePackage(ctx, eco, p)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
		graphs = append(graphs, u.graph)
	}

	g, err := graph.Merge(graphs...)
	if err != nil {
		return nil, err
	}
	r.log.Debug("merged graphs", "ecosystems", g.Ecosystems(), "nodes", g.NodeCount(), "fingerprint", fmt.Sprintf("%016x", g.Fingerprint()))
	return &Parsed{Graph: g, units: units}, nil
}

func (r *Runner) parsePackage(ctx context.Context, eco deps.Ecosystem, p Package) (*unit, error) {
	dir := r.cfg.dir(p)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, errors.New(errors.ErrCodeFileNotFound, "package directory %s does not exist", p.Path)
	}
	files, err := readLockfiles(eco, dir)
	if err != nil {
		return nil, err
	}

	lockfile := path.Join(p.Path, eco.Lockfiles()[0].Name)
	hooks := observability.Run()
	hooks.OnParseStart(ctx, eco.Name(), lockfile)
	start := time.Now()
	records, err := eco.Parse(files)
	hooks.OnParseComplete(ctx, eco.Name(), lockfile, len(records), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", lockfile, err)
	}

	lctx := locator.Context{ProjectRoot: dir}
	if b, ok := eco.(deps.BuiltinSupplier); ok {
		lctx.Builtins = locator.NewBuiltinRegistry(b.Builtins()...)
	}
	g, err := graph.Build(eco.Name(), records, eco.Resolver(), lctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", lockfile, err)
	}
	nameRoot(g, eco.Name(), dir)

	r.log.Debug("parsed package",
		"ecosystem", eco.Name(),
		"path", p.Path,
		"records", len(records),
		"nodes", g.NodeCount())
	return &unit{pkg: p, eco: eco, dir: dir, files: files, graph: g}, nil
}

// readLockfiles loads the files eco reads from dir. A missing required file
// is an error; missing optional files are left out.
func readLockfiles(eco deps.Ecosystem, dir string) (deps.Files, error) {
	files := make(deps.Files)
	for _, lf := range eco.Lockfiles() {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(lf.Name)))
		switch {
		case err == nil:
			files[lf.Name] = data
		case stderrors.Is(err, fs.ErrNotExist) && lf.Optional:
		case stderrors.Is(err, fs.ErrNotExist):
			return nil, errors.New(errors.ErrCodeFileNotFound, "%s requires %s in %s", eco.Name(), lf.Name, dir)
		default:
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read %s", lf.Name)
		}
	}
	return files, nil
}

// nameRoot names an unnamed project root after its directory.
func nameRoot(g *graph.Graph, eco, dir string) {
	n, ok := g.Node(graph.NodeID(eco, &locator.Workspace{PackagePath: "."}))
	if ok && n.Name == "" {
		n.Name = filepath.Base(dir)
	}
}
