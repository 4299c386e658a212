package fetch

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// task is one artifact to obtain.
type task struct {
	key       string // store address, or "dir:<path>" for local trees
	ecosystem string
	locator   locator.Locator // never a patch
	artifact  deps.Artifact
	declared  []checksum.Checksum // verifiable checksums only
	dir       string              // local tree hashed in place
}

// local reports whether the task is hashed in place instead of stored.
func (t *task) local() bool { return t.dir != "" }

type plan struct {
	tasks  []*task          // unique, in graph order
	byNode map[string]*task // node ID to task
}

func (o *Orchestrator) plan(g *graph.Graph) (*plan, error) {
	p := &plan{byNode: make(map[string]*task)}
	seen := make(map[string]*task)
	for _, n := range g.Nodes() {
		t, err := o.taskFor(g, n)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		if prev, ok := seen[t.key]; ok {
			t = prev
		} else {
			seen[t.key] = t
			p.tasks = append(p.tasks, t)
		}
		p.byNode[n.ID] = t
	}
	return p, nil
}

// taskFor maps n to its task, or nil when n needs no fetch.
func (o *Orchestrator) taskFor(g *graph.Graph, n *graph.Node) (*task, error) {
	if patch, ok := n.Locator.(*locator.Patch); ok {
		if err := checkPatchFiles(patch); err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnresolvableReference, err, "%s", n.ID)
		}
		target := locator.Unwrap(patch)
		if tn, ok := g.Node(graph.NodeID(n.Ecosystem, target)); ok {
			return o.taskFor(g, tn)
		}
		tn := &graph.Node{
			ID:        graph.NodeID(n.Ecosystem, target),
			Ecosystem: n.Ecosystem,
			Name:      n.Name,
			Version:   n.Version,
			Locator:   target,
		}
		return o.taskFor(g, tn)
	}

	t := &task{
		ecosystem: n.Ecosystem,
		locator:   n.Locator,
		artifact:  n.Artifact(),
		declared:  checksum.VerifiableOnly(n.Checksums),
	}
	switch l := n.Locator.(type) {
	case *locator.Workspace:
		if l.PackagePath == "." || l.PackagePath == "" {
			return nil, nil
		}
		t.dir = filepath.Join(o.cfg.ProjectRoot, filepath.FromSlash(l.PackagePath))
	case *locator.Builtin:
		if l.Source.Bundled() {
			return nil, nil
		}
		if l.Source.Checksum.Verifiable() && !checksum.Contains(t.declared, l.Source.Checksum) {
			t.declared = append(t.declared, l.Source.Checksum)
		}
	case *locator.Registry:
		for _, c := range checksum.VerifiableOnly(l.Integrity) {
			if !checksum.Contains(t.declared, c) {
				t.declared = append(t.declared, c)
			}
		}
	case *locator.File:
		info, err := os.Stat(l.Resolved)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s", n.ID)
			}
			return nil, err
		}
		if info.IsDir() {
			t.dir = l.Resolved
			break
		}
		if err := keyByContent(t, l.Resolved); err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "%s", n.ID)
		}
	case *locator.Git:
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedFeature, "cannot fetch %s", n.ID)
	}

	switch {
	case t.key != "":
	case t.local():
		t.key = "dir:" + t.dir
	case len(t.declared) == 1:
		t.key = t.declared[0].String()
	default:
		t.key = cache.LocatorAddress(graph.NodeID(n.Ecosystem, n.Locator))
	}
	return t, nil
}

// keyByContent addresses the local file at p by what it holds now, so a
// changed file never reuses the entry of its previous content. Without a
// declared checksum the content checksum becomes the one the copy is
// verified against.
func keyByContent(t *task, p string) error {
	algo := checksum.SHA256
	if want, ok := checksum.Strongest(t.declared); ok {
		algo = want.Algorithm
	}
	sum, err := checksum.Compute(algo, p)
	if err != nil {
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.ErrCodeFetchFailed, err, "hash %s", p)
		}
		return err
	}
	switch {
	case len(t.declared) == 0:
		t.declared = []checksum.Checksum{sum}
	case !checksum.Contains(t.declared, sum):
		want, _ := checksum.Strongest(t.declared)
		return errors.New(errors.ErrCodeChecksumMismatch, "expected %s, got %s", want, sum)
	}
	t.key = sum.String()
	return nil
}

// checkPatchFiles fails when a required patch file of p, or of a patch it
// wraps, does not exist. Builtin patches ship with the package manager.
func checkPatchFiles(p *locator.Patch) error {
	for {
		for _, pp := range p.Paths {
			if pp.Kind == locator.PathBuiltin {
				continue
			}
			if _, err := os.Stat(pp.Resolved); err != nil {
				if pp.Flags.Optional() && stderrors.Is(err, fs.ErrNotExist) {
					continue
				}
				return errors.Wrap(errors.ErrCodeFileNotFound, err, "patch file %s", pp.Path)
			}
		}
		inner, ok := p.Target.(*locator.Patch)
		if !ok {
			return nil
		}
		p = inner
	}
}
