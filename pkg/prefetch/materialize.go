package prefetch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/graph"
)

// Materialize places every fetched artifact at
// <output>/deps/<ecosystem>/<layout>. Ecosystems implementing
// [deps.Unpacker] receive unpacked trees for the artifacts they claim;
// everything else is exported from the store as is. Local directory
// sources and nodes without a layout are skipped.
func (r *Runner) Materialize(g *graph.Graph, records map[string]*fetch.Record) error {
	placed := make(map[string]string) // destination -> store address
	for _, n := range g.Nodes() {
		rec, ok := records[n.ID]
		if !ok || rec.Dir {
			continue
		}
		eco, err := r.cfg.Registry.Get(n.Ecosystem)
		if err != nil {
			return err
		}
		a := n.Artifact()
		a.Source, a.Filename = rec.Source, rec.Filename
		rel := eco.Layout(a)
		if rel == "" {
			continue
		}
		if err := errors.ValidatePath(rel); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "layout of %s", n.ID)
		}

		dst := filepath.Join(r.cfg.depsDir(n.Ecosystem), filepath.FromSlash(rel))
		if prev, ok := placed[dst]; ok {
			if prev != rec.Address {
				return errors.New(errors.ErrCodeChecksumConflict,
					"%s and a different artifact both materialize at %s/%s", n.ID, n.Ecosystem, rel)
			}
			continue
		}
		placed[dst] = rec.Address

		if u, ok := eco.(deps.Unpacker); ok && u.Unpacks(a) {
			if err := os.RemoveAll(dst); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "clear %s", dst)
			}
			if err := u.Unpack(a, rec.Path, dst); err != nil {
				return fmt.Errorf("unpack %s: %w", n.ID, err)
			}
			continue
		}
		if err := r.cfg.Store.Export(rec.Address, dst); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "export %s", n.ID)
		}
	}
	r.log.Debug("materialized artifacts", "count", len(placed))
	return nil
}

// writeOutputFiles writes files below the output directory.
func (r *Runner) writeOutputFiles(files []deps.ProjectFile) error {
	for _, f := range files {
		if err := errors.ValidatePath(f.Path); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "output file %q", f.Path)
		}
		dst := filepath.Join(r.cfg.OutputDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "create %s", filepath.Dir(dst))
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s", f.Path)
		}
	}
	return nil
}
