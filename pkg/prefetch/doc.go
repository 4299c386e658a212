// Package prefetch runs a complete prefetch of a project's dependencies.
//
// # Architecture
//
// The runner consists of four stages:
//
//  1. Parse: read the lockfiles of every package, resolve their references
//     and merge the per-package graphs
//  2. Fetch: download and verify every artifact into the content-addressed
//     store
//  3. Materialize: lay the artifacts out below <output>/deps/<ecosystem>
//  4. Report: render the bill of materials and the build environment
//
// Every stage only starts once the previous one has succeeded for all
// packages: a malformed lockfile or conflicting checksum stops the run
// before any network access.
//
// # Usage
//
//	store, err := cache.OpenStore(cacheDir)
//	if err != nil {
//	    return err
//	}
//	runner, err := prefetch.NewRunner(prefetch.Config{
//	    ProjectRoot: ".",
//	    OutputDir:   "./hermetic-output",
//	    Packages:    []prefetch.Package{{Ecosystem: "npm"}},
//	    Store:       store,
//	})
//	if err != nil {
//	    return err
//	}
//	result, err := runner.Execute(ctx)
//
// Run individual stages:
//
//	parsed, err := runner.Parse(ctx)
//	records, err := runner.Fetch(ctx, parsed)
package prefetch
