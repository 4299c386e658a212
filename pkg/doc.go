// Package pkg provides the core libraries for prefetching the dependencies of
// hermetic builds.
//
// # Overview
//
// Prefetch reads the lockfiles of a project, downloads every locked
// dependency ahead of time and verifies it against the locked checksums.
// A later build then runs without network access, using only the fetched
// artifacts and the environment prefetch reports. The pkg directory is
// organized into four main areas:
//
//  1. [deps] - Lockfile parsing per ecosystem (npm, yarn, pip, cargo, gomod,
//     bundler, rpm, generic)
//  2. [graph] - The dependency graph built from the parsed lockfiles
//  3. [fetch] - Concurrent, verified downloads into the [cache] store
//  4. [report] - CycloneDX bill of materials and build environment
//
// [prefetch] ties the four together.
//
// # Architecture
//
// The data flow through a prefetch run:
//
//	Lockfiles
//	    ↓
//	[deps] package (parse records, resolve locators)
//	    ↓
//	[graph] package (build and merge per-package graphs)
//	    ↓
//	[fetch] package (download, verify, store by checksum)
//	    ↓
//	[report] package (SBOM + environment)
//
// # Quick Start
//
//	import (
//	    "github.com/matzehuels/prefetch/pkg/cache"
//	    "github.com/matzehuels/prefetch/pkg/prefetch"
//	)
//
//	store, _ := cache.OpenStore(storeDir)
//	runner, _ := prefetch.NewRunner(prefetch.Config{
//	    ProjectRoot: ".",
//	    OutputDir:   "./hermetic-output",
//	    Packages:    []prefetch.Package{{Ecosystem: "cargo"}},
//	    Store:       store,
//	})
//	result, err := runner.Execute(ctx)
//
// # Main Packages
//
// ## Parsing
//
// [locator] - Parsed package references and the patch resolver. Locators
// identify where an artifact comes from (registry, URL, git, path, patch).
//
// [deps] - The Ecosystem interface and registry. Each subpackage parses one
// family of lockfiles and renders the environment its package manager
// needs to run offline.
//
// [graph] - Dependency graph with merge semantics: the same node seen from
// two packages must agree on its checksums.
//
// ## Fetching
//
// [fetch] - Bounded worker pool downloading every artifact once. Artifacts
// are verified before they become visible in the store.
//
// [cache] - Content-addressed artifact store plus metadata caches (file,
// Redis) and an optional S3 mirror.
//
// [checksum] - Checksum parsing and verification.
//
// [archive] - Safe tar and gzip extraction for unpacked artifacts.
//
// [integrations] - HTTP clients for the npm and PyPI registries.
//
// [httputil] - Retry with backoff.
//
// ## Reporting
//
// [report] - CycloneDX 1.5 BOM, environment variables and project files,
// and a Graphviz rendering of the graph.
//
// ## Support
//
// [errors] - Coded errors shared across packages.
//
// [observability] - Hooks for parse, fetch and cache events, with a
// Prometheus implementation.
//
// [buildinfo] - Version information set at build time.
//
// # Testing
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/deps/...               # Specific package
//	go test -tags integration ./pkg/...  # Include integration tests
//
// [deps]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/deps
// [graph]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/graph
// [fetch]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/fetch
// [cache]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/cache
// [report]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/report
// [prefetch]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/prefetch
// [locator]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/locator
// [checksum]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/checksum
// [archive]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/archive
// [integrations]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/integrations
// [httputil]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/httputil
// [errors]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/prefetch/pkg/buildinfo
package pkg
