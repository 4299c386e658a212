// Package deps defines the contract between the engine and each package
// ecosystem.
//
// # Overview
//
// An [Ecosystem] turns lockfile bytes into an ordered list of [RawRecord]
// values, resolves the references those records carry into locators, lays
// fetched artifacts out on disk and renders the directives that point the
// package manager at them:
//
//	eco, _ := registry.Get("npm")
//	records, _ := eco.Parse(files)
//	g, _ := graph.Build(eco.Name(), records, eco.Resolver(), ctx)
//
// Parsers are pure: they never read the filesystem or the network and never
// modify the lockfile. The runner reads the files listed by
// [Ecosystem.Lockfiles] and hands them over as [Files].
//
// # Artifact Resolution
//
// Some lockfiles do not pin download URLs or only carry checksums that
// cannot be verified locally (yarn berry cache checksums). Those ecosystems
// also implement [ArtifactResolver], which asks the registry for a download
// URL and a verifiable checksum.
//
// # Registry
//
// Ecosystems are looked up by tag through a [Registry]. The complete list
// lives in [ecosystems], which exists to break the import cycle between this
// package and the individual ecosystem packages.
//
// [ecosystems]: github.com/matzehuels/prefetch/pkg/deps/ecosystems
package deps
