// Package report turns a fetched dependency graph into the outputs of a
// prefetch run.
//
// # Bill of materials
//
// [Render] produces a CycloneDX 1.5 document with one component per graph
// node. The node identity is the component's bom-ref. Components carry
// their package URL as built by the ecosystem, the hashes CycloneDX can
// express, licenses recorded in the lockfile and prefetch:* properties:
//
//   - prefetch:ecosystem, always
//   - prefetch:dev and prefetch:optional, when set
//   - prefetch:missing_hash_in_file, for lockfile entries without a checksum
//   - prefetch:build_dependency and prefetch:kind, where ecosystems record them
//
// Components and dependencies are sorted by bom-ref, so equal inputs give
// equal documents apart from the serial number and timestamp.
//
// # Environment
//
// Every ecosystem renders directives that point its package manager at the
// materialized artifacts. [Environment.Merge] combines them; conflicting
// values for one variable or file are an error.
//
// # Graph export
//
// [ToDOT] and [RenderSVG] draw the graph with Graphviz:
//
//	dot := report.ToDOT(g, report.DOTOptions{Detailed: true})
//	svg, err := report.RenderSVG(dot)
package report
