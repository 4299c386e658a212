// Package graph holds the dependency graph built from parsed lockfiles.
//
// # Identity
//
// A node's identity is its ecosystem tag joined with the canonical string of
// its resolved locator ([NodeID]). Lockfile records that resolve to the same
// locator collapse into one node even when they were written differently;
// records with the same name and version but different resolutions stay
// apart.
//
// # Building
//
// [Build] runs in two passes. The first resolves every record's own
// reference and creates the nodes; the second resolves dependency
// references through the same resolver and links them to nodes that already
// exist, so forward references are fine. Cycles are allowed and [Graph.Walk]
// visits each identity once.
//
// Checksums of collapsed records must agree. The first non-empty set wins;
// a later, different set fails with CHECKSUM_CONFLICT.
//
// # Serialization
//
// Graphs serialize to a node-link JSON format:
//
//	{
//	  "nodes": [{"id": "npm:https://registry.npmjs.org/a/-/a-1.0.0.tgz", "name": "a"}],
//	  "edges": [{"from": "npm:...", "to": "npm:..."}]
//	}
package graph
