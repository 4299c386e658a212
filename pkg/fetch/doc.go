// Package fetch downloads and verifies every artifact of a dependency
// graph into the content-addressed store.
//
// # Planning
//
// [Orchestrator.FetchAll] first maps each graph node to a task keyed by
// its content address. A node that declares exactly one verifiable
// checksum is addressed by that checksum; any other node is addressed by
// its locator identity (see [cache.LocatorAddress]). Nodes that share an
// address share a task, so every artifact is fetched at most once per
// run.
//
// Patch nodes fetch their target and check that their patch files exist.
// The project root workspace and bundled builtins fetch nothing. Local
// directories, including workspace members, are identified by their h1
// dirhash and never copied.
//
// # Execution
//
// Tasks run on a bounded errgroup. A singleflight group keyed by address
// keeps concurrent runs on one orchestrator from fetching the same entry
// twice. The first fatal error cancels every other task.
//
// Each task goes through the same steps:
//
//  1. look the address up in the store; corrupt entries are fatal
//  2. try the S3 mirror, if one is configured and the task has a
//     checksum to verify the mirrored bytes against
//  3. download from the source: HTTP(S) through [integrations.Client]
//     with retries, registry metadata via the ecosystem's
//     [deps.ArtifactResolver], git through the git CLI, or a local copy
//  4. verify against the declared checksum
//  5. publish into the store and upload to the mirror
//
// A [Record] is created only once its bytes are verified.
package fetch
